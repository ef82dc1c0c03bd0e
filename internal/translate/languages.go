package translate

// DefaultLanguageCode is the baseline language every lookup falls back to.
const DefaultLanguageCode = "en"

// languageNames maps the short codes stored in preference rows to the
// human-readable names the upstream service expects. Closed set; anything
// outside it resolves to the baseline.
var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
	"hi": "Hindi",
}

// LanguageName resolves a short code to its display name, falling back to
// the baseline language for unmapped codes.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return languageNames[DefaultLanguageCode]
}

// KnownLanguage reports whether code is in the supported set.
func KnownLanguage(code string) bool {
	_, ok := languageNames[code]
	return ok
}
