package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

// Result is what a translation attempt produced. Text is always usable:
// on any upstream failure it is the input unchanged and Language is the
// baseline marker.
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Gateway calls the external translation capability. It never returns an
// error past its own boundary: translation is best-effort and must not
// block message delivery, so every failure degrades to identity.
type Gateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

func NewGateway(endpoint, apiKey string, logger *zap.Logger) *Gateway {
	return &Gateway{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// Translate renders text into the language named by targetCode. targetCode
// outside the supported set resolves to the baseline language. The returned
// Language is the display name actually requested, or the baseline name
// when the call degraded.
func (g *Gateway) Translate(ctx context.Context, text, targetCode string) Result {
	target := LanguageName(targetCode)

	translated, err := g.invoke(ctx, text, target)
	if err != nil {
		g.logger.Warn("translate: degraded to passthrough",
			zap.String("target", target), zap.Error(err))
		return Result{Text: text, Language: LanguageName(DefaultLanguageCode)}
	}
	return Result{Text: translated, Language: target}
}

func (g *Gateway) invoke(ctx context.Context, text, targetName string) (string, error) {
	body, err := json.Marshal(translateRequest{Text: text, TargetLanguage: targetName})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if decoded.TranslatedText == "" {
		return "", fmt.Errorf("upstream returned empty translation")
	}
	return decoded.TranslatedText, nil
}
