package conversation

import (
	"github.com/chigogiggs/converse/internal/domain"
	"github.com/google/uuid"
)

const timeFormat = "15:04"

// Message is the display form of a message as one viewer sees it. Before
// persistence it carries a client-generated id and IsTranslating=true;
// afterwards the store-assigned id and the translated text.
type Message struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	OriginalText  string `json:"original_text,omitempty"`
	IsOutgoing    bool   `json:"is_outgoing"`
	Timestamp     string `json:"timestamp"`
	IsTranslating bool   `json:"is_translating"`
	SenderID      string `json:"sender_id,omitempty"`
	Type          string `json:"type"`
	MediaPath     string `json:"media_path,omitempty"`
}

// ToDisplay maps a persisted row to its display form for the given viewer.
// Pure: the translated content wins when present, and OriginalText is set
// exactly when a translation occurred. Malformed rows are the caller's
// problem; validate at the store boundary.
func ToDisplay(row domain.MessageRow, viewerID uuid.UUID) Message {
	text := row.Content
	original := ""
	if row.TranslatedContent != nil {
		text = *row.TranslatedContent
		original = row.Content
	}

	msg := Message{
		ID:           row.ID.String(),
		Text:         text,
		OriginalText: original,
		IsOutgoing:   row.SenderID == viewerID,
		Timestamp:    row.CreatedAt.Local().Format(timeFormat),
		SenderID:     row.SenderID.String(),
		Type:         row.Type,
	}
	if row.MediaPath != nil {
		msg.MediaPath = *row.MediaPath
	}
	return msg
}
