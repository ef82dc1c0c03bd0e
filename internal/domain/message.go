package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message kinds. Only text messages go through translation; media
// messages carry a blob path instead.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVoice = "voice"
)

var (
	ErrRowMissingID           = errors.New("message row: missing id")
	ErrRowMissingParticipants = errors.New("message row: missing sender or recipient")
	ErrRowMissingContent      = errors.New("message row: text message without content")
	ErrRowBadType             = errors.New("message row: unknown message type")
	ErrRowMissingCreatedAt    = errors.New("message row: missing created_at")
)

// MessageRow is the persisted shape of a message. Rows are created by the
// sender, mutated only by the read flag (recipient) and soft delete (sender),
// and never physically removed.
type MessageRow struct {
	ID                uuid.UUID  `json:"id"`
	SenderID          uuid.UUID  `json:"sender_id"`
	RecipientID       uuid.UUID  `json:"recipient_id"`
	Content           string     `json:"content"`
	TranslatedContent *string    `json:"translated_content,omitempty"`
	SourceLanguage    string     `json:"source_language"`
	TargetLanguage    string     `json:"target_language"`
	Type              string     `json:"type"`
	MediaPath         *string    `json:"media_path,omitempty"`
	ReplyToID         *uuid.UUID `json:"reply_to_id,omitempty"`
	Read              bool       `json:"read"`
	IsDeleted         bool       `json:"is_deleted"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Validate rejects malformed rows at the store boundary. Rows arriving over
// the live notification channel are JSON-decoded from untrusted payloads, so
// callers drop (and log) anything that fails here instead of letting zero-value
// fields propagate into conversation state.
func (r *MessageRow) Validate() error {
	if r.ID == uuid.Nil {
		return ErrRowMissingID
	}
	if r.SenderID == uuid.Nil || r.RecipientID == uuid.Nil {
		return ErrRowMissingParticipants
	}
	switch r.Type {
	case MessageTypeText:
		if r.Content == "" {
			return ErrRowMissingContent
		}
	case MessageTypeImage, MessageTypeVoice:
	default:
		return ErrRowBadType
	}
	if r.CreatedAt.IsZero() {
		return ErrRowMissingCreatedAt
	}
	return nil
}
