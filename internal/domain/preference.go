package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserPreference holds a user's display-language choice. One row per user,
// upserted, never duplicated.
type UserPreference struct {
	UserID              uuid.UUID `json:"user_id"`
	PreferredLanguage   string    `json:"preferred_language"`
	HasSentFirstMessage bool      `json:"has_sent_first_message"`
	UpdatedAt           time.Time `json:"updated_at"`
}
