package ws

import (
	"encoding/json"
	"time"

	"github.com/chigogiggs/converse/internal/conversation"
	"github.com/google/uuid"
)

// Event types - Client → Server
const (
	EventTypeConversationOpen = "conversation.open"
	EventTypeMessageSend      = "message.send"
	EventTypeLanguageSet      = "language.set"
	EventTypePing             = "ping"
)

// Event types - Server → Client
const (
	EventTypeHistory          = "history"
	EventTypeMessagePending   = "message.pending"
	EventTypeMessagePersisted = "message.persisted"
	EventTypeMessageDiscarded = "message.discarded"
	EventTypeMessageNew       = "message.new"
	EventTypeMessageRead      = "message.read"
	EventTypeMessageDeleted   = "message.deleted"
	EventTypeTranslationStart = "translation.start"
	EventTypeTranslationDone  = "translation.done"
	EventTypePresence         = "presence"
	EventTypePong             = "pong"
	EventTypeError            = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type ConversationOpenPayload struct {
	RecipientID uuid.UUID `json:"recipient_id"`
}

type MessageSendPayload struct {
	Text string `json:"text"`
}

type LanguageSetPayload struct {
	Language string `json:"language"`
}

// --- Server → Client payloads ---

type HistoryPayload struct {
	Messages []conversation.Message `json:"messages"`
}

type MessagePayload struct {
	conversation.Message
}

type MessagePersistedPayload struct {
	LocalID string               `json:"local_id"`
	Message conversation.Message `json:"message"`
}

type MessageDiscardedPayload struct {
	LocalID string `json:"local_id"`
}

type MessageFlagPayload struct {
	ID uuid.UUID `json:"id"`
}

type TranslationPayload struct {
	Language string `json:"language"`
	Updated  int    `json:"updated,omitempty"`
}

type PresencePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"` // "online" | "offline"
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
