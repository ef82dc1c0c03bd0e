package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/chigogiggs/converse/internal/conversation"
	"github.com/chigogiggs/converse/internal/service"
	"github.com/chigogiggs/converse/pkg/validator"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBufSize  = 256
)

// EngineFactory builds a conversation engine for one authenticated session.
// The sink is the session's client, which streams engine updates out over
// the socket.
type EngineFactory func(viewerID uuid.UUID, sink conversation.Sink) *conversation.Engine

// Client represents a single WebSocket connection. Each client owns at most
// one conversation engine; opening a conversation replaces the previous one.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	logger *zap.Logger

	newEngine EngineFactory
	prefs     *service.PreferenceService

	mu     sync.Mutex
	engine *conversation.Engine
	closed bool

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, newEngine EngineFactory, prefs *service.PreferenceService, logger *zap.Logger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		userID:    userID,
		logger:    logger,
		newEngine: newEngine,
		prefs:     prefs,
		send:      make(chan []byte, sendBufSize),
		done:      make(chan struct{}),
	}
}

// shutdown is called by the hub when the client is dropped. Idempotent.
// The send channel is never closed: engine goroutines spawned by this
// client can still emit after the drop, and those late events must be
// dropped, not panic the process.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.engine != nil {
		c.engine.Close()
		c.engine = nil
	}
	c.mu.Unlock()
	close(c.done)
}

// ReadPump reads messages from the WebSocket and dispatches them.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Info("ws: client disconnected", zap.String("user_id", c.userID.String()))
			} else {
				c.logger.Warn("ws: read error", zap.String("user_id", c.userID.String()), zap.Error(err))
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.logger.Warn("ws: write error", zap.String("user_id", c.userID.String()), zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeConversationOpen:
		var p ConversationOpenPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.RecipientID == uuid.Nil {
			c.sendError("INVALID_PAYLOAD", "invalid conversation.open payload")
			return
		}
		c.openConversation(p.RecipientID)

	case EventTypeMessageSend:
		var p MessageSendPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid message.send payload")
			return
		}
		if errs := validator.ValidateMessage(p.Text); errs.HasErrors() {
			c.sendError("INVALID_MESSAGE", errs["text"])
			return
		}
		c.sendMessage(p.Text)

	case EventTypeLanguageSet:
		var p LanguageSetPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.Language == "" {
			c.sendError("INVALID_PAYLOAD", "invalid language.set payload")
			return
		}
		c.setLanguage(p.Language)

	case EventTypePing:
		c.sendEvent(EventTypePong, nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) openConversation(recipientID uuid.UUID) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.engine == nil {
		c.engine = c.newEngine(c.userID, c)
	}
	engine := c.engine
	c.mu.Unlock()

	// History is delivered through the sink once the load resolves.
	go func() {
		if err := engine.Open(context.Background(), recipientID); err != nil {
			c.logger.Warn("ws: open conversation",
				zap.String("user_id", c.userID.String()), zap.Error(err))
			c.sendError("OPEN_FAILED", "could not open conversation")
			return
		}
		// A disconnect can land while the open is in flight; tear down
		// whatever it just brought up so no subscription outlives the client.
		c.mu.Lock()
		if c.closed {
			engine.Close()
		}
		c.mu.Unlock()
	}()
}

func (c *Client) sendMessage(text string) {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		c.sendError("NO_CONVERSATION", "open a conversation first")
		return
	}

	// The optimistic entry reaches the sink synchronously inside Send; the
	// translate+persist tail runs here without blocking the read pump.
	go func() {
		_, err := engine.Send(context.Background(), text)
		switch {
		case err == nil, errors.Is(err, conversation.ErrConversationMoved):
		case errors.Is(err, conversation.ErrRecipientUnresolved):
			c.sendError("RECIPIENT_UNRESOLVED", "recipient has no language preference")
		case errors.Is(err, conversation.ErrPersistFailed):
			c.sendError("PERSIST_FAILED", "message could not be saved")
		default:
			c.logger.Warn("ws: send failed", zap.String("user_id", c.userID.String()), zap.Error(err))
			c.sendError("SEND_FAILED", "message could not be sent")
		}
	}()
}

func (c *Client) setLanguage(language string) {
	if err := c.prefs.Set(context.Background(), c.userID, language); err != nil {
		if errors.Is(err, service.ErrUnknownLanguage) {
			c.sendError("UNKNOWN_LANGUAGE", "unsupported language code")
		} else {
			c.logger.Warn("ws: set language", zap.String("user_id", c.userID.String()), zap.Error(err))
			c.sendError("PREFERENCE_FAILED", "could not save language preference")
		}
		return
	}

	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		return
	}

	// One translating signal for the whole pass; per-message outcomes
	// stream through the sink as they land.
	c.sendEvent(EventTypeTranslationStart, TranslationPayload{Language: language})
	go func() {
		updated := engine.Retranslate(context.Background(), language)
		c.sendEvent(EventTypeTranslationDone, TranslationPayload{Language: language, Updated: updated})
	}()
}

// --- conversation.Sink ---
// Sink callbacks run with the engine lock held; they only enqueue.

func (c *Client) HistoryLoaded(messages []conversation.Message) {
	c.sendEvent(EventTypeHistory, HistoryPayload{Messages: messages})
}

func (c *Client) MessageAppended(msg conversation.Message) {
	if msg.IsTranslating {
		c.sendEvent(EventTypeMessagePending, MessagePayload{Message: msg})
		return
	}
	c.sendEvent(EventTypeMessageNew, MessagePayload{Message: msg})
}

func (c *Client) MessageReplaced(localID string, msg conversation.Message) {
	c.sendEvent(EventTypeMessagePersisted, MessagePersistedPayload{LocalID: localID, Message: msg})
}

func (c *Client) MessageRemoved(localID string) {
	c.sendEvent(EventTypeMessageDiscarded, MessageDiscardedPayload{LocalID: localID})
}

func (c *Client) sendEvent(eventType string, payload any) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	evt, err := NewEvent(eventType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(EventTypeError, ErrorPayload{Code: code, Message: message})
}
