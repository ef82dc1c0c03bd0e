package ws

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HubNotifier pushes read/delete flag changes to the other participant of a
// conversation. Inserts do not go through here; they travel the store's
// notification channel into each session's engine.
type HubNotifier struct {
	hub    *Hub
	logger *zap.Logger
}

func NewHubNotifier(hub *Hub, logger *zap.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: logger}
}

func (n *HubNotifier) NotifyRead(senderID, messageID uuid.UUID) {
	evt, err := NewEvent(EventTypeMessageRead, MessageFlagPayload{ID: messageID})
	if err != nil {
		n.logger.Warn("ws notifier: marshal error", zap.Error(err))
		return
	}
	n.hub.SendToUser(senderID, evt)
}

func (n *HubNotifier) NotifyDeleted(recipientID, messageID uuid.UUID) {
	evt, err := NewEvent(EventTypeMessageDeleted, MessageFlagPayload{ID: messageID})
	if err != nil {
		n.logger.Warn("ws notifier: marshal error", zap.Error(err))
		return
	}
	n.hub.SendToUser(recipientID, evt)
}
