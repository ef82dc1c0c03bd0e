package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/chigogiggs/converse/internal/conversation"
	"github.com/chigogiggs/converse/internal/domain"
	"github.com/chigogiggs/converse/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMessageOwner = errors.New("only the message sender can perform this action")
	ErrNotRecipient    = errors.New("only the recipient can mark a message read")
)

// Notifier pushes flag changes to the other participant in real time.
type Notifier interface {
	NotifyRead(senderID, messageID uuid.UUID)
	NotifyDeleted(recipientID, messageID uuid.UUID)
}

// MessageService is the HTTP-facing surface over the message store: history
// reads, media sends, read flags and soft deletes. Text sends with
// translation go through the conversation engine on the websocket path.
type MessageService struct {
	messageRepo repository.MessageRepository
	notifier    Notifier
}

func NewMessageService(messageRepo repository.MessageRepository) *MessageService {
	return &MessageService{messageRepo: messageRepo}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// History returns the conversation between viewer and other, mapped to the
// viewer's display form.
func (s *MessageService) History(ctx context.Context, viewerID, otherID uuid.UUID) ([]conversation.Message, error) {
	rows, err := s.messageRepo.ListConversation(ctx, viewerID, otherID)
	if err != nil {
		return nil, err
	}

	messages := make([]conversation.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, conversation.ToDisplay(row, viewerID))
	}
	return messages, nil
}

// SendMedia persists an image or voice message. Media carries no text to
// translate, so it skips the translation step entirely.
func (s *MessageService) SendMedia(ctx context.Context, senderID, recipientID uuid.UUID, msgType, mediaPath string) (*domain.MessageRow, error) {
	row := &domain.MessageRow{
		SenderID:    senderID,
		RecipientID: recipientID,
		Type:        msgType,
		MediaPath:   &mediaPath,
	}
	if err := s.messageRepo.Save(ctx, row); err != nil {
		return nil, fmt.Errorf("saving media message: %w", err)
	}
	return row, nil
}

func (s *MessageService) MarkRead(ctx context.Context, readerID, messageID uuid.UUID) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.RecipientID != readerID {
		return ErrNotRecipient
	}
	if err := s.messageRepo.MarkRead(ctx, messageID, readerID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.NotifyRead(msg.SenderID, messageID)
	}
	return nil
}

func (s *MessageService) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return ErrNotMessageOwner
	}
	if err := s.messageRepo.SoftDelete(ctx, messageID, userID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.NotifyDeleted(msg.RecipientID, messageID)
	}
	return nil
}
