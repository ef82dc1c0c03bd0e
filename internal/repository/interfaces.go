package repository

import (
	"context"

	"github.com/chigogiggs/converse/internal/domain"
	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// MessageRepository persists message rows. Save assigns id and created_at
// from the store; ListConversation returns the full history between two
// users ordered by created_at ascending (id is the tie-break). Rows are
// soft-deleted only.
type MessageRepository interface {
	Save(ctx context.Context, msg *domain.MessageRow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MessageRow, error)
	ListConversation(ctx context.Context, userA, userB uuid.UUID) ([]domain.MessageRow, error)
	MarkRead(ctx context.Context, id, readerID uuid.UUID) error
	SoftDelete(ctx context.Context, id, senderID uuid.UUID) error
}

// PreferenceRepository maintains the one-row-per-user language preference.
type PreferenceRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error)
	Upsert(ctx context.Context, userID uuid.UUID, language string) error
	// Ensure creates the row with the baseline language if it does not exist
	// yet. Idempotent; called once at registration.
	Ensure(ctx context.Context, userID uuid.UUID, language string) error
	MarkFirstMessageSent(ctx context.Context, userID uuid.UUID) error
}
