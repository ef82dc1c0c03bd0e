package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chigogiggs/converse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is the Postgres NOTIFY channel message inserts are published
// on. The Listener in this package LISTENs on the same name.
const notifyChannel = "message_inserted"

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Save inserts a message row and fills in the store-assigned id and
// created_at. After the insert the full row is published on the notify
// channel so live subscribers pick it up.
func (r *MessageRepo) Save(ctx context.Context, msg *domain.MessageRow) error {
	query := `
		INSERT INTO messages (sender_id, recipient_id, content, translated_content,
			source_language, target_language, type, media_path, reply_to_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		msg.SenderID, msg.RecipientID, msg.Content, msg.TranslatedContent,
		msg.SourceLanguage, msg.TargetLanguage, msg.Type, msg.MediaPath,
		msg.ReplyToID, time.Now(),
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding notify payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload))
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.MessageRow, error) {
	query := selectColumns + ` WHERE id = $1`
	var msg domain.MessageRow
	err := r.pool.QueryRow(ctx, query, id).Scan(scanTargets(&msg)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &msg, err
}

// ListConversation returns every non-deleted message between the two users,
// oldest first. created_at is the ordering key; id breaks ties so repeated
// loads always come back in the same order.
func (r *MessageRepo) ListConversation(ctx context.Context, userA, userB uuid.UUID) ([]domain.MessageRow, error) {
	query := selectColumns + `
		WHERE ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
			AND is_deleted = FALSE
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.MessageRow
	for rows.Next() {
		var msg domain.MessageRow
		if err := rows.Scan(scanTargets(&msg)...); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkRead sets the read flag. Only the recipient may mark a message read.
func (r *MessageRepo) MarkRead(ctx context.Context, id, readerID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET read = TRUE WHERE id = $1 AND recipient_id = $2`,
		id, readerID,
	)
	return err
}

// SoftDelete flags the row deleted. Only the sender may delete; the row
// itself is never removed.
func (r *MessageRepo) SoftDelete(ctx context.Context, id, senderID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = TRUE, deleted_at = $1 WHERE id = $2 AND sender_id = $3`,
		time.Now(), id, senderID,
	)
	return err
}

const selectColumns = `
	SELECT id, sender_id, recipient_id, content, translated_content,
		source_language, target_language, type, media_path, reply_to_id,
		read, is_deleted, deleted_at, created_at
	FROM messages`

func scanTargets(msg *domain.MessageRow) []any {
	return []any{
		&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Content, &msg.TranslatedContent,
		&msg.SourceLanguage, &msg.TargetLanguage, &msg.Type, &msg.MediaPath, &msg.ReplyToID,
		&msg.Read, &msg.IsDeleted, &msg.DeletedAt, &msg.CreatedAt,
	}
}
