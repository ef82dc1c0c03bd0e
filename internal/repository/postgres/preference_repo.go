package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/chigogiggs/converse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PreferenceRepo struct {
	pool *pgxpool.Pool
}

func NewPreferenceRepo(pool *pgxpool.Pool) *PreferenceRepo {
	return &PreferenceRepo{pool: pool}
}

func (r *PreferenceRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error) {
	query := `
		SELECT user_id, preferred_language, has_sent_first_message, updated_at
		FROM user_preferences
		WHERE user_id = $1`
	var pref domain.UserPreference
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&pref.UserID, &pref.PreferredLanguage, &pref.HasSentFirstMessage, &pref.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &pref, err
}

// Upsert writes the preferred language, keyed by user id. The unique
// constraint on user_id keeps this to one row per user.
func (r *PreferenceRepo) Upsert(ctx context.Context, userID uuid.UUID, language string) error {
	query := `
		INSERT INTO user_preferences (user_id, preferred_language, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET preferred_language = $2, updated_at = $3`
	_, err := r.pool.Exec(ctx, query, userID, language, time.Now())
	return err
}

// Ensure creates the preference row with a default language if the user has
// none yet. Existing rows are left untouched.
func (r *PreferenceRepo) Ensure(ctx context.Context, userID uuid.UUID, language string) error {
	query := `
		INSERT INTO user_preferences (user_id, preferred_language, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, userID, language, time.Now())
	return err
}

func (r *PreferenceRepo) MarkFirstMessageSent(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_preferences SET has_sent_first_message = TRUE WHERE user_id = $1`,
		userID,
	)
	return err
}
