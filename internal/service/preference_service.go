package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/chigogiggs/converse/internal/domain"
	"github.com/chigogiggs/converse/internal/repository"
	"github.com/chigogiggs/converse/internal/translate"
	"github.com/google/uuid"
)

var ErrUnknownLanguage = errors.New("unsupported language code")

type PreferenceService struct {
	prefRepo repository.PreferenceRepository
}

func NewPreferenceService(prefRepo repository.PreferenceRepository) *PreferenceService {
	return &PreferenceService{prefRepo: prefRepo}
}

// Get returns the user's preference row, creating none. A missing row maps
// to the baseline language so callers always get something renderable.
func (s *PreferenceService) Get(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error) {
	pref, err := s.prefRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		return &domain.UserPreference{
			UserID:            userID,
			PreferredLanguage: translate.DefaultLanguageCode,
		}, nil
	}
	return pref, nil
}

// Set upserts the user's preferred language. Codes outside the supported
// set are rejected here rather than silently mapped to the baseline.
func (s *PreferenceService) Set(ctx context.Context, userID uuid.UUID, language string) error {
	if !translate.KnownLanguage(language) {
		return ErrUnknownLanguage
	}
	if err := s.prefRepo.Upsert(ctx, userID, language); err != nil {
		return fmt.Errorf("upserting preference: %w", err)
	}
	return nil
}
