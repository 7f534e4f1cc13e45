package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
)

// AuthStorage implements the AuthStorage interface for Badger
type AuthStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAuthStorage creates a new AuthStorage instance
func NewAuthStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuthStorage {
	return &AuthStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AuthStorage) SaveSession(ctx context.Context, creds *models.SessionCredentials) error {
	if creds.UserID == "" {
		return fmt.Errorf("user ID is required")
	}

	if err := s.db.Store().Upsert(creds.UserID, creds); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *AuthStorage) LoadSession(ctx context.Context, userID string) (*models.SessionCredentials, error) {
	var creds models.SessionCredentials
	if err := s.db.Store().Get(userID, &creds); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrNoValidSession
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &creds, nil
}

func (s *AuthStorage) HasValidSession(ctx context.Context, userID string) (bool, error) {
	creds, err := s.LoadSession(ctx, userID)
	if err == models.ErrNoValidSession {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return creds.IsValid(), nil
}

func (s *AuthStorage) DeleteSession(ctx context.Context, userID string) error {
	if err := s.db.Store().Delete(userID, &models.SessionCredentials{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
