package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
)

// CandidateStorage implements the CandidateStorage interface for Badger
type CandidateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCandidateStorage creates a new CandidateStorage instance
func NewCandidateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CandidateStorage {
	return &CandidateStorage{
		db:     db,
		logger: logger,
	}
}

// InsertCandidates stores candidates, skipping any whose key already
// exists. Duplicates are a normal outcome of overlapping keyword results
// and re-runs, so a skip is logged at debug and never an error.
func (s *CandidateStorage) InsertCandidates(ctx context.Context, candidates []*models.CandidateItem) (int, error) {
	inserted := 0
	for _, c := range candidates {
		if c.Key == "" {
			c.Key = models.CandidateKey(c.UserID, c.URL)
		}

		err := s.db.Store().Insert(c.Key, c)
		if err != nil {
			if err == badgerhold.ErrKeyExists {
				s.logger.Debug().Str("key", c.Key).Msg("Candidate already stored, skipping")
				continue
			}
			return inserted, fmt.Errorf("failed to insert candidate %s: %w", c.Key, err)
		}
		inserted++
	}
	return inserted, nil
}

func (s *CandidateStorage) HasCandidate(ctx context.Context, userID, url string) (bool, error) {
	var c models.CandidateItem
	err := s.db.Store().Get(models.CandidateKey(userID, url), &c)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check candidate: %w", err)
	}
	return true, nil
}

func (s *CandidateStorage) GetCandidate(ctx context.Context, userID, url string) (*models.CandidateItem, error) {
	var c models.CandidateItem
	key := models.CandidateKey(userID, url)
	if err := s.db.Store().Get(key, &c); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("candidate not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return &c, nil
}

func (s *CandidateStorage) ListCandidatesByJob(ctx context.Context, jobID string) ([]*models.CandidateItem, error) {
	var candidates []models.CandidateItem
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("DiscoveredAt")
	if err := s.db.Store().Find(&candidates, query); err != nil {
		return nil, fmt.Errorf("failed to list candidates for job %s: %w", jobID, err)
	}

	result := make([]*models.CandidateItem, len(candidates))
	for i := range candidates {
		result[i] = &candidates[i]
	}
	return result, nil
}

func (s *CandidateStorage) MarkActed(ctx context.Context, userID, url, replyText string) error {
	key := models.CandidateKey(userID, url)

	var c models.CandidateItem
	if err := s.db.Store().Get(key, &c); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("candidate not found: %s", key)
		}
		return fmt.Errorf("failed to load candidate: %w", err)
	}

	now := time.Now()
	c.Acted = true
	c.ActedAt = &now
	c.ActedReply = replyText

	if err := s.db.Store().Upsert(key, &c); err != nil {
		return fmt.Errorf("failed to mark candidate acted: %w", err)
	}
	return nil
}
