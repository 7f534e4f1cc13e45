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

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.EngagementJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.EngagementJob, error) {
	var job models.EngagementJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobsByUser(ctx context.Context, userID string) ([]*models.EngagementJob, error) {
	var jobs []models.EngagementJob
	query := badgerhold.Where("UserID").Eq(userID).SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs for user %s: %w", userID, err)
	}

	result := make([]*models.EngagementJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.EngagementJob, error) {
	var jobs []models.EngagementJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}

	result := make([]*models.EngagementJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) ListStaleActiveJobs(ctx context.Context, olderThan time.Time) ([]*models.EngagementJob, error) {
	var jobs []models.EngagementJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusActive)); err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}

	// StartedAt is a pointer field; filter in memory rather than fight
	// badgerhold's criteria over indirections.
	var stale []*models.EngagementJob
	for i := range jobs {
		if jobs[i].StartedAt != nil && jobs[i].StartedAt.Before(olderThan) {
			stale = append(stale, &jobs[i])
		}
	}
	return stale, nil
}

func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.EngagementJob{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}
