package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/respondo/internal/models"
)

// JobStorage persists engagement job documents. Jobs are never deleted;
// they are the durable history of every run.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.EngagementJob) error
	GetJob(ctx context.Context, jobID string) (*models.EngagementJob, error)
	ListJobsByUser(ctx context.Context, userID string) ([]*models.EngagementJob, error)
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.EngagementJob, error)
	// ListStaleActiveJobs returns active jobs whose start time is older
	// than the threshold - jobs presumed orphaned by a crashed worker.
	ListStaleActiveJobs(ctx context.Context, olderThan time.Time) ([]*models.EngagementJob, error)
	CountJobs(ctx context.Context) (int, error)
}

// CandidateStorage persists scraped candidate posts
type CandidateStorage interface {
	// InsertCandidates stores new candidates, silently skipping any whose
	// key already exists. Returns the number actually inserted.
	InsertCandidates(ctx context.Context, candidates []*models.CandidateItem) (int, error)
	HasCandidate(ctx context.Context, userID, url string) (bool, error)
	GetCandidate(ctx context.Context, userID, url string) (*models.CandidateItem, error)
	ListCandidatesByJob(ctx context.Context, jobID string) ([]*models.CandidateItem, error)
	// MarkActed flags a candidate as engaged, recording the reply text
	// used. Scoped by user and URL, the same pair that keys the record.
	MarkActed(ctx context.Context, userID, url, replyText string) error
}

// ReportStorage persists per-run session reports
type ReportStorage interface {
	SaveReport(ctx context.Context, report *models.SessionReport) error
	GetReport(ctx context.Context, reportID string) (*models.SessionReport, error)
	ListReportsByJob(ctx context.Context, jobID string) ([]*models.SessionReport, error)
}

// AuthStorage holds captured browser sessions per user
type AuthStorage interface {
	SaveSession(ctx context.Context, creds *models.SessionCredentials) error
	LoadSession(ctx context.Context, userID string) (*models.SessionCredentials, error)
	// HasValidSession reports whether a stored, unexpired session exists
	HasValidSession(ctx context.Context, userID string) (bool, error)
	DeleteSession(ctx context.Context, userID string) error
}

// StorageManager provides access to all storage interfaces over one
// underlying database
type StorageManager interface {
	Jobs() JobStorage
	Candidates() CandidateStorage
	Reports() ReportStorage
	Auth() AuthStorage
	Close() error
}
