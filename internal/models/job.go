// -----------------------------------------------------------------------
// Engagement Job - Durable job record and lifecycle state machine
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an engagement job
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	// JobStatusPermanentlyFailed marks a job whose retry budget is exhausted.
	// The queue will never re-attempt it.
	JobStatusPermanentlyFailed JobStatus = "permanently_failed"
)

// IsTerminal returns true for states that never change again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusPermanentlyFailed
}

// JobProgress tracks the named step and numeric percent of a running job.
// Purely observational - control flow never reads it back.
type JobProgress struct {
	CurrentStep  string `json:"current_step"`
	StepProgress int    `json:"step_progress"` // 0-100, monotonically increasing
	TotalSteps   int    `json:"total_steps"`
}

// JobResult is the structured terminal payload of a completed job
type JobResult struct {
	Success         bool   `json:"success"`
	ActedCount      int    `json:"acted_count"`
	DiscoveredCount int    `json:"discovered_count"`
	SessionReportID string `json:"session_report_id,omitempty"`
}

// EngagementJob is the durable job document. Created by the API layer in
// status waiting; every subsequent mutation belongs to the worker. Jobs are
// never deleted - they are the historical record of what ran.
type EngagementJob struct {
	ID          string        `json:"id" validate:"required"`
	UserID      string        `json:"user_id" validate:"required"`
	Keywords    []string      `json:"keywords" validate:"required,min=1,max=10,dive,min=1"`
	ActionCount int           `json:"action_count" validate:"required,min=1,max=20"`
	Options     ReplyOptions  `json:"options"`
	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Progress    JobProgress   `json:"progress"`
	Result      *JobResult    `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	// FailedAttempts counts terminal pipeline failures across deliveries.
	// Once it reaches the configured bound the job goes permanently_failed.
	FailedAttempts int `json:"failed_attempts"`
}

// ReplyOptions controls filtering and reply generation for a job
type ReplyOptions struct {
	MinReactions   int    `json:"min_reactions" validate:"min=0"`
	ExcludeFlagged bool   `json:"exclude_flagged"`
	Tone           string `json:"tone,omitempty"`
	Length         string `json:"length,omitempty"`
	WantEmoji      bool   `json:"want_emoji"`
	WantHashtags   bool   `json:"want_hashtags"`
}

var jobValidator = validator.New()

// NewEngagementJob creates a new job in the waiting state
func NewEngagementJob(userID string, keywords []string, actionCount int, opts ReplyOptions) *EngagementJob {
	return &EngagementJob{
		ID:          "job_" + uuid.New().String(),
		UserID:      userID,
		Keywords:    keywords,
		ActionCount: actionCount,
		Options:     opts,
		Status:      JobStatusWaiting,
		CreatedAt:   time.Now(),
	}
}

// Validate checks the job document against its structural constraints
func (j *EngagementJob) Validate() error {
	return jobValidator.Struct(j)
}

// MarkActive transitions the job to active and stamps the start time
func (j *EngagementJob) MarkActive() {
	j.Status = JobStatusActive
	now := time.Now()
	j.StartedAt = &now
	j.CompletedAt = nil
	j.Error = ""
	j.Result = nil
	// Monotonic progress is a within-run property; a retry starts fresh
	// instead of pinning at the prior run's frozen percent.
	j.Progress = JobProgress{}
}

// MarkCompleted transitions the job to completed with its result payload
func (j *EngagementJob) MarkCompleted(result *JobResult) {
	j.Status = JobStatusCompleted
	now := time.Now()
	j.CompletedAt = &now
	j.Result = result
	j.SetProgress("done", 100)
}

// MarkFailed transitions the job to failed, increments the failure count
// and records the cause. Progress is deliberately left where it was - it
// freezes at the step where the failure occurred.
func (j *EngagementJob) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	j.FailedAttempts++
	now := time.Now()
	j.CompletedAt = &now
}

// MarkPermanentlyFailed transitions the job to its terminal failure state
func (j *EngagementJob) MarkPermanentlyFailed(errorMsg string) {
	j.Status = JobStatusPermanentlyFailed
	j.Error = errorMsg
	now := time.Now()
	j.CompletedAt = &now
}

// SetProgress records the current named step and percent
func (j *EngagementJob) SetProgress(step string, percent int) {
	if percent < j.Progress.StepProgress {
		// Progress is monotonic; never walk backwards.
		percent = j.Progress.StepProgress
	}
	j.Progress.CurrentStep = step
	j.Progress.StepProgress = percent
}
