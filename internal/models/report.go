// -----------------------------------------------------------------------
// Session Report - Per-run outcome record for an engagement job
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportError is a single error observed during a run, tagged with the
// pipeline step it occurred in
type ReportError struct {
	Message   string    `json:"message"`
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// PhaseTimings records per-phase wall-clock durations in milliseconds
type PhaseTimings struct {
	ScrapeMs int64 `json:"scrape_ms"`
	FilterMs int64 `json:"filter_ms"`
	ActMs    int64 `json:"act_ms"`
	TotalMs  int64 `json:"total_ms"`
}

// SessionReport is the per-run outcome record. Exactly one report exists
// per completed or failed run; guard-skipped deliveries produce none.
type SessionReport struct {
	ID                 string        `json:"id" badgerhold:"key"`
	JobID              string        `json:"job_id"`
	UserID             string        `json:"user_id"`
	Success            bool          `json:"success"`
	Keywords           []string      `json:"keywords"`
	DiscoveredCount    int           `json:"discovered_count"`
	FilteredCount      int           `json:"filtered_count"`
	ActedCount         int           `json:"acted_count"`
	FailedCount        int           `json:"failed_count"`
	SuccessRatePercent float64       `json:"success_rate_percent"`
	Errors             []ReportError `json:"errors,omitempty"`
	Timings            PhaseTimings  `json:"timings"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	CreatedAt          time.Time     `json:"created_at"`
}

// NewSessionReport creates an empty report bound to a job and user,
// stamped with the run's start time
func NewSessionReport(jobID, userID string) *SessionReport {
	now := time.Now()
	return &SessionReport{
		ID:        "report_" + uuid.New().String(),
		JobID:     jobID,
		UserID:    userID,
		StartTime: now,
		CreatedAt: now,
	}
}

// Finish stamps the end of the run, derives the total duration and the
// acted/attempted success rate. Zero attempts leave the rate at zero.
func (r *SessionReport) Finish() {
	r.EndTime = time.Now()
	r.Timings.TotalMs = r.EndTime.Sub(r.StartTime).Milliseconds()
	if attempted := r.ActedCount + r.FailedCount; attempted > 0 {
		r.SuccessRatePercent = float64(r.ActedCount) / float64(attempted) * 100
	}
}

// AddError appends a timestamped error entry for the given step
func (r *SessionReport) AddError(step, message string) {
	r.Errors = append(r.Errors, ReportError{
		Message:   message,
		Step:      step,
		Timestamp: time.Now(),
	})
}
