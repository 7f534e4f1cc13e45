package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
)

// ReportStorage implements the ReportStorage interface for Badger
type ReportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new ReportStorage instance
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &ReportStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReportStorage) SaveReport(ctx context.Context, report *models.SessionReport) error {
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}

	if err := s.db.Store().Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *ReportStorage) GetReport(ctx context.Context, reportID string) (*models.SessionReport, error) {
	var report models.SessionReport
	if err := s.db.Store().Get(reportID, &report); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("report not found: %s", reportID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

func (s *ReportStorage) ListReportsByJob(ctx context.Context, jobID string) ([]*models.SessionReport, error) {
	var reports []models.SessionReport
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list reports for job %s: %w", jobID, err)
	}

	result := make([]*models.SessionReport, len(reports))
	for i := range reports {
		result[i] = &reports[i]
	}
	return result, nil
}
