package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/common"
	"github.com/ternarybob/respondo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	jobs       interfaces.JobStorage
	candidates interfaces.CandidateStorage
	reports    interfaces.ReportStorage
	auth       interfaces.AuthStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		jobs:       NewJobStorage(db, logger),
		candidates: NewCandidateStorage(db, logger),
		reports:    NewReportStorage(db, logger),
		auth:       NewAuthStorage(db, logger),
		logger:     logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// Jobs returns the job storage interface
func (m *Manager) Jobs() interfaces.JobStorage {
	return m.jobs
}

// Candidates returns the candidate storage interface
func (m *Manager) Candidates() interfaces.CandidateStorage {
	return m.candidates
}

// Reports returns the report storage interface
func (m *Manager) Reports() interfaces.ReportStorage {
	return m.reports
}

// Auth returns the auth storage interface
func (m *Manager) Auth() interfaces.AuthStorage {
	return m.auth
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
