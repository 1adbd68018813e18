package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// findingRecord wraps a finding with denormalized index fields so
// badgerhold can query by job, target, and user without touching the
// evidence map.
type findingRecord struct {
	ID         string `badgerhold:"key"`
	JobID      string
	UserID     string
	Target     string
	Capability models.Capability
	Finding    models.Finding
}

// FindingStorage implements the FindingStorage interface for Badger.
// Findings are immutable: saves are upserts keyed by finding ID, so
// replaying a save is harmless and updates are impossible by construction.
type FindingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFindingStorage creates a new FindingStorage instance
func NewFindingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FindingStorage {
	return &FindingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *FindingStorage) SaveFinding(ctx context.Context, scope interfaces.Scope, finding *models.Finding) error {
	if finding.ID == "" {
		return fmt.Errorf("finding ID is required")
	}

	record := findingRecord{
		ID:         finding.ID,
		JobID:      finding.JobID(),
		Target:     finding.Target,
		Capability: finding.Capability,
		Finding:    *finding,
	}
	if !scope.IsAdmin {
		record.UserID = scope.UserID
	}

	if err := s.db.Store().Upsert(record.ID, &record); err != nil {
		return fmt.Errorf("failed to save finding: %w", err)
	}
	return nil
}

func (s *FindingStorage) SaveFindings(ctx context.Context, scope interfaces.Scope, findings []models.Finding) error {
	for i := range findings {
		if err := s.SaveFinding(ctx, scope, &findings[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *FindingStorage) GetFindingsByJob(ctx context.Context, scope interfaces.Scope, jobID string) ([]models.Finding, error) {
	return s.find(scope, badgerhold.Where("JobID").Eq(jobID), 0)
}

func (s *FindingStorage) GetFindingsByTarget(ctx context.Context, scope interfaces.Scope, target string) ([]models.Finding, error) {
	return s.find(scope, badgerhold.Where("Target").Eq(target), 0)
}

func (s *FindingStorage) ListFindings(ctx context.Context, scope interfaces.Scope, capability models.Capability, limit int) ([]models.Finding, error) {
	query := badgerhold.Where("ID").Ne("")
	if capability != "" {
		query = badgerhold.Where("Capability").Eq(capability)
	}
	return s.find(scope, query, limit)
}

func (s *FindingStorage) find(scope interfaces.Scope, query *badgerhold.Query, limit int) ([]models.Finding, error) {
	var records []findingRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}

	result := make([]models.Finding, 0, len(records))
	for _, record := range records {
		if !scope.IsAdmin && record.UserID != "" && record.UserID != scope.UserID {
			continue
		}
		result = append(result, record.Finding)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
