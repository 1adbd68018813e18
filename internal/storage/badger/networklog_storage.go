package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// NetworkLogStorage implements the NetworkLogStorage interface for Badger.
// Logs are append-only telemetry; there is no update path.
type NetworkLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNetworkLogStorage creates a new NetworkLogStorage instance
func NewNetworkLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NetworkLogStorage {
	return &NetworkLogStorage{
		db:     db,
		logger: logger,
	}
}

// SaveNetworkLogs inserts a batch of telemetry records
func (s *NetworkLogStorage) SaveNetworkLogs(ctx context.Context, scope interfaces.Scope, logs []models.NetworkLog) error {
	for i := range logs {
		record := logs[i]
		if !scope.IsAdmin {
			record.UserID = scope.UserID
		}
		if err := s.db.Store().Insert(badgerhold.NextSequence(), &record); err != nil {
			return fmt.Errorf("failed to save network log: %w", err)
		}
	}
	return nil
}

// GetNetworkLogsByTarget returns all telemetry recorded for a target
func (s *NetworkLogStorage) GetNetworkLogsByTarget(ctx context.Context, scope interfaces.Scope, target string) ([]models.NetworkLog, error) {
	return s.find(scope, badgerhold.Where("Target").Eq(target))
}

// GetNetworkLogsByConnection returns the telemetry for one connection key
func (s *NetworkLogStorage) GetNetworkLogsByConnection(ctx context.Context, scope interfaces.Scope, connectionKey string) ([]models.NetworkLog, error) {
	return s.find(scope, badgerhold.Where("ConnectionKey").Eq(connectionKey))
}

func (s *NetworkLogStorage) find(scope interfaces.Scope, query *badgerhold.Query) ([]models.NetworkLog, error) {
	var records []models.NetworkLog
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query network logs: %w", err)
	}

	result := make([]models.NetworkLog, 0, len(records))
	for _, record := range records {
		if !scope.IsAdmin && record.UserID != "" && record.UserID != scope.UserID {
			continue
		}
		result = append(result, record)
	}
	return result, nil
}
