package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// IndicatorStorage implements the IndicatorStorage interface for Badger
type IndicatorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewIndicatorStorage creates a new IndicatorStorage instance
func NewIndicatorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.IndicatorStorage {
	return &IndicatorStorage{
		db:     db,
		logger: logger,
	}
}

func (s *IndicatorStorage) SaveIndicator(ctx context.Context, scope interfaces.Scope, indicator *models.PositiveIndicator) error {
	if indicator.ID == "" {
		return fmt.Errorf("indicator ID is required")
	}
	if !scope.IsAdmin && scope.UserID != "" {
		indicator.UserID = scope.UserID
	}
	if err := s.db.Store().Upsert(indicator.ID, indicator); err != nil {
		return fmt.Errorf("failed to save indicator: %w", err)
	}
	return nil
}

func (s *IndicatorStorage) GetIndicatorsByTarget(ctx context.Context, scope interfaces.Scope, target string) ([]*models.PositiveIndicator, error) {
	var indicators []models.PositiveIndicator
	if err := s.db.Store().Find(&indicators, badgerhold.Where("Target").Eq(target)); err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	result := make([]*models.PositiveIndicator, 0, len(indicators))
	for i := range indicators {
		if !scope.IsAdmin && indicators[i].UserID != "" && indicators[i].UserID != scope.UserID {
			continue
		}
		result = append(result, &indicators[i])
	}
	return result, nil
}
