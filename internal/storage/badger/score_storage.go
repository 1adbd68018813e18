package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// scoreHistoryLimit bounds how many score snapshots survive per target
const scoreHistoryLimit = 100

// scoreRecord keys one score snapshot by (target, computed-at)
type scoreRecord struct {
	Key    string `badgerhold:"key"`
	Target string
	UserID string
	Score  models.RiskScore
}

// ScoreStorage implements the ScoreStorage interface for Badger
type ScoreStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScoreStorage creates a new ScoreStorage instance
func NewScoreStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScoreStorage {
	return &ScoreStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScoreStorage) SaveScore(ctx context.Context, scope interfaces.Scope, score *models.RiskScore) error {
	if score.Target == "" {
		return fmt.Errorf("score target is required")
	}

	record := scoreRecord{
		Key:    fmt.Sprintf("%s|%d", score.Target, score.LastUpdated.UnixNano()),
		Target: score.Target,
		Score:  *score,
	}
	if !scope.IsAdmin {
		record.UserID = scope.UserID
	}
	if err := s.db.Store().Upsert(record.Key, &record); err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}

	s.pruneHistory(score.Target)
	return nil
}

func (s *ScoreStorage) GetScoreHistory(ctx context.Context, scope interfaces.Scope, target string, limit int) ([]*models.RiskScore, error) {
	if limit <= 0 || limit > scoreHistoryLimit {
		limit = scoreHistoryLimit
	}

	var records []scoreRecord
	query := badgerhold.Where("Target").Eq(target).SortBy("Key")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}

	scores := make([]*models.RiskScore, 0, len(records))
	for i := range records {
		if !scope.IsAdmin && records[i].UserID != "" && records[i].UserID != scope.UserID {
			continue
		}
		scores = append(scores, &records[i].Score)
	}
	// Oldest first; keep only the trailing window
	if len(scores) > limit {
		scores = scores[len(scores)-limit:]
	}
	return scores, nil
}

// pruneHistory drops snapshots beyond the per-target window
func (s *ScoreStorage) pruneHistory(target string) {
	var records []scoreRecord
	query := badgerhold.Where("Target").Eq(target).SortBy("Key")
	if err := s.db.Store().Find(&records, query); err != nil {
		s.logger.Warn().Err(err).Str("target", target).Msg("Failed to read score history for pruning")
		return
	}
	if len(records) <= scoreHistoryLimit {
		return
	}
	for _, record := range records[:len(records)-scoreHistoryLimit] {
		if err := s.db.Store().Delete(record.Key, &scoreRecord{}); err != nil {
			s.logger.Warn().Err(err).Str("key", record.Key).Msg("Failed to prune score snapshot")
		}
	}
}
