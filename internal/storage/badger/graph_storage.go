package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// GraphStorage implements the GraphStorage interface for Badger
type GraphStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewGraphStorage creates a new GraphStorage instance
func NewGraphStorage(db *BadgerDB, logger arbor.ILogger) interfaces.GraphStorage {
	return &GraphStorage{
		db:     db,
		logger: logger,
	}
}

func (s *GraphStorage) SaveEntity(ctx context.Context, scope interfaces.Scope, entity *models.GraphEntity) error {
	if entity.ID == "" {
		return fmt.Errorf("entity ID is required")
	}
	if !scope.IsAdmin && scope.UserID != "" {
		entity.UserID = scope.UserID
	}
	if err := s.db.Store().Upsert(entity.ID, entity); err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

func (s *GraphStorage) GetEntity(ctx context.Context, scope interfaces.Scope, entityID string) (*models.GraphEntity, error) {
	var entity models.GraphEntity
	if err := s.db.Store().Get(entityID, &entity); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("entity not found: %s", entityID)
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if !scope.IsAdmin && entity.UserID != "" && entity.UserID != scope.UserID {
		return nil, fmt.Errorf("entity not found: %s", entityID)
	}
	return &entity, nil
}

func (s *GraphStorage) GetEntitiesByType(ctx context.Context, scope interfaces.Scope, entityType string) ([]*models.GraphEntity, error) {
	var entities []models.GraphEntity
	if err := s.db.Store().Find(&entities, badgerhold.Where("Type").Eq(entityType)); err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	result := make([]*models.GraphEntity, 0, len(entities))
	for i := range entities {
		if !scope.IsAdmin && entities[i].UserID != "" && entities[i].UserID != scope.UserID {
			continue
		}
		result = append(result, &entities[i])
	}
	return result, nil
}

func (s *GraphStorage) GetEntityByValue(ctx context.Context, scope interfaces.Scope, entityType, value string) (*models.GraphEntity, error) {
	var entities []models.GraphEntity
	query := badgerhold.Where("Type").Eq(entityType).And("Value").Eq(value)
	if err := s.db.Store().Find(&entities, query); err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	for i := range entities {
		if scope.IsAdmin || entities[i].UserID == "" || entities[i].UserID == scope.UserID {
			return &entities[i], nil
		}
	}
	return nil, fmt.Errorf("entity not found: %s/%s", entityType, value)
}

func (s *GraphStorage) SaveEdge(ctx context.Context, scope interfaces.Scope, edge *models.GraphEdge) error {
	if edge.Key == "" {
		return fmt.Errorf("edge key is required")
	}
	if !scope.IsAdmin && scope.UserID != "" {
		edge.UserID = scope.UserID
	}
	if err := s.db.Store().Upsert(edge.Key, edge); err != nil {
		return fmt.Errorf("failed to save edge: %w", err)
	}
	return nil
}

func (s *GraphStorage) GetEdgesFrom(ctx context.Context, scope interfaces.Scope, entityID string) ([]*models.GraphEdge, error) {
	return s.findEdges(scope, badgerhold.Where("SourceID").Eq(entityID))
}

func (s *GraphStorage) GetEdgesTo(ctx context.Context, scope interfaces.Scope, entityID string) ([]*models.GraphEdge, error) {
	return s.findEdges(scope, badgerhold.Where("TargetID").Eq(entityID))
}

func (s *GraphStorage) AllEdges(ctx context.Context, scope interfaces.Scope) ([]*models.GraphEdge, error) {
	return s.findEdges(scope, badgerhold.Where("Key").Ne(""))
}

func (s *GraphStorage) findEdges(scope interfaces.Scope, query *badgerhold.Query) ([]*models.GraphEdge, error) {
	var edges []models.GraphEdge
	if err := s.db.Store().Find(&edges, query); err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	result := make([]*models.GraphEdge, 0, len(edges))
	for i := range edges {
		if !scope.IsAdmin && edges[i].UserID != "" && edges[i].UserID != scope.UserID {
			continue
		}
		result = append(result, &edges[i])
	}
	return result, nil
}
