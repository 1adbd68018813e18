// -----------------------------------------------------------------------
// Domain graph service - entity dedup, idempotent edges, BFS traversal
// -----------------------------------------------------------------------

package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// maxTraversalDepth clamps neighbor queries; deeper walks explode on
// dense graphs without adding signal
const maxTraversalDepth = 5

// Service maintains the domain graph on top of graph storage
type Service struct {
	store  interfaces.GraphStorage
	logger arbor.ILogger
}

// NewService creates a graph service
func NewService(store interfaces.GraphStorage, logger arbor.ILogger) *Service {
	return &Service{store: store, logger: logger}
}

// SaveEntity upserts an entity by (type, value). An existing entity keeps
// its ID and discovery time; metadata and severity are refreshed.
func (s *Service) SaveEntity(ctx context.Context, scope interfaces.Scope, entity *models.GraphEntity) (*models.GraphEntity, error) {
	if entity.Type == "" || entity.Value == "" {
		return nil, fmt.Errorf("entity requires type and value")
	}

	existing, err := s.store.GetEntityByValue(ctx, scope, entity.Type, entity.Value)
	if err == nil && existing != nil {
		existing.Severity = entity.Severity
		if entity.Metadata != nil {
			if existing.Metadata == nil {
				existing.Metadata = make(map[string]interface{})
			}
			for k, v := range entity.Metadata {
				existing.Metadata[k] = v
			}
		}
		if err := s.store.SaveEntity(ctx, scope, existing); err != nil {
			return nil, fmt.Errorf("failed to update entity: %w", err)
		}
		return existing, nil
	}

	if entity.ID == "" {
		entity.ID = common.NewEntityID()
	}
	if entity.DiscoveredAt.IsZero() {
		entity.DiscoveredAt = time.Now()
	}
	if err := s.store.SaveEntity(ctx, scope, entity); err != nil {
		return nil, fmt.Errorf("failed to save entity: %w", err)
	}

	s.logger.Debug().
		Str("entity_id", entity.ID).
		Str("type", entity.Type).
		Str("value", entity.Value).
		Msg("Graph entity saved")

	return entity, nil
}

// GetEntity fetches an entity by ID
func (s *Service) GetEntity(ctx context.Context, scope interfaces.Scope, entityID string) (*models.GraphEntity, error) {
	return s.store.GetEntity(ctx, scope, entityID)
}

// GetEntitiesByType lists entities of one type
func (s *Service) GetEntitiesByType(ctx context.Context, scope interfaces.Scope, entityType string) ([]*models.GraphEntity, error) {
	return s.store.GetEntitiesByType(ctx, scope, entityType)
}

// GetEntityByValue finds an entity by its natural key
func (s *Service) GetEntityByValue(ctx context.Context, scope interfaces.Scope, entityType, value string) (*models.GraphEntity, error) {
	return s.store.GetEntityByValue(ctx, scope, entityType, value)
}

// AddRelationship records a directed edge between two existing entities.
// Writing the same (source, target, relation) twice is idempotent.
func (s *Service) AddRelationship(ctx context.Context, scope interfaces.Scope, sourceID, targetID, relation string, weight float64, metadata map[string]interface{}) error {
	if _, err := s.store.GetEntity(ctx, scope, sourceID); err != nil {
		return fmt.Errorf("source entity not found: %w", err)
	}
	if _, err := s.store.GetEntity(ctx, scope, targetID); err != nil {
		return fmt.Errorf("target entity not found: %w", err)
	}

	edge := &models.GraphEdge{
		Key:      common.EdgeKey(sourceID, targetID, relation),
		UserID:   scope.UserID,
		SourceID: sourceID,
		TargetID: targetID,
		Relation: relation,
		Weight:   weight,
		Metadata: metadata,
		AddedAt:  time.Now(),
	}
	if err := s.store.SaveEdge(ctx, scope, edge); err != nil {
		return fmt.Errorf("failed to save edge: %w", err)
	}
	return nil
}

// Neighbor is an entity reached by traversal plus its distance from the
// starting entity
type Neighbor struct {
	Entity *models.GraphEntity `json:"entity"`
	Depth  int                 `json:"depth"`
}

// GetNeighbors walks outgoing edges breadth-first up to depth hops.
// Depth 0 returns an empty slice; depth is clamped to maxTraversalDepth.
func (s *Service) GetNeighbors(ctx context.Context, scope interfaces.Scope, entityID string, depth int) ([]Neighbor, error) {
	if depth <= 0 {
		return []Neighbor{}, nil
	}
	if depth > maxTraversalDepth {
		depth = maxTraversalDepth
	}

	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}
	neighbors := []Neighbor{}

	for d := 1; d <= depth && len(frontier) > 0; d++ {
		next := []string{}
		for _, id := range frontier {
			edges, err := s.store.GetEdgesFrom(ctx, scope, id)
			if err != nil {
				return nil, fmt.Errorf("failed to read edges: %w", err)
			}
			for _, edge := range edges {
				if visited[edge.TargetID] {
					continue
				}
				visited[edge.TargetID] = true
				entity, err := s.store.GetEntity(ctx, scope, edge.TargetID)
				if err != nil {
					// dangling edge; skip
					continue
				}
				neighbors = append(neighbors, Neighbor{Entity: entity, Depth: d})
				next = append(next, edge.TargetID)
			}
		}
		frontier = next
	}

	return neighbors, nil
}

// FindPath returns the shortest directed path between two entities as a
// list of entity IDs, or nil if no path exists. FindPath(a, a) is [a].
func (s *Service) FindPath(ctx context.Context, scope interfaces.Scope, fromID, toID string) ([]string, error) {
	if fromID == toID {
		return []string{fromID}, nil
	}

	parent := map[string]string{fromID: ""}
	frontier := []string{fromID}

	for len(frontier) > 0 {
		next := []string{}
		for _, id := range frontier {
			edges, err := s.store.GetEdgesFrom(ctx, scope, id)
			if err != nil {
				return nil, fmt.Errorf("failed to read edges: %w", err)
			}
			for _, edge := range edges {
				if _, seen := parent[edge.TargetID]; seen {
					continue
				}
				parent[edge.TargetID] = id
				if edge.TargetID == toID {
					return rebuildPath(parent, fromID, toID), nil
				}
				next = append(next, edge.TargetID)
			}
		}
		frontier = next
	}

	return nil, nil
}

func rebuildPath(parent map[string]string, fromID, toID string) []string {
	path := []string{toID}
	for cur := parent[toID]; cur != ""; cur = parent[cur] {
		path = append(path, cur)
	}
	// parent[fromID] is "", so the loop above stops after appending fromID
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// FindClusters returns connected components of the graph treating edges
// as undirected. Components smaller than minSize are dropped; minSize
// below 2 is raised to 2. Each cluster lists entity IDs sorted for
// deterministic output.
func (s *Service) FindClusters(ctx context.Context, scope interfaces.Scope, minSize int) ([][]string, error) {
	if minSize < 2 {
		minSize = 2
	}

	edges, err := s.store.AllEdges(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to read edges: %w", err)
	}

	adjacency := make(map[string][]string)
	for _, edge := range edges {
		adjacency[edge.SourceID] = append(adjacency[edge.SourceID], edge.TargetID)
		adjacency[edge.TargetID] = append(adjacency[edge.TargetID], edge.SourceID)
	}

	visited := make(map[string]bool, len(adjacency))
	clusters := [][]string{}

	// Iterate nodes in sorted order so cluster ordering is stable
	nodes := make([]string, 0, len(adjacency))
	for id := range adjacency {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	for _, start := range nodes {
		if visited[start] {
			continue
		}
		component := []string{}
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			component = append(component, id)
			for _, next := range adjacency[id] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		if len(component) >= minSize {
			sort.Strings(component)
			clusters = append(clusters, component)
		}
	}

	return clusters, nil
}
