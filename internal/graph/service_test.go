package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// memGraphStore is an in-memory GraphStorage for traversal tests
type memGraphStore struct {
	entities map[string]*models.GraphEntity
	edges    map[string]*models.GraphEdge
}

func newMemGraphStore() *memGraphStore {
	return &memGraphStore{
		entities: make(map[string]*models.GraphEntity),
		edges:    make(map[string]*models.GraphEdge),
	}
}

func (m *memGraphStore) SaveEntity(ctx context.Context, scope interfaces.Scope, entity *models.GraphEntity) error {
	m.entities[entity.ID] = entity
	return nil
}

func (m *memGraphStore) GetEntity(ctx context.Context, scope interfaces.Scope, entityID string) (*models.GraphEntity, error) {
	e, ok := m.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("entity not found: %s", entityID)
	}
	return e, nil
}

func (m *memGraphStore) GetEntitiesByType(ctx context.Context, scope interfaces.Scope, entityType string) ([]*models.GraphEntity, error) {
	var result []*models.GraphEntity
	for _, e := range m.entities {
		if e.Type == entityType {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *memGraphStore) GetEntityByValue(ctx context.Context, scope interfaces.Scope, entityType, value string) (*models.GraphEntity, error) {
	for _, e := range m.entities {
		if e.Type == entityType && e.Value == value {
			return e, nil
		}
	}
	return nil, fmt.Errorf("entity not found: %s/%s", entityType, value)
}

func (m *memGraphStore) SaveEdge(ctx context.Context, scope interfaces.Scope, edge *models.GraphEdge) error {
	m.edges[edge.Key] = edge
	return nil
}

func (m *memGraphStore) GetEdgesFrom(ctx context.Context, scope interfaces.Scope, entityID string) ([]*models.GraphEdge, error) {
	var result []*models.GraphEdge
	for _, e := range m.edges {
		if e.SourceID == entityID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *memGraphStore) GetEdgesTo(ctx context.Context, scope interfaces.Scope, entityID string) ([]*models.GraphEdge, error) {
	var result []*models.GraphEdge
	for _, e := range m.edges {
		if e.TargetID == entityID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *memGraphStore) AllEdges(ctx context.Context, scope interfaces.Scope) ([]*models.GraphEdge, error) {
	result := make([]*models.GraphEdge, 0, len(m.edges))
	for _, e := range m.edges {
		result = append(result, e)
	}
	return result, nil
}

func newTestService() (*Service, *memGraphStore) {
	store := newMemGraphStore()
	return NewService(store, common.GetLogger()), store
}

func addEntity(t *testing.T, svc *Service, id, entityType, value string) {
	t.Helper()
	_, err := svc.SaveEntity(context.Background(), interfaces.AdminScope, &models.GraphEntity{
		ID:    id,
		Type:  entityType,
		Value: value,
	})
	require.NoError(t, err)
}

func TestService_SaveEntityDedupsByTypeAndValue(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	first, err := svc.SaveEntity(ctx, interfaces.AdminScope, &models.GraphEntity{
		Type:  models.EntityTypeDomain,
		Value: "example.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := svc.SaveEntity(ctx, interfaces.AdminScope, &models.GraphEntity{
		Type:     models.EntityTypeDomain,
		Value:    "example.com",
		Severity: models.SeverityHigh,
		Metadata: map[string]interface{}{"source": "crawl"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.SeverityHigh, second.Severity)
	assert.Equal(t, "crawl", second.Metadata["source"])
	assert.Len(t, store.entities, 1)
}

func TestService_AddRelationshipRequiresBothEntities(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	addEntity(t, svc, "a", models.EntityTypeDomain, "a.com")

	err := svc.AddRelationship(ctx, interfaces.AdminScope, "a", "missing", models.RelationResolvesTo, 1.0, nil)
	assert.Error(t, err)
}

func TestService_AddRelationshipIdempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	addEntity(t, svc, "a", models.EntityTypeDomain, "a.com")
	addEntity(t, svc, "b", models.EntityTypeIPAddress, "1.2.3.4")

	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "a", "b", models.RelationResolvesTo, 1.0, nil))
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "a", "b", models.RelationResolvesTo, 1.0, nil))

	assert.Len(t, store.edges, 1)
}

func TestService_GetNeighborsByDepth(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// a -> b -> c -> d
	for _, id := range []string{"a", "b", "c", "d"} {
		addEntity(t, svc, id, models.EntityTypeDomain, id+".com")
	}
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "a", "b", models.RelationLinksTo, 1.0, nil))
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "b", "c", models.RelationLinksTo, 1.0, nil))
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "c", "d", models.RelationLinksTo, 1.0, nil))

	zero, err := svc.GetNeighbors(ctx, interfaces.AdminScope, "a", 0)
	require.NoError(t, err)
	assert.Empty(t, zero)

	one, err := svc.GetNeighbors(ctx, interfaces.AdminScope, "a", 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].Entity.ID)
	assert.Equal(t, 1, one[0].Depth)

	two, err := svc.GetNeighbors(ctx, interfaces.AdminScope, "a", 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	// Depth beyond the clamp still terminates and covers the chain
	all, err := svc.GetNeighbors(ctx, interfaces.AdminScope, "a", 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_GetNeighborsHandlesCycles(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	addEntity(t, svc, "a", models.EntityTypeDomain, "a.com")
	addEntity(t, svc, "b", models.EntityTypeDomain, "b.com")
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "a", "b", models.RelationLinksTo, 1.0, nil))
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "b", "a", models.RelationLinksTo, 1.0, nil))

	neighbors, err := svc.GetNeighbors(ctx, interfaces.AdminScope, "a", 5)
	require.NoError(t, err)
	assert.Len(t, neighbors, 1)
}

func TestService_FindPath(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "x"} {
		addEntity(t, svc, id, models.EntityTypeDomain, id+".com")
	}
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "a", "b", models.RelationLinksTo, 1.0, nil))
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "b", "c", models.RelationLinksTo, 1.0, nil))

	path, err := svc.FindPath(ctx, interfaces.AdminScope, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, path)

	self, err := svc.FindPath(ctx, interfaces.AdminScope, "a", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, self)

	none, err := svc.FindPath(ctx, interfaces.AdminScope, "a", "x")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestService_FindClusters(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// Cluster 1: a-b-c; cluster 2: d-e; isolated edge-less node f
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		addEntity(t, svc, id, models.EntityTypeDomain, id+".com")
	}
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "a", "b", models.RelationLinksTo, 1.0, nil))
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "b", "c", models.RelationLinksTo, 1.0, nil))
	require.NoError(t, svc.AddRelationship(ctx, interfaces.AdminScope, "d", "e", models.RelationLinksTo, 1.0, nil))

	clusters, err := svc.FindClusters(ctx, interfaces.AdminScope, 2)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"a", "b", "c"}, clusters[0])
	assert.Equal(t, []string{"d", "e"}, clusters[1])

	big, err := svc.FindClusters(ctx, interfaces.AdminScope, 3)
	require.NoError(t, err)
	require.Len(t, big, 1)
	assert.Equal(t, []string{"a", "b", "c"}, big[0])
}

func TestEdgeKeyIsStable(t *testing.T) {
	assert.Equal(t, common.EdgeKey("a", "b", "links_to"), common.EdgeKey("a", "b", "links_to"))
	assert.NotEqual(t, common.EdgeKey("a", "b", "links_to"), common.EdgeKey("b", "a", "links_to"))
}
