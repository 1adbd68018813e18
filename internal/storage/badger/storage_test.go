package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Path: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestJobStorage_SaveAndGet(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	job := models.NewJob("job-abc123def456", models.CapabilityExposureDiscovery, "example.com", nil)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, interfaces.AdminScope, job))

	got, err := manager.JobStorage().GetJob(ctx, interfaces.AdminScope, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.CapabilityExposureDiscovery, got.Capability)
	assert.Equal(t, models.JobStatusPending, got.Status)
}

func TestJobStorage_ScopeEnforcement(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	alice := interfaces.Scope{UserID: "alice"}
	bob := interfaces.Scope{UserID: "bob"}

	job := models.NewJob("job-aaa111bbb222", models.CapabilityEmailSecurity, "example.com", nil)
	require.NoError(t, manager.JobStorage().SaveJob(ctx, alice, job))

	// Owner and admin can read; another user cannot
	_, err := manager.JobStorage().GetJob(ctx, alice, job.ID)
	assert.NoError(t, err)
	_, err = manager.JobStorage().GetJob(ctx, interfaces.AdminScope, job.ID)
	assert.NoError(t, err)
	_, err = manager.JobStorage().GetJob(ctx, bob, job.ID)
	assert.Error(t, err)

	jobs, err := manager.JobStorage().ListJobs(ctx, bob, nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobStorage_ListFilters(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for i, capability := range []models.Capability{
		models.CapabilityExposureDiscovery,
		models.CapabilityEmailSecurity,
		models.CapabilityExposureDiscovery,
	} {
		job := models.NewJob(common.NewJobID(), capability, "example.com", nil)
		job.CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, manager.JobStorage().SaveJob(ctx, interfaces.AdminScope, job))
	}

	exposure, err := manager.JobStorage().ListJobs(ctx, interfaces.AdminScope, &interfaces.JobListOptions{
		Capability: models.CapabilityExposureDiscovery,
	})
	require.NoError(t, err)
	assert.Len(t, exposure, 2)

	limited, err := manager.JobStorage().ListJobs(ctx, interfaces.AdminScope, &interfaces.JobListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFindingStorage_QueryByJobAndTarget(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	findings := []models.Finding{
		{
			ID:         common.NewFindingID(),
			Capability: models.CapabilityExposureDiscovery,
			Severity:   models.SeverityHigh,
			Title:      "Exposed admin panel",
			Target:     "example.com",
			Evidence:   map[string]interface{}{"job_id": "job-1"},
		},
		{
			ID:         common.NewFindingID(),
			Capability: models.CapabilityEmailSecurity,
			Severity:   models.SeverityMedium,
			Title:      "Weak DMARC policy",
			Target:     "example.com",
			Evidence:   map[string]interface{}{"job_id": "job-2"},
		},
	}
	require.NoError(t, manager.FindingStorage().SaveFindings(ctx, interfaces.AdminScope, findings))

	byJob, err := manager.FindingStorage().GetFindingsByJob(ctx, interfaces.AdminScope, "job-1")
	require.NoError(t, err)
	require.Len(t, byJob, 1)
	assert.Equal(t, "Exposed admin panel", byJob[0].Title)

	byTarget, err := manager.FindingStorage().GetFindingsByTarget(ctx, interfaces.AdminScope, "example.com")
	require.NoError(t, err)
	assert.Len(t, byTarget, 2)

	byCapability, err := manager.FindingStorage().ListFindings(ctx, interfaces.AdminScope, models.CapabilityEmailSecurity, 0)
	require.NoError(t, err)
	require.Len(t, byCapability, 1)
	assert.Equal(t, "Weak DMARC policy", byCapability[0].Title)
}

func TestFindingStorage_SaveIsIdempotent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	finding := models.Finding{
		ID:       "finding_fixed",
		Severity: models.SeverityLow,
		Target:   "example.com",
		Evidence: map[string]interface{}{"job_id": "job-1"},
	}
	require.NoError(t, manager.FindingStorage().SaveFinding(ctx, interfaces.AdminScope, &finding))
	require.NoError(t, manager.FindingStorage().SaveFinding(ctx, interfaces.AdminScope, &finding))

	got, err := manager.FindingStorage().GetFindingsByJob(ctx, interfaces.AdminScope, "job-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGraphStorage_EntitiesAndEdges(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.GraphStorage()

	a := &models.GraphEntity{ID: "e-a", Type: models.EntityTypeDomain, Value: "a.com", DiscoveredAt: time.Now()}
	b := &models.GraphEntity{ID: "e-b", Type: models.EntityTypeIPAddress, Value: "1.2.3.4", DiscoveredAt: time.Now()}
	require.NoError(t, store.SaveEntity(ctx, interfaces.AdminScope, a))
	require.NoError(t, store.SaveEntity(ctx, interfaces.AdminScope, b))

	byValue, err := store.GetEntityByValue(ctx, interfaces.AdminScope, models.EntityTypeDomain, "a.com")
	require.NoError(t, err)
	assert.Equal(t, "e-a", byValue.ID)

	edge := &models.GraphEdge{
		Key:      common.EdgeKey("e-a", "e-b", models.RelationResolvesTo),
		SourceID: "e-a",
		TargetID: "e-b",
		Relation: models.RelationResolvesTo,
		Weight:   1.0,
		AddedAt:  time.Now(),
	}
	require.NoError(t, store.SaveEdge(ctx, interfaces.AdminScope, edge))
	require.NoError(t, store.SaveEdge(ctx, interfaces.AdminScope, edge)) // idempotent

	from, err := store.GetEdgesFrom(ctx, interfaces.AdminScope, "e-a")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "e-b", from[0].TargetID)

	all, err := store.AllEdges(ctx, interfaces.AdminScope)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestURLStorage_BatchSaveFiltersExisting(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.URLStorage()

	first, err := store.BatchSave(ctx, []string{
		"http://abc.onion",
		"http://def.onion",
	}, "ahmia", "onion", "example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	// Overlapping batch only inserts the new URL
	second, err := store.BatchSave(ctx, []string{
		"http://abc.onion",
		"http://ghi.onion",
	}, "tor66", "onion", "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, second)

	record, err := store.SelectURL(ctx, "http://abc.onion")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, URLStatusNew, record.Status)
	assert.Equal(t, "ahmia", record.Source)
}

func TestURLStorage_UpdateStatusOfflineThreshold(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.URLStorage()

	_, err := store.BatchSave(ctx, []string{"http://flaky.onion"}, "ahmia", "onion", "example.com")
	require.NoError(t, err)
	record, err := store.SelectURL(ctx, "http://flaky.onion")
	require.NoError(t, err)
	require.NotNil(t, record)

	// Two failures stay non-Offline with threshold 3
	require.NoError(t, store.UpdateStatus(ctx, record.ID, record.URL, 0, 3))
	require.NoError(t, store.UpdateStatus(ctx, record.ID, record.URL, 0, 3))
	record, _ = store.SelectURL(ctx, "http://flaky.onion")
	assert.NotEqual(t, URLStatusOffline, record.Status)
	assert.Equal(t, 2, record.CountStatus)

	// Third consecutive failure flips to Offline
	require.NoError(t, store.UpdateStatus(ctx, record.ID, record.URL, 0, 3))
	record, _ = store.SelectURL(ctx, "http://flaky.onion")
	assert.Equal(t, URLStatusOffline, record.Status)

	// Select excludes Offline records
	records, err := store.Select(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestURLStorage_UpdateStatusSuccessResets(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.URLStorage()

	_, err := store.BatchSave(ctx, []string{"http://alive.onion"}, "ahmia", "onion", "example.com")
	require.NoError(t, err)
	record, err := store.SelectURL(ctx, "http://alive.onion")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, record.ID, record.URL, 0, 3))
	require.NoError(t, store.UpdateStatus(ctx, record.ID, record.URL, 200, 3))

	record, _ = store.SelectURL(ctx, "http://alive.onion")
	assert.Equal(t, URLStatusOnline, record.Status)
	assert.Equal(t, 0, record.CountStatus)
	assert.False(t, record.LastScan.IsZero())
}

func TestURLStorage_UpdateCategorieAndSelectThresholds(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.URLStorage()

	_, err := store.BatchSave(ctx, []string{"http://market.onion", "http://noise.onion"}, "ahmia", "onion", "example.com")
	require.NoError(t, err)
	record, err := store.SelectURL(ctx, "http://market.onion")
	require.NoError(t, err)

	require.NoError(t, store.UpdateCategorie(ctx, record.ID, "marketplace", "Dark Market", true, 40, 25, "example, breach"))

	records, err := store.Select(ctx, &interfaces.URLSelectOptions{MinCategorie: 30, MinKeywords: 20})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "marketplace", records[0].Categorie)
	assert.Equal(t, "Dark Market", records[0].Title)
	assert.True(t, records[0].FullMatchCategorie)
}

func TestNotificationStorage_UnreadFilter(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.NotificationStorage()

	read := &models.Notification{ID: "n-1", UserID: "alice", Title: "done", Read: true, CreatedAt: time.Now()}
	unread := &models.Notification{ID: "n-2", UserID: "alice", Title: "critical finding", CreatedAt: time.Now()}
	require.NoError(t, store.SaveNotification(ctx, interfaces.AdminScope, read))
	require.NoError(t, store.SaveNotification(ctx, interfaces.AdminScope, unread))

	all, err := store.ListNotifications(ctx, interfaces.Scope{UserID: "alice"}, false, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := store.ListNotifications(ctx, interfaces.Scope{UserID: "alice"}, true, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "n-2", pending[0].ID)
}

func TestScoreStorage_HistoryOrdering(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	store := manager.ScoreStorage()

	base := time.Now()
	for i, overall := range []float64{90, 80, 70} {
		score := &models.RiskScore{
			Target:       "example.com",
			OverallScore: overall,
			RiskLevel:    models.RiskLevelForScore(overall),
			LastUpdated:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.SaveScore(ctx, interfaces.AdminScope, score))
	}

	history, err := store.GetScoreHistory(ctx, interfaces.AdminScope, "example.com", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 90.0, history[0].OverallScore)
	assert.Equal(t, 70.0, history[2].OverallScore)

	tail, err := store.GetScoreHistory(ctx, interfaces.AdminScope, "example.com", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 80.0, tail[0].OverallScore)
}

func TestNetworkLogStorage_SaveAndQuery(t *testing.T) {
	manager := newTestManager(t)
	store := manager.NetworkLogStorage()
	ctx := context.Background()

	logs := []models.NetworkLog{
		{JobID: "job-1", Target: "example.com", ConnectionKey: models.ConnKey("example.com", "cdn.example.net"), Host: "cdn.example.net", Status: 200, Bytes: 512, ObservedAt: time.Now()},
		{JobID: "job-1", Target: "example.com", ConnectionKey: models.ConnKey("example.com", "tracker.example.org"), Host: "tracker.example.org", Status: 200, Bytes: 64, ObservedAt: time.Now()},
		{JobID: "job-2", Target: "other.com", ConnectionKey: models.ConnKey("other.com", "cdn.example.net"), Host: "cdn.example.net", Status: 404, ObservedAt: time.Now()},
	}
	require.NoError(t, store.SaveNetworkLogs(ctx, interfaces.Scope{UserID: "user-1"}, logs))

	byTarget, err := store.GetNetworkLogsByTarget(ctx, interfaces.AdminScope, "example.com")
	require.NoError(t, err)
	assert.Len(t, byTarget, 2)

	byConn, err := store.GetNetworkLogsByConnection(ctx, interfaces.AdminScope, models.ConnKey("other.com", "cdn.example.net"))
	require.NoError(t, err)
	require.Len(t, byConn, 1)
	assert.Equal(t, "user-1", byConn[0].UserID, "non-admin writes are stamped with the caller")

	other, err := store.GetNetworkLogsByTarget(ctx, interfaces.Scope{UserID: "user-2"}, "example.com")
	require.NoError(t, err)
	assert.Empty(t, other, "non-admin reads are filtered to the owner")
}
