package netsec

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// fakeNetlogStore serves canned telemetry keyed by target
type fakeNetlogStore struct {
	logs      map[string][]models.NetworkLog
	lastScope interfaces.Scope
}

func (s *fakeNetlogStore) SaveNetworkLogs(ctx context.Context, scope interfaces.Scope, logs []models.NetworkLog) error {
	if s.logs == nil {
		s.logs = map[string][]models.NetworkLog{}
	}
	for _, l := range logs {
		s.logs[l.Target] = append(s.logs[l.Target], l)
	}
	return nil
}

func (s *fakeNetlogStore) GetNetworkLogsByTarget(ctx context.Context, scope interfaces.Scope, target string) ([]models.NetworkLog, error) {
	s.lastScope = scope
	return s.logs[target], nil
}

func (s *fakeNetlogStore) GetNetworkLogsByConnection(ctx context.Context, scope interfaces.Scope, connectionKey string) ([]models.NetworkLog, error) {
	var out []models.NetworkLog
	for _, series := range s.logs {
		for _, l := range series {
			if l.ConnectionKey == connectionKey {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	progress []int
	findings []models.Finding
}

func (p *recordingPublisher) Progress(pct int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, pct)
}

func (p *recordingPublisher) Finding(f models.Finding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findings = append(p.findings, f)
}

func (p *recordingPublisher) Log(level, message string, data map[string]interface{}) {}

func TestRun_BeaconingProducesFinding(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeNetlogStore{logs: map[string][]models.NetworkLog{}}
	for i := 0; i < 8; i++ {
		store.logs["example.com"] = append(store.logs["example.com"], models.NetworkLog{
			Target:        "example.com",
			ConnectionKey: "example.com->c2.evil.example",
			Host:          "c2.evil.example",
			Bytes:         256,
			ObservedAt:    base.Add(time.Duration(i) * 30 * time.Second),
		})
	}

	c := NewCollector(store, common.GetLogger())
	pub := &recordingPublisher{}
	job := models.NewJob("job-ns0000000001", models.CapabilityNetworkSecurity, "example.com", nil)
	job.SetMetadata("user_id", "user-1")

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)

	var beacon *models.Finding
	for i := range findings {
		if strings.Contains(findings[i].Title, "Beaconing pattern") {
			beacon = &findings[i]
		}
	}
	require.NotNil(t, beacon, "expected a beaconing finding")
	assert.Equal(t, models.CapabilityNetworkSecurity, beacon.Capability)
	assert.Equal(t, "example.com->c2.evil.example", beacon.Evidence["connection_key"])
	assert.GreaterOrEqual(t, beacon.Severity.Rank(), models.SeverityMedium.Rank())

	// Reads run under the job owner's scope
	assert.Equal(t, "user-1", store.lastScope.UserID)
	assert.Equal(t, 100, pub.progress[len(pub.progress)-1])
}

func TestRun_DetectionsDisabledByConfig(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeNetlogStore{logs: map[string][]models.NetworkLog{}}
	for i := 0; i < 8; i++ {
		store.logs["example.com"] = append(store.logs["example.com"], models.NetworkLog{
			Target:        "example.com",
			ConnectionKey: "example.com->c2.evil.example",
			ObservedAt:    base.Add(time.Duration(i) * 30 * time.Second),
		})
	}

	c := NewCollector(store, common.GetLogger())
	job := models.NewJob("job-ns0000000002", models.CapabilityNetworkSecurity, "example.com", map[string]interface{}{
		"beaconing_detection": false,
		"tunnel_detection":    false,
	})

	findings, err := c.Run(context.Background(), job, &recordingPublisher{})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRun_NoTelemetryRecorded(t *testing.T) {
	c := NewCollector(&fakeNetlogStore{}, common.GetLogger())
	job := models.NewJob("job-ns0000000003", models.CapabilityNetworkSecurity, "quiet.example", nil)

	findings, err := c.Run(context.Background(), job, &recordingPublisher{})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityInfo, findings[0].Severity)
	assert.Contains(t, findings[0].Title, "No network telemetry")
}

func TestRun_NoStoreConfigured(t *testing.T) {
	c := NewCollector(nil, common.GetLogger())
	job := models.NewJob("job-ns0000000004", models.CapabilityNetworkSecurity, "example.com", nil)

	findings, err := c.Run(context.Background(), job, &recordingPublisher{})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Title, "telemetry unavailable")
}
