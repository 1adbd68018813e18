package investigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// recordingPublisher captures everything a collector publishes
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

// fakeCapturer returns a canned capture without touching a browser
type fakeCapturer struct {
	result *CaptureResult
	err    error
}

func (f *fakeCapturer) Capture(ctx context.Context, pageURL string, timeout time.Duration) (*CaptureResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeOrchestratorContext serves canned prior findings
type fakeOrchestratorContext struct {
	findings []models.Finding
}

func (f *fakeOrchestratorContext) CachedFindings(ctx context.Context, target string) ([]models.Finding, error) {
	return f.findings, nil
}

func newTestCollector(octx *fakeOrchestratorContext) *Collector {
	config := common.NewDefaultConfig().Crawler
	var c *Collector
	if octx != nil {
		c = NewCollector(&config, nil, common.GetLogger(), octx)
	} else {
		c = NewCollector(&config, nil, common.GetLogger(), nil)
	}
	return c
}

func trackedPageCapture() *CaptureResult {
	return &CaptureResult{
		FinalURL: "https://example.com/",
		Entries: []HAREntry{
			{URL: "https://example.com/", Host: "example.com", Status: 200, Size: 5000},
			{URL: "https://static.example.com/app.js", Host: "static.example.com", InitiatorHost: "example.com", Status: 200, Size: 20000},
			{URL: "https://www.google-analytics.com/analytics.js", Host: "www.google-analytics.com", InitiatorHost: "example.com", Status: 200, Size: 40000},
			{URL: "https://connect.facebook.net/sdk.js", Host: "connect.facebook.net", InitiatorHost: "example.com", Status: 200, Size: 30000},
			{URL: "https://cdn.jsdelivr.net/lib.js", Host: "cdn.jsdelivr.net", InitiatorHost: "example.com", Status: 200, Size: 10000},
		},
	}
}

func TestCollector_Capability(t *testing.T) {
	c := newTestCollector(nil)
	assert.Equal(t, models.CapabilityInvestigation, c.Capability())
	assert.Equal(t, true, c.DefaultConfig()["reputation_check"])
}

func TestRun_PageComposition(t *testing.T) {
	c := newTestCollector(nil)
	c.SetCapturer(&fakeCapturer{result: trackedPageCapture()})
	pub := &recordingPublisher{}
	job := models.NewJob("job-invest000001", models.CapabilityInvestigation, "https://Example.COM/page", nil)

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)
	require.NotEmpty(t, findings)

	composition := findings[0]
	assert.Contains(t, composition.Title, "trackers")
	assert.Equal(t, "example.com", composition.Target)
	assert.Equal(t, "job-invest000001", composition.JobID())

	trackers, ok := composition.Evidence["tracker_hosts"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"connect.facebook.net", "www.google-analytics.com"}, trackers)

	thirdParties, ok := composition.Evidence["third_party_hosts"].([]string)
	require.True(t, ok)
	assert.Contains(t, thirdParties, "cdn.jsdelivr.net")
	assert.NotContains(t, thirdParties, "static.example.com")

	// Progress is monotonic and terminates at 100
	last := -1
	for _, pct := range pub.progress {
		assert.GreaterOrEqual(t, pct, last)
		last = pct
	}
	assert.Equal(t, 100, last)
}

func TestRun_CaptureFailure(t *testing.T) {
	c := newTestCollector(nil)
	c.SetCapturer(&fakeCapturer{err: errors.New("browser crashed")})
	pub := &recordingPublisher{}
	job := models.NewJob("job-invest000002", models.CapabilityInvestigation, "example.com", nil)

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityInfo, findings[0].Severity)
	assert.Contains(t, findings[0].Title, "capture failed")
}

func TestRun_CancelledContext(t *testing.T) {
	c := newTestCollector(nil)
	c.SetCapturer(&fakeCapturer{err: context.Canceled})
	pub := &recordingPublisher{}
	job := models.NewJob("job-invest000003", models.CapabilityInvestigation, "example.com", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Run(ctx, job, pub)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DarkWebCrossReference(t *testing.T) {
	octx := &fakeOrchestratorContext{
		findings: []models.Finding{
			{
				ID:          "finding_dw1",
				Capability:  models.CapabilityDarkWebIntelligence,
				Severity:    models.SeverityMedium,
				Title:       "Keyword match on hidden service",
				Description: "mentions example.com credentials",
				Evidence:    map[string]interface{}{"url": "http://abc123.onion/dump"},
			},
			{
				ID:         "finding_other",
				Capability: models.CapabilityEmailSecurity,
				Title:      "example.com has no SPF",
			},
		},
	}
	c := newTestCollector(octx)
	c.SetCapturer(&fakeCapturer{result: trackedPageCapture()})
	pub := &recordingPublisher{}
	job := models.NewJob("job-invest000004", models.CapabilityInvestigation, "example.com", nil)

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)

	var crossRef *models.Finding
	for i := range findings {
		if findings[i].Severity == models.SeverityCritical {
			crossRef = &findings[i]
		}
	}
	require.NotNil(t, crossRef, "expected a critical cross-reference finding")
	assert.Contains(t, crossRef.Title, "dark-web")

	ids, ok := crossRef.Evidence["matched_finding_ids"].([]string)
	require.True(t, ok)
	// The email-security finding does not count even though it names the domain
	assert.Equal(t, []string{"finding_dw1"}, ids)
}

func TestRun_ReputationFindings(t *testing.T) {
	c := newTestCollector(nil)
	c.SetCapturer(&fakeCapturer{result: &CaptureResult{
		FinalURL: "https://paypa1.tk/",
		Entries:  []HAREntry{{URL: "https://paypa1.tk/", Host: "paypa1.tk", Status: 200}},
	}})
	pub := &recordingPublisher{}
	job := models.NewJob("job-invest000005", models.CapabilityInvestigation, "paypa1.tk", nil)

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)

	var sawTLD, sawTyposquat bool
	for _, f := range findings {
		switch {
		case f.Severity == models.SeverityMedium && f.Evidence["tld"] == ".tk":
			sawTLD = true
		case f.Severity == models.SeverityHigh && f.Evidence["brand"] == "paypal":
			sawTyposquat = true
		}
	}
	assert.True(t, sawTLD, "expected a suspicious TLD finding")
	assert.True(t, sawTyposquat, "expected a typosquat finding")
}

func TestBuildDomainTree_Classification(t *testing.T) {
	tree := BuildDomainTree("example.com", trackedPageCapture().Entries)

	assert.Equal(t, 5, tree.TotalDomains)
	assert.Len(t, tree.TrackerHosts, 2)
	assert.Len(t, tree.ThirdPartyHosts, 3)
	assert.Equal(t, int64(105000), tree.TotalBytes)

	// static.example.com is first-party under the same registrable domain
	var static *DomainNode
	for _, child := range tree.Root.Children {
		if child.Host == "static.example.com" {
			static = child
		}
	}
	require.NotNil(t, static)
	assert.True(t, static.FirstParty)
	assert.False(t, static.Tracker)
}

func TestPageRiskScore_Thresholds(t *testing.T) {
	assert.Equal(t, 0.0, pageRiskScore(0, 0, 0, 1))
	assert.Equal(t, 10.0, pageRiskScore(1, 0, 0, 1))
	assert.Equal(t, 30.0, pageRiskScore(2, 5, 0, 3))
	assert.Equal(t, 100.0, pageRiskScore(12, 25, 6, 40))
}

func TestCheckReputation(t *testing.T) {
	assert.Empty(t, CheckReputation("example.com"))
	assert.Empty(t, CheckReputation("google.com"), "the brand itself is not a squat")

	issues := CheckReputation("g00gle.xyz")
	require.Len(t, issues, 2)
	assert.Equal(t, "suspicious_tld", issues[0].Kind)
	assert.Equal(t, "typosquat", issues[1].Kind)
	assert.Equal(t, "google", issues[1].Against)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("paypal", "paypal"))
	assert.Equal(t, 1, levenshtein("paypa1", "paypal"))
	assert.Equal(t, 2, levenshtein("payapl", "paypal"))
	assert.Equal(t, 6, levenshtein("", "paypal"))
}

func TestNormalizeTarget(t *testing.T) {
	assert.Equal(t, "example.com", normalizeTarget("https://WWW.Example.com:8443/path?q=1"))
	assert.Equal(t, "example.com", normalizeTarget("example.com"))
}

// recordingNetlogStore captures persisted telemetry batches
type recordingNetlogStore struct {
	scope interfaces.Scope
	saved []models.NetworkLog
}

func (s *recordingNetlogStore) SaveNetworkLogs(ctx context.Context, scope interfaces.Scope, logs []models.NetworkLog) error {
	s.scope = scope
	s.saved = append(s.saved, logs...)
	return nil
}

func (s *recordingNetlogStore) GetNetworkLogsByTarget(ctx context.Context, scope interfaces.Scope, target string) ([]models.NetworkLog, error) {
	return nil, nil
}

func (s *recordingNetlogStore) GetNetworkLogsByConnection(ctx context.Context, scope interfaces.Scope, connectionKey string) ([]models.NetworkLog, error) {
	return nil, nil
}

func TestRun_PersistsNetworkTelemetry(t *testing.T) {
	config := common.NewDefaultConfig().Crawler
	store := &recordingNetlogStore{}
	c := NewCollector(&config, store, common.GetLogger(), nil)
	c.SetCapturer(&fakeCapturer{result: trackedPageCapture()})

	job := models.NewJob("job-invest000002", models.CapabilityInvestigation, "https://example.com/page", nil)
	job.SetMetadata("user_id", "user-1")

	_, err := c.Run(context.Background(), job, &recordingPublisher{})
	require.NoError(t, err)

	require.Len(t, store.saved, len(trackedPageCapture().Entries))
	assert.Equal(t, "user-1", store.scope.UserID)

	first := store.saved[0]
	assert.Equal(t, "example.com", first.Target)
	assert.Equal(t, "job-invest000002", first.JobID)
	assert.Equal(t, models.ConnKey("example.com", "example.com"), first.ConnectionKey)

	second := store.saved[1]
	assert.Equal(t, models.ConnKey("example.com", "static.example.com"), second.ConnectionKey)
	assert.Equal(t, int64(20000), second.Bytes)
}
