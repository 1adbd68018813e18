package exposure

import (
	"context"
	"sync"
	"testing"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/models"
)

// recordingPublisher captures everything a collector publishes
type recordingPublisher struct {
	mu       sync.Mutex
	progress []int
	messages []string
	findings []models.Finding
}

func (p *recordingPublisher) Progress(pct int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, pct)
	p.messages = append(p.messages, message)
}

func (p *recordingPublisher) Finding(f models.Finding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findings = append(p.findings, f)
}

func (p *recordingPublisher) Log(level, message string, data map[string]interface{}) {}

func newTestCollector() *Collector {
	config := common.NewDefaultConfig().Scanner
	return NewCollector(&config, common.GetLogger())
}

// dorksOnlyConfig disables every phase that touches the network
func dorksOnlyConfig() map[string]interface{} {
	return map[string]interface{}{
		"subdomain_enumeration": false,
		"endpoint_probing":      false,
		"sensitive_files":       false,
		"source_code_exposure":  false,
		"admin_panels":          false,
		"config_files":          false,
	}
}

func TestCollector_Capability(t *testing.T) {
	c := newTestCollector()
	assert.Equal(t, models.CapabilityExposureDiscovery, c.Capability())
	assert.Equal(t, true, c.DefaultConfig()["subdomain_enumeration"])
}

func TestCollector_DorkGeneration(t *testing.T) {
	c := newTestCollector()
	pub := &recordingPublisher{}
	job := models.NewJob("job-dork00000001", models.CapabilityExposureDiscovery, "Example.COM", dorksOnlyConfig())

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, models.SeverityInfo, f.Severity)
	assert.Contains(t, f.Title, "example.com")
	assert.Equal(t, "job-dork00000001", f.JobID())

	queries, ok := f.Evidence["queries"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(queries), 75)
	assert.Contains(t, queries, "site:example.com")

	// Published findings match returned findings
	require.Len(t, pub.findings, 1)
	assert.Equal(t, f.ID, pub.findings[0].ID)
}

func TestCollector_ProgressIsMonotonic(t *testing.T) {
	c := newTestCollector()
	pub := &recordingPublisher{}
	job := models.NewJob("job-prog00000001", models.CapabilityExposureDiscovery, "example.com", dorksOnlyConfig())

	_, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)

	require.NotEmpty(t, pub.progress)
	assert.Equal(t, progressStart, pub.progress[0])
	assert.Equal(t, 100, pub.progress[len(pub.progress)-1])
	for i := 1; i < len(pub.progress); i++ {
		assert.GreaterOrEqual(t, pub.progress[i], pub.progress[i-1])
	}
}

func TestCollector_CancelledContextStopsRun(t *testing.T) {
	c := newTestCollector()
	pub := &recordingPublisher{}
	job := models.NewJob("job-canc00000001", models.CapabilityExposureDiscovery, "example.com", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, job, pub)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_ShouldProbeDedups(t *testing.T) {
	c := newTestCollector()
	r := &run{
		c:      c,
		target: "example.com",
		probed: bloom.NewWithEstimates(probeFilterCapacity, 0.001),
	}

	assert.True(t, r.shouldProbe("https://example.com/.env"))
	assert.False(t, r.shouldProbe("https://example.com/.env"))
	assert.True(t, r.shouldProbe("https://example.com/.git/config"))
}

func TestClassifyEndpoint(t *testing.T) {
	tests := []struct {
		path     string
		expected models.Severity
	}{
		{"/.git/HEAD", models.SeverityCritical},
		{"/.env", models.SeverityCritical},
		{"/phpinfo.php", models.SeverityHigh},
		{"/actuator/env", models.SeverityHigh},
		{"/debug/pprof/", models.SeverityHigh},
		{"/swagger-ui.html", models.SeverityMedium},
		{"/graphql", models.SeverityMedium},
		{"/admin/login", models.SeverityLow},
		{"/robots.txt", models.SeverityInfo},
		{"/sitemap.xml", models.SeverityInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, classifyEndpoint(tt.path), "path %s", tt.path)
	}
}

func TestSeverityForFile(t *testing.T) {
	critical := []string{"/.env", "/server.key", "/dump.sql", "/id_rsa", "/privatekey.pem"}
	for _, path := range critical {
		severity, ok := severityForFile(path)
		require.True(t, ok)
		assert.Equal(t, models.SeverityCritical, severity, "path %s", path)
	}

	high := []string{"/config.php.bak", "/error.log", "/backup.zip"}
	for _, path := range high {
		severity, ok := severityForFile(path)
		require.True(t, ok)
		assert.Equal(t, models.SeverityHigh, severity, "path %s", path)
	}
}

func TestContainsLoginIndicator(t *testing.T) {
	assert.True(t, containsLoginIndicator(`<input type="password" name="pw">`))
	assert.True(t, containsLoginIndicator("<h1>Sign In</h1>"))
	assert.False(t, containsLoginIndicator("<h1>Welcome to our homepage</h1>"))
}

func TestMatchedConfigMarkers(t *testing.T) {
	body := `{"db": {"host": "localhost", "password": "hunter2", "api_key": "xyz"}}`
	matched := matchedConfigMarkers(body)
	assert.Contains(t, matched, "password")
	assert.Contains(t, matched, "api_key")
	assert.Contains(t, matched, "host")

	assert.Empty(t, matchedConfigMarkers("<html>hello</html>"))
}

func TestWordlistSizes(t *testing.T) {
	assert.GreaterOrEqual(t, len(dorkTemplates), 75)
	assert.GreaterOrEqual(t, len(subdomainPrefixes), 95)
	assert.GreaterOrEqual(t, len(endpointPaths), 50)
	assert.GreaterOrEqual(t, len(sensitiveFilePaths), 40)
}

func TestSubdomainFinding_CarriesCategory(t *testing.T) {
	addrs := []string{"192.0.2.10"}

	live := subdomainFinding("api.example.com", addrs, true, false)
	assert.Equal(t, "subdomain", live.Evidence["category"])
	assert.Equal(t, "https", live.Evidence["scheme"])
	assert.Equal(t, models.SeverityInfo, live.Severity)

	httpOnly := subdomainFinding("legacy.example.com", addrs, false, true)
	assert.Equal(t, "subdomain", httpOnly.Evidence["category"])
	assert.Equal(t, "http", httpOnly.Evidence["scheme"])
	assert.Equal(t, models.SeverityMedium, httpOnly.Severity)

	dnsOnly := subdomainFinding("mx.example.com", addrs, false, false)
	assert.Equal(t, "subdomain", dnsOnly.Evidence["category"])
	assert.NotContains(t, dnsOnly.Evidence, "scheme")
	assert.Equal(t, models.SeverityInfo, dnsOnly.Severity)
}
