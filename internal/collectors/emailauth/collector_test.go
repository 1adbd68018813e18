package emailauth

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/models"
)

// fakeResolver serves canned DNS answers keyed by query name
type fakeResolver struct {
	txt    map[string][]string
	mx     map[string][]*net.MX
	hosts  map[string][]string
	ptr    map[string][]string
	tlsa   map[string][]string
	dnskey map[string]bool
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if records, ok := f.txt[name]; ok {
		return records, nil
	}
	return nil, fmt.Errorf("no TXT records for %s", name)
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if records, ok := f.mx[name]; ok {
		return records, nil
	}
	return nil, fmt.Errorf("no MX records for %s", name)
}

func (f *fakeResolver) LookupHost(ctx context.Context, name string) ([]string, error) {
	if addrs, ok := f.hosts[name]; ok {
		return addrs, nil
	}
	return nil, fmt.Errorf("no such host: %s", name)
}

func (f *fakeResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	if names, ok := f.ptr[addr]; ok {
		return names, nil
	}
	return nil, fmt.Errorf("no PTR for %s", addr)
}

func (f *fakeResolver) LookupTLSA(ctx context.Context, name string) ([]string, error) {
	return f.tlsa[name], nil
}

func (f *fakeResolver) LookupDNSKEY(ctx context.Context, name string) (bool, error) {
	return f.dnskey[name], nil
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

func newTestCollector(resolver Resolver) *Collector {
	config := common.NewDefaultConfig().Scanner
	c := NewCollector(&config, common.GetLogger())
	c.resolver = resolver
	return c
}

func findByTitle(findings []models.Finding, title string) *models.Finding {
	for i := range findings {
		if findings[i].Title == title {
			return &findings[i]
		}
	}
	return nil
}

func TestCollector_NoSPFRecord(t *testing.T) {
	resolver := &fakeResolver{txt: map[string][]string{}}
	c := newTestCollector(resolver)
	pub := &recordingPublisher{}
	job := models.NewJob("job-spf000000001", models.CapabilityEmailSecurity, "example.com", map[string]interface{}{
		"dkim_sweep":  false,
		"deep_checks": false,
	})

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)

	spf := findByTitle(findings, "No SPF Record Found")
	require.NotNil(t, spf)
	assert.Equal(t, models.SeverityHigh, spf.Severity)
	assert.Equal(t, 75.0, spf.RiskScore)
	assert.Equal(t, "job-spf000000001", spf.JobID())
}

func TestCollector_WellConfiguredDomain(t *testing.T) {
	resolver := &fakeResolver{
		txt: map[string][]string{
			"example.com":                      {"v=spf1 include:_spf.example.net -all"},
			"_dmarc.example.com":               {"v=DMARC1; p=reject; pct=100; rua=mailto:dmarc@example.com"},
			"google._domainkey.example.com":    {"v=DKIM1; k=rsa; p=MIGf"},
			"selector1._domainkey.example.com": {"v=DKIM1; k=rsa; p=MIGf"},
		},
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mx1.example.com.", Pref: 10}},
		},
		hosts:  map[string][]string{"mx1.example.com": {"192.0.2.10"}},
		ptr:    map[string][]string{"192.0.2.10": {"mx1.example.com."}},
		dnskey: map[string]bool{"example.com": true},
	}
	c := newTestCollector(resolver)
	pub := &recordingPublisher{}
	job := models.NewJob("job-good00000001", models.CapabilityEmailSecurity, "example.com", nil)

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)

	assert.NotNil(t, findByTitle(findings, "SPF record properly configured"))
	assert.NotNil(t, findByTitle(findings, "DMARC enforcement at p=reject"))
	assert.NotNil(t, findByTitle(findings, "DKIM configured (2 selectors)"))

	risk := findByTitle(findings, "Email spoofing risk: low")
	require.NotNil(t, risk)
	assert.Equal(t, 0, risk.Evidence["problem_factors"])

	// Score finding carries the four compliance scores
	var score *models.Finding
	for i := range findings {
		if _, ok := findings[i].Evidence["security_score"]; ok {
			score = &findings[i]
		}
	}
	require.NotNil(t, score)
	compliance := score.Evidence["compliance"].(map[string]float64)
	assert.Equal(t, 100.0, compliance["rfc7208_spf"])
	assert.Equal(t, 100.0, compliance["rfc6376_dkim"])
	assert.Equal(t, 100.0, compliance["rfc7489_dmarc"])
}

func TestCollector_SpoofableDomain(t *testing.T) {
	// SPF softfail, DMARC p=none, no DKIM
	resolver := &fakeResolver{
		txt: map[string][]string{
			"example.com":        {"v=spf1 include:_spf.example.net ~all"},
			"_dmarc.example.com": {"v=DMARC1; p=none"},
		},
	}
	c := newTestCollector(resolver)
	pub := &recordingPublisher{}
	job := models.NewJob("job-bad000000001", models.CapabilityEmailSecurity, "example.com", map[string]interface{}{
		"deep_checks":     false,
		"bypass_analysis": true,
	})

	findings, err := c.Run(context.Background(), job, pub)
	require.NoError(t, err)

	// Three problematic factors: SPF issues, DMARC issues, no DKIM
	risk := findByTitle(findings, "Email spoofing risk: critical")
	require.NotNil(t, risk)
	assert.Equal(t, 3, risk.Evidence["problem_factors"])

	assert.NotNil(t, findByTitle(findings, "DMARC bypass possible: Monitoring-only policy bypass"))
	assert.NotNil(t, findByTitle(findings, "DMARC bypass possible: SPF softfail alignment abuse"))
	assert.NotNil(t, findByTitle(findings, "DMARC bypass possible: Unsigned mail impersonation"))
	assert.NotNil(t, findByTitle(findings, "DMARC bypass possible: Subdomain spoofing"))
}

func TestAnalyzeSPF(t *testing.T) {
	tests := []struct {
		record string
		issues int
		substr string
	}{
		{"v=spf1 include:x.com -all", 0, ""},
		{"v=spf1 +all", 1, "+all"},
		{"v=spf1 include:x.com ~all", 1, "~all"},
		{"v=spf1 include:x.com ?all", 1, "?all"},
		{"v=spf1 include:x.com", 1, "no explicit"},
		{"v=spf1 ptr -all", 1, "ptr"},
	}
	for _, tt := range tests {
		issues := analyzeSPF(tt.record)
		require.Len(t, issues, tt.issues, "record %q", tt.record)
		if tt.substr != "" {
			assert.Contains(t, issues[0], tt.substr)
		}
	}
}

func TestAnalyzeSPF_LookupLimit(t *testing.T) {
	record := "v=spf1"
	for i := 0; i < 11; i++ {
		record += fmt.Sprintf(" include:spf%d.example.com", i)
	}
	record += " -all"

	issues := analyzeSPF(record)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "RFC 7208 limit")
}

func TestAnalyzeDMARC(t *testing.T) {
	policy, issues := analyzeDMARC("v=DMARC1; p=reject; pct=100; rua=mailto:a@b.c")
	assert.Equal(t, "reject", policy)
	assert.Empty(t, issues)

	policy, issues = analyzeDMARC("v=DMARC1; p=none")
	assert.Equal(t, "none", policy)
	assert.NotEmpty(t, issues)

	policy, issues = analyzeDMARC("v=DMARC1; p=quarantine; pct=50; rua=mailto:a@b.c")
	assert.Equal(t, "quarantine", policy)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "pct=50")

	_, issues = analyzeDMARC("v=DMARC1; p=reject; sp=none; rua=mailto:a@b.c")
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "sp=none")
}

func TestScoreDMARC(t *testing.T) {
	assert.Equal(t, 0.0, scoreDMARC("", "", nil))
	assert.Equal(t, 100.0, scoreDMARC("v=DMARC1; p=reject", "reject", nil))
	assert.Equal(t, 75.0, scoreDMARC("v=DMARC1; p=quarantine", "quarantine", nil))
	assert.Equal(t, 40.0, scoreDMARC("v=DMARC1; p=none", "none", []string{"p=none monitors but does not act"}))
}

func TestDKIMSelectorCount(t *testing.T) {
	assert.GreaterOrEqual(t, len(dkimSelectors), 18)
	assert.GreaterOrEqual(t, len(mailSubdomains), 10)
}
