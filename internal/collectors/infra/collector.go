// -----------------------------------------------------------------------
// Infra-config collector - web server configuration audit
// -----------------------------------------------------------------------

package infra

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// securityHeaders is the fixed header checklist with the severity of each
// header's absence
var securityHeaders = map[string]models.Severity{
	"Strict-Transport-Security": models.SeverityMedium,
	"Content-Security-Policy":   models.SeverityMedium,
	"X-Frame-Options":           models.SeverityLow,
	"X-Content-Type-Options":    models.SeverityLow,
	"Referrer-Policy":           models.SeverityLow,
	"Permissions-Policy":        models.SeverityLow,
	"X-XSS-Protection":          models.SeverityInfo,
}

// severityDeduction maps finding severity to its configuration-score cost
var severityDeduction = map[models.Severity]float64{
	models.SeverityCritical: 30,
	models.SeverityHigh:     20,
	models.SeverityMedium:   10,
	models.SeverityLow:      5,
}

var nginxVersionPattern = regexp.MustCompile(`nginx/(\d+\.\d+\.\d+)`)

// Collector audits web server configuration weaknesses
type Collector struct {
	config *common.ScannerConfig
	logger arbor.ILogger
	client *http.Client
	// rawClient never follows redirects; traversal probes must see the
	// original status, not the cleaned-path destination
	rawClient *http.Client
}

// NewCollector creates the infra-config collector. The client follows
// redirects and skips certificate verification: misconfigured servers are
// exactly the interesting ones.
func NewCollector(config *common.ScannerConfig, logger arbor.ILogger) *Collector {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &Collector{
		config: config,
		logger: logger,
		client: &http.Client{
			Timeout:   config.RootTimeout,
			Transport: transport,
		},
		rawClient: &http.Client{
			Timeout:   config.RootTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *Collector) Capability() models.Capability {
	return models.CapabilityInfrastructureTest
}

func (c *Collector) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"crlf_injection":   true,
		"purge_method":     true,
		"variable_leakage": true,
		"path_traversal":   true,
		"hop_by_hop":       true,
		"accel_redirect":   true,
		"php_detection":    true,
		"cve_2017_7529":    true,
	}
}

type infraRun struct {
	c      *Collector
	job    *models.Job
	pub    interfaces.Publisher
	target string

	baseURL      string
	rootStatus   int
	rootBody     string
	rootHeaders  http.Header
	serverHeader string

	mu       sync.Mutex
	findings []models.Finding
}

func (c *Collector) Run(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
	r := &infraRun{c: c, job: job, pub: pub, target: strings.TrimSpace(strings.ToLower(job.Target))}

	pub.Progress(5, fmt.Sprintf("Starting infrastructure audit for %s", r.target))

	if err := r.fetchRoot(ctx); err != nil {
		pub.Log("warn", "Root page unreachable", map[string]interface{}{"target": r.target, "error": err.Error()})
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       fmt.Sprintf("Target unreachable: %s", r.target),
			Description: "Root page could not be fetched over HTTPS or HTTP; configuration audit skipped.",
			Evidence:    map[string]interface{}{"error": err.Error()},
		})
		pub.Progress(100, "Infrastructure audit complete: target unreachable")
		return r.findings, nil
	}
	pub.Progress(15, "Root page fetched")

	r.identifyServer(ctx)
	missingHeaders := r.checkSecurityHeaders()
	pub.Progress(30, "Server identity and headers analyzed")

	type probe struct {
		key     string
		weight  int
		execute func(ctx context.Context)
	}
	probes := []probe{
		{"crlf_injection", 40, r.probeCRLF},
		{"purge_method", 48, r.probePURGE},
		{"variable_leakage", 56, r.probeVariableLeak},
		{"path_traversal", 64, r.probeTraversal},
		{"hop_by_hop", 72, r.probeHopByHop},
		{"accel_redirect", 80, r.probeAccelRedirect},
		{"php_detection", 86, r.detectPHP},
		{"cve_2017_7529", 92, r.probeRangeOverflow},
	}
	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			return r.findings, err
		}
		if enabled, ok := job.GetConfigBool(p.key); ok && !enabled {
			r.pub.Progress(p.weight, fmt.Sprintf("Skipped %s", p.key))
			continue
		}
		p.execute(ctx)
		r.pub.Progress(p.weight, fmt.Sprintf("Probe %s complete", p.key))
	}

	score := r.configurationScore(missingHeaders)
	r.publish(models.Finding{
		Severity:    models.SeverityInfo,
		RiskScore:   collectors.DefaultScore(models.SeverityInfo),
		Title:       fmt.Sprintf("Configuration score: %.0f/100", score),
		Description: fmt.Sprintf("Web server configuration posture for %s.", r.target),
		Evidence: map[string]interface{}{
			"configuration_score": score,
			"missing_headers":     missingHeaders,
			"server":              r.serverHeader,
		},
	})

	pub.Progress(100, fmt.Sprintf("Infrastructure audit complete: %d findings", len(r.findings)))
	return r.findings, nil
}

func (r *infraRun) publish(f models.Finding) {
	f.ID = common.NewFindingID()
	f.Capability = models.CapabilityInfrastructureTest
	f.Target = r.target
	f.RiskScore = collectors.ClampScore(f.Severity, f.RiskScore)
	if f.Evidence == nil {
		f.Evidence = map[string]interface{}{}
	}
	f.Evidence["job_id"] = r.job.ID

	r.mu.Lock()
	r.findings = append(r.findings, f)
	r.mu.Unlock()
	r.pub.Finding(f)
}

// fetchRoot resolves the working scheme and captures the baseline response
func (r *infraRun) fetchRoot(ctx context.Context) error {
	var lastErr error
	for _, scheme := range []string{"https", "http"} {
		url := scheme + "://" + r.target + "/"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("User-Agent", common.RandomUserAgent())
		resp, err := r.c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
		resp.Body.Close()

		r.baseURL = scheme + "://" + r.target
		r.rootStatus = resp.StatusCode
		r.rootBody = string(body)
		r.rootHeaders = resp.Header
		r.serverHeader = resp.Header.Get("Server")
		return nil
	}
	return fmt.Errorf("root fetch failed: %w", lastErr)
}

// request issues one probe request and returns status, headers, and a
// body sample. Failures return status 0.
func (r *infraRun) request(ctx context.Context, method, path string, headers map[string]string) (int, http.Header, string) {
	return r.doRequest(ctx, r.c.client, method, path, headers)
}

// requestRaw is request without redirect following
func (r *infraRun) requestRaw(ctx context.Context, method, path string, headers map[string]string) (int, http.Header, string) {
	return r.doRequest(ctx, r.c.rawClient, method, path, headers)
}

func (r *infraRun) doRequest(ctx context.Context, client *http.Client, method, path string, headers map[string]string) (int, http.Header, string) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, nil)
	if err != nil {
		return 0, nil, ""
	}
	req.Header.Set("User-Agent", common.RandomUserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		r.c.logger.Debug().Str("path", path).Err(err).Msg("Probe request failed")
		return 0, nil, ""
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 128*1024))
	return resp.StatusCode, resp.Header, string(body)
}

// ----- server identity -----

func (r *infraRun) identifyServer(ctx context.Context) {
	if r.serverHeader == "" {
		return
	}

	r.publish(models.Finding{
		Severity:    models.SeverityInfo,
		RiskScore:   collectors.DefaultScore(models.SeverityInfo),
		Title:       fmt.Sprintf("Server identity disclosed: %s", r.serverHeader),
		Description: "The Server response header reveals software and possibly version information.",
		Evidence:    map[string]interface{}{"server": r.serverHeader},
		Recommendations: []string{
			"Suppress version details with server_tokens off or equivalent",
		},
	})

	match := nginxVersionPattern.FindStringSubmatch(r.serverHeader)
	if match == nil {
		return
	}
	detected := match[1]

	latest := r.c.latestNginxVersion(ctx)
	if latest != "" && compareVersions(detected, latest) < 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityMedium,
			RiskScore:   collectors.DefaultScore(models.SeverityMedium),
			Title:       fmt.Sprintf("Outdated nginx version: %s", detected),
			Description: fmt.Sprintf("Detected nginx %s; latest stable is %s.", detected, latest),
			Evidence:    map[string]interface{}{"detected": detected, "latest": latest},
			Recommendations: []string{
				"Upgrade nginx to the latest stable release",
			},
		})
	}

	for _, cve := range knownNginxCVEs(detected) {
		r.publish(models.Finding{
			Severity:    cve.Severity,
			RiskScore:   collectors.DefaultScore(cve.Severity),
			Title:       fmt.Sprintf("nginx %s affected by %s", detected, cve.ID),
			Description: cve.Description,
			Evidence:    map[string]interface{}{"cve": cve.ID, "version": detected},
		})
	}
}

// ----- security headers -----

func (r *infraRun) checkSecurityHeaders() []string {
	var missing []string
	for header := range securityHeaders {
		if r.rootHeaders.Get(header) == "" {
			missing = append(missing, header)
		}
	}
	if len(missing) > 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityLow,
			RiskScore:   collectors.DefaultScore(models.SeverityLow),
			Title:       fmt.Sprintf("%d security headers missing", len(missing)),
			Description: fmt.Sprintf("Response lacks: %s", strings.Join(missing, ", ")),
			Evidence:    map[string]interface{}{"missing_headers": missing},
			Recommendations: []string{
				"Add the missing security headers at the server or proxy layer",
			},
		})
	}
	return missing
}

// configurationScore starts at 100 and deducts per missing header and per
// finding severity, floored at 0.
func (r *infraRun) configurationScore(missingHeaders []string) float64 {
	score := 100.0
	for _, header := range missingHeaders {
		score -= severityDeduction[securityHeaders[header]]
	}
	r.mu.Lock()
	for _, f := range r.findings {
		score -= severityDeduction[f.Severity]
	}
	r.mu.Unlock()
	if score < 0 {
		score = 0
	}
	return score
}

var _ interfaces.Collector = (*Collector)(nil)
