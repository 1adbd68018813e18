// -----------------------------------------------------------------------
// Exposure collector - surface-web discovery of exposed assets
// -----------------------------------------------------------------------

package exposure

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"golang.org/x/sync/errgroup"
)

// probeFilterCapacity sizes the per-run probed-URL dedup filter
const probeFilterCapacity = 100_000

// bodySampleLimit bounds how much of a response body is read for marker
// matching
const bodySampleLimit = 64 * 1024

// Phase progress weights
const (
	progressStart      = 5
	progressDorks      = 10
	progressSubdomains = 30
	progressEndpoints  = 50
	progressSensitive  = 65
	progressVCS        = 75
	progressAdmin      = 85
	progressConfig     = 95
)

// Collector discovers exposed assets on the surface web: live subdomains,
// risky endpoints, leaked files, VCS directories, admin panels, and
// config files.
type Collector struct {
	config   *common.ScannerConfig
	logger   arbor.ILogger
	client   *http.Client
	resolver *net.Resolver
}

// NewCollector creates the exposure collector
func NewCollector(config *common.ScannerConfig, logger arbor.ILogger) *Collector {
	return &Collector{
		config: config,
		logger: logger,
		client: &http.Client{
			Timeout: config.HTTPTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		resolver: &net.Resolver{},
	}
}

func (c *Collector) Capability() models.Capability {
	return models.CapabilityExposureDiscovery
}

func (c *Collector) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"dork_generation":       true,
		"subdomain_enumeration": true,
		"endpoint_probing":      true,
		"sensitive_files":       true,
		"source_code_exposure":  true,
		"admin_panels":          true,
		"config_files":          true,
	}
}

// run holds per-execution state so concurrent jobs never share a filter
type run struct {
	c        *Collector
	job      *models.Job
	pub      interfaces.Publisher
	target   string
	probed   *bloom.BloomFilter
	probedMu sync.Mutex

	mu       sync.Mutex
	findings []models.Finding
}

func (c *Collector) Run(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
	r := &run{
		c:      c,
		job:    job,
		pub:    pub,
		target: strings.TrimSpace(strings.ToLower(job.Target)),
		probed: bloom.NewWithEstimates(probeFilterCapacity, 0.001),
	}

	pub.Progress(progressStart, fmt.Sprintf("Starting exposure discovery for %s", r.target))

	type phase struct {
		key     string
		weight  int
		message string
		execute func(ctx context.Context) error
	}
	phases := []phase{
		{"dork_generation", progressDorks, "Generated search queries", r.generateDorks},
		{"subdomain_enumeration", progressSubdomains, "Subdomain enumeration complete", r.enumerateSubdomains},
		{"endpoint_probing", progressEndpoints, "Endpoint probing complete", r.probeEndpoints},
		{"sensitive_files", progressSensitive, "Sensitive file detection complete", r.detectSensitiveFiles},
		{"source_code_exposure", progressVCS, "Source-code exposure check complete", r.checkVCSMarkers},
		{"admin_panels", progressAdmin, "Admin-panel discovery complete", r.discoverAdminPanels},
		{"config_files", progressConfig, "Config-file detection complete", r.detectConfigFiles},
	}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return r.findings, err
		}
		if enabled, ok := job.GetConfigBool(p.key); ok && !enabled {
			pub.Progress(p.weight, fmt.Sprintf("Skipped %s", p.key))
			continue
		}
		if err := p.execute(ctx); err != nil {
			// Phase errors are cancellation only; probes swallow their own
			return r.findings, err
		}
		pub.Progress(p.weight, p.message)
	}

	pub.Progress(100, fmt.Sprintf("Exposure discovery complete: %d findings", len(r.findings)))
	return r.findings, nil
}

func (r *run) publish(f models.Finding) {
	f.ID = common.NewFindingID()
	f.Capability = models.CapabilityExposureDiscovery
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

// shouldProbe returns false when the URL was already fetched this run
func (r *run) shouldProbe(url string) bool {
	r.probedMu.Lock()
	defer r.probedMu.Unlock()
	if r.probed.TestString(url) {
		return false
	}
	r.probed.AddString(url)
	return true
}

// probe fetches a URL and returns its status plus a body sample. Network
// failures return status 0: treated as "not found", never as a finding.
func (r *run) probe(ctx context.Context, method, url string) (int, string) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, ""
	}
	req.Header.Set("User-Agent", common.RandomUserAgent())

	resp, err := r.c.client.Do(req)
	if err != nil {
		r.c.logger.Debug().Str("url", url).Err(err).Msg("Probe failed")
		return 0, ""
	}
	defer resp.Body.Close()

	var body string
	if method != http.MethodHead {
		sample, _ := io.ReadAll(io.LimitReader(resp.Body, bodySampleLimit))
		body = string(sample)
	}
	return resp.StatusCode, body
}

// ----- Phase 1: dork generation -----

func (r *run) generateDorks(ctx context.Context) error {
	queries := make([]string, 0, len(dorkTemplates))
	for _, template := range dorkTemplates {
		queries = append(queries, fmt.Sprintf(template, r.target))
	}

	r.publish(models.Finding{
		Severity:    models.SeverityInfo,
		RiskScore:   collectors.DefaultScore(models.SeverityInfo),
		Title:       fmt.Sprintf("Generated %d search queries for %s", len(queries), r.target),
		Description: "Search engine dork queries for manual or automated exposure review.",
		Evidence: map[string]interface{}{
			"queries": queries,
		},
		Recommendations: []string{
			"Review indexed content for unintended exposure",
			"Use robots.txt and noindex headers for sensitive paths",
		},
	})
	return nil
}

// ----- Phase 2: subdomain enumeration -----

func (r *run) enumerateSubdomains(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.config.Concurrency)

	for _, prefix := range subdomainPrefixes {
		hostname := prefix + "." + r.target
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(gctx, r.c.config.DNSTimeout)
			defer cancel()

			addrs, err := r.c.resolver.LookupHost(lookupCtx, hostname)
			if err != nil || len(addrs) == 0 {
				return nil
			}

			httpsAlive := r.alive(gctx, "https://"+hostname)
			httpAlive := false
			if !httpsAlive {
				httpAlive = r.alive(gctx, "http://"+hostname)
			}
			r.publish(subdomainFinding(hostname, addrs, httpsAlive, httpAlive))
			return nil
		})
	}
	return g.Wait()
}

// subdomainFinding builds the finding for one resolving subdomain. Every
// subdomain finding carries evidence.category="subdomain" so downstream
// consumers can group them.
func subdomainFinding(hostname string, addrs []string, httpsAlive, httpAlive bool) models.Finding {
	if !httpsAlive && !httpAlive {
		// Resolves but serves nothing; still worth recording
		return models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       fmt.Sprintf("Subdomain found: %s", hostname),
			Description: "Subdomain resolves in DNS but no web service responded.",
			Evidence: map[string]interface{}{
				"category":  "subdomain",
				"hostname":  hostname,
				"addresses": addrs,
			},
			AffectedAssets: []string{hostname},
		}
	}

	severity := models.SeverityInfo
	scheme := "https"
	description := "Live subdomain serving over HTTPS."
	if !httpsAlive {
		severity = models.SeverityMedium
		scheme = "http"
		description = "Live subdomain serving over plain HTTP only."
	}
	return models.Finding{
		Severity:    severity,
		RiskScore:   collectors.DefaultScore(severity),
		Title:       fmt.Sprintf("Live subdomain: %s", hostname),
		Description: description,
		Evidence: map[string]interface{}{
			"category":  "subdomain",
			"hostname":  hostname,
			"addresses": addrs,
			"scheme":    scheme,
		},
		AffectedAssets: []string{hostname},
		Recommendations: []string{
			"Confirm the subdomain is intended to be public",
			"Serve all web endpoints over HTTPS",
		},
	}
}

func (r *run) alive(ctx context.Context, url string) bool {
	if !r.shouldProbe(url) {
		return false
	}
	status, _ := r.probe(ctx, http.MethodHead, url)
	if status == 0 {
		// Some servers reject HEAD; retry with GET once
		status, _ = r.probe(ctx, http.MethodGet, url)
	}
	return status >= 200 && status < 500
}

// ----- Phase 3: endpoint probing -----

// classifyEndpoint maps a probed path to finding severity
func classifyEndpoint(path string) models.Severity {
	switch {
	case strings.HasPrefix(path, "/.git"), strings.HasPrefix(path, "/.svn"),
		strings.HasPrefix(path, "/.env"), strings.HasPrefix(path, "/.htpasswd"):
		return models.SeverityCritical
	case strings.Contains(path, "phpinfo"), strings.Contains(path, "actuator/env"),
		strings.Contains(path, "pprof"), strings.Contains(path, "jmx-console"),
		strings.Contains(path, "manager/html"), strings.Contains(path, "elmah"),
		strings.Contains(path, "trace.axd"):
		return models.SeverityHigh
	case strings.Contains(path, "swagger"), strings.Contains(path, "openapi"),
		strings.Contains(path, "graphql"), strings.Contains(path, "graphiql"),
		strings.Contains(path, "server-status"), strings.Contains(path, "server-info"),
		strings.Contains(path, "wp-json"), strings.Contains(path, "metrics"),
		strings.Contains(path, "backup"):
		return models.SeverityMedium
	case strings.Contains(path, "admin"), strings.Contains(path, "login"),
		strings.Contains(path, "wp-"), strings.Contains(path, "console"):
		return models.SeverityLow
	default:
		return models.SeverityInfo
	}
}

func (r *run) probeEndpoints(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.config.Concurrency)

	for _, path := range endpointPaths {
		for _, scheme := range []string{"https", "http"} {
			url := scheme + "://" + r.target + path
			g.Go(func() error {
				if !r.shouldProbe(url) {
					return nil
				}
				status, _ := r.probe(gctx, http.MethodGet, url)
				if status != 200 {
					return nil
				}
				severity := classifyEndpoint(path)
				r.publish(models.Finding{
					Severity:    severity,
					RiskScore:   collectors.DefaultScore(severity),
					Title:       fmt.Sprintf("Accessible endpoint: %s", path),
					Description: fmt.Sprintf("Endpoint %s responded with HTTP 200.", url),
					Evidence: map[string]interface{}{
						"url":         url,
						"path":        path,
						"status_code": status,
					},
					AffectedAssets: []string{url},
				})
				return nil
			})
		}
	}
	return g.Wait()
}

// ----- Phase 4: sensitive file detection -----

func severityForFile(path string) (models.Severity, bool) {
	for ext, critical := range riskyExtensions {
		if strings.HasSuffix(path, ext) {
			if critical {
				return models.SeverityCritical, true
			}
			return models.SeverityHigh, true
		}
	}
	// Extensionless secrets (id_rsa, Dockerfile) still matter
	base := path[strings.LastIndex(path, "/")+1:]
	switch base {
	case "id_rsa", "server.key", "private.key":
		return models.SeverityCritical, true
	case "Dockerfile", "composer.lock", "yarn.lock":
		return models.SeverityLow, true
	}
	return models.SeverityHigh, true
}

func (r *run) detectSensitiveFiles(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.config.Concurrency)

	for _, path := range sensitiveFilePaths {
		url := "https://" + r.target + path
		g.Go(func() error {
			if !r.shouldProbe(url) {
				return nil
			}
			status, body := r.probe(gctx, http.MethodGet, url)
			if status != 200 || len(body) == 0 {
				return nil
			}
			severity, _ := severityForFile(path)
			r.publish(models.Finding{
				Severity:    severity,
				RiskScore:   collectors.DefaultScore(severity),
				Title:       fmt.Sprintf("Sensitive file exposed: %s", path),
				Description: fmt.Sprintf("File %s is publicly downloadable.", url),
				Evidence: map[string]interface{}{
					"url":         url,
					"path":        path,
					"status_code": status,
					"size_bytes":  len(body),
				},
				AffectedAssets: []string{url},
				Recommendations: []string{
					"Remove the file from the web root",
					"Rotate any credentials it contains",
				},
			})
			return nil
		})
	}
	return g.Wait()
}

// ----- Phase 5: source-code exposure -----

func (r *run) checkVCSMarkers(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.config.Concurrency)

	for _, marker := range vcsMarkers {
		url := "https://" + r.target + marker
		g.Go(func() error {
			if !r.shouldProbe(url) {
				return nil
			}
			status, _ := r.probe(gctx, http.MethodGet, url)
			if status != 200 {
				return nil
			}
			r.publish(models.Finding{
				Severity:    models.SeverityCritical,
				RiskScore:   90,
				Title:       fmt.Sprintf("Source control exposure: %s", marker),
				Description: fmt.Sprintf("Version-control metadata at %s is publicly readable; repository contents are likely recoverable.", url),
				Evidence: map[string]interface{}{
					"url":         url,
					"marker":      marker,
					"status_code": status,
				},
				AffectedAssets: []string{url},
				Recommendations: []string{
					"Block access to VCS directories at the web server",
					"Audit the repository history for committed secrets",
				},
			})
			return nil
		})
	}
	return g.Wait()
}

// ----- Phase 6: admin-panel discovery -----

func (r *run) discoverAdminPanels(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.config.Concurrency)

	for _, path := range adminPanelPaths {
		url := "https://" + r.target + path
		g.Go(func() error {
			if !r.shouldProbe(url) {
				return nil
			}
			status, body := r.probe(gctx, http.MethodGet, url)
			// A bare 200 without a login surface is probably a catch-all page
			interesting := (status >= 300 && status < 400) || status == 401 || status == 403 ||
				(status == 200 && containsLoginIndicator(body))
			if !interesting {
				return nil
			}
			r.publish(models.Finding{
				Severity:    models.SeverityHigh,
				RiskScore:   collectors.DefaultScore(models.SeverityHigh),
				Title:       fmt.Sprintf("Admin panel discovered: %s", path),
				Description: fmt.Sprintf("Administrative login surface reachable at %s (HTTP %d).", url, status),
				Evidence: map[string]interface{}{
					"url":         url,
					"path":        path,
					"status_code": status,
				},
				AffectedAssets: []string{url},
				Recommendations: []string{
					"Restrict administrative interfaces to trusted networks",
					"Enforce MFA on administrative accounts",
				},
			})
			return nil
		})
	}
	return g.Wait()
}

func containsLoginIndicator(body string) bool {
	lower := strings.ToLower(body)
	for _, indicator := range loginIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// ----- Phase 7: config-file detection -----

func (r *run) detectConfigFiles(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.config.Concurrency)

	for _, path := range configFilePaths {
		url := "https://" + r.target + path
		g.Go(func() error {
			if !r.shouldProbe(url) {
				return nil
			}
			status, body := r.probe(gctx, http.MethodGet, url)
			if status != 200 || len(body) == 0 {
				return nil
			}
			matched := matchedConfigMarkers(body)
			if len(matched) == 0 {
				return nil
			}
			r.publish(models.Finding{
				Severity:    models.SeverityCritical,
				RiskScore:   collectors.DefaultScore(models.SeverityCritical),
				Title:       fmt.Sprintf("Config file exposed: %s", path),
				Description: fmt.Sprintf("Configuration file at %s contains credential markers.", url),
				Evidence: map[string]interface{}{
					"url":         url,
					"path":        path,
					"status_code": status,
					"markers":     matched,
				},
				AffectedAssets: []string{url},
				Recommendations: []string{
					"Remove configuration files from the web root",
					"Rotate every credential the file references",
				},
			})
			return nil
		})
	}
	return g.Wait()
}

func matchedConfigMarkers(body string) []string {
	lower := strings.ToLower(body)
	var matched []string
	for _, marker := range configMarkers {
		if strings.Contains(lower, marker) {
			matched = append(matched, marker)
		}
	}
	return matched
}

// ensure interface compliance
var _ interfaces.Collector = (*Collector)(nil)
