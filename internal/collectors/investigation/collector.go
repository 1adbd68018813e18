// -----------------------------------------------------------------------
// Investigation collector - capture, domain tree, similarity, reputation
// -----------------------------------------------------------------------

package investigation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// Collector investigates a URL with a headless page capture
type Collector struct {
	config   *common.CrawlerConfig
	logger   arbor.ILogger
	capturer Capturer
	netlogs  interfaces.NetworkLogStorage
	octx     interfaces.OrchestratorContext
}

// NewCollector creates the investigation collector. netlogs and octx may
// be nil; telemetry persistence and the dark-web cross-reference are
// skipped without them.
func NewCollector(config *common.CrawlerConfig, netlogs interfaces.NetworkLogStorage, logger arbor.ILogger, octx interfaces.OrchestratorContext) *Collector {
	return &Collector{
		config:   config,
		logger:   logger,
		capturer: NewCapturer(),
		netlogs:  netlogs,
		octx:     octx,
	}
}

// SetCapturer swaps the page capturer; tests use a canned implementation
func (c *Collector) SetCapturer(capturer Capturer) {
	c.capturer = capturer
}

func (c *Collector) Capability() models.Capability {
	return models.CapabilityInvestigation
}

func (c *Collector) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"screenshot_similarity": false,
		"reference_dir":         "./data/references",
		"similarity_threshold":  defaultSimilarityThreshold,
		"reputation_check":      true,
		"darkweb_crossref":      true,
	}
}

type investigationRun struct {
	c        *Collector
	job      *models.Job
	pub      interfaces.Publisher
	target   string
	mu       sync.Mutex
	findings []models.Finding
}

func (c *Collector) Run(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
	r := &investigationRun{c: c, job: job, pub: pub, target: normalizeTarget(job.Target)}

	pub.Progress(5, fmt.Sprintf("Starting investigation of %s", r.target))

	pageURL := job.Target
	if !strings.Contains(pageURL, "://") {
		pageURL = "https://" + pageURL
	}

	capture, err := c.capturer.Capture(ctx, pageURL, c.config.PageTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return r.findings, ctx.Err()
		}
		c.logger.Warn().Str("target", r.target).Err(err).Msg("Page capture failed")
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       "Page capture failed",
			Description: fmt.Sprintf("The page could not be loaded headlessly: %v. The target may be offline or blocking automation.", err),
			Evidence:    map[string]interface{}{"url": pageURL},
		})
		pub.Progress(100, "Investigation complete: page unreachable")
		return r.findings, nil
	}
	pub.Progress(30, fmt.Sprintf("Page captured: %d network requests", len(capture.Entries)))
	c.persistNetworkLogs(ctx, job, r.target, capture.Entries)

	tree := BuildDomainTree(r.target, capture.Entries)
	r.emitComposition(tree, capture.FinalURL)
	pub.Progress(60, "Domain tree built")

	if err := ctx.Err(); err != nil {
		return r.findings, err
	}

	if enabled, _ := job.GetConfigBool("screenshot_similarity"); enabled && len(capture.Screenshot) > 0 {
		r.checkSimilarity(capture.Screenshot)
	}
	pub.Progress(75, "Similarity check complete")

	if enabled, ok := job.GetConfigBool("reputation_check"); !ok || enabled {
		r.checkReputation()
	}

	if enabled, ok := job.GetConfigBool("darkweb_crossref"); !ok || enabled {
		r.crossReferenceDarkWeb(ctx)
	}
	pub.Progress(90, "Cross-reference complete")

	pub.Progress(100, fmt.Sprintf("Investigation complete: %d findings", len(r.findings)))
	return r.findings, nil
}

// persistNetworkLogs records the capture's request log as durable network
// telemetry; the network-security collector analyzes it later
func (c *Collector) persistNetworkLogs(ctx context.Context, job *models.Job, target string, entries []HAREntry) {
	if c.netlogs == nil || len(entries) == 0 {
		return
	}

	now := time.Now()
	logs := make([]models.NetworkLog, 0, len(entries))
	for _, e := range entries {
		client := e.InitiatorHost
		if client == "" {
			client = target
		}
		logs = append(logs, models.NetworkLog{
			JobID:         job.ID,
			Target:        target,
			ConnectionKey: models.ConnKey(client, e.Host),
			Host:          e.Host,
			URL:           e.URL,
			Protocol:      "http",
			Status:        e.Status,
			Bytes:         e.Size,
			MimeType:      e.MimeType,
			ObservedAt:    now,
		})
	}

	scope := interfaces.AdminScope
	if userID := job.UserID(); userID != "" {
		scope = interfaces.Scope{UserID: userID}
	}
	if err := c.netlogs.SaveNetworkLogs(ctx, scope, logs); err != nil {
		c.logger.Warn().Str("target", target).Err(err).Msg("Network log persistence failed")
	}
}

func (r *investigationRun) publish(f models.Finding) {
	f.ID = common.NewFindingID()
	f.Capability = models.CapabilityInvestigation
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

// ----- page composition -----

func (r *investigationRun) emitComposition(tree *DomainTree, finalURL string) {
	severity := severityForPageRisk(tree.RiskScore)
	r.publish(models.Finding{
		Severity:  severity,
		RiskScore: collectors.ClampScore(severity, tree.RiskScore),
		Title:     fmt.Sprintf("Page load composition: %d domains, %d trackers", tree.TotalDomains, len(tree.TrackerHosts)),
		Description: fmt.Sprintf(
			"Loading %s contacted %d domains (%d third-party, %d trackers) across %d redirects, transferring %d bytes.",
			r.target, tree.TotalDomains, len(tree.ThirdPartyHosts), len(tree.TrackerHosts), tree.RedirectCount, tree.TotalBytes),
		Evidence: map[string]interface{}{
			"final_url":         finalURL,
			"total_domains":     tree.TotalDomains,
			"third_party_hosts": tree.ThirdPartyHosts,
			"tracker_hosts":     tree.TrackerHosts,
			"redirect_count":    tree.RedirectCount,
			"total_bytes":       tree.TotalBytes,
			"page_risk_score":   tree.RiskScore,
			"domain_tree":       tree.Root,
		},
		AffectedAssets: tree.TrackerHosts,
	})
}

// severityForPageRisk maps the composition score into a severity band
func severityForPageRisk(score float64) models.Severity {
	switch {
	case score >= 70:
		return models.SeverityHigh
	case score >= 40:
		return models.SeverityMedium
	case score >= 10:
		return models.SeverityLow
	default:
		return models.SeverityInfo
	}
}

// ----- screenshot similarity -----

func (r *investigationRun) checkSimilarity(screenshot []byte) {
	referenceDir, _ := r.job.GetConfigString("reference_dir")
	if referenceDir == "" {
		return
	}
	threshold := float64(defaultSimilarityThreshold)
	if t, ok := r.job.GetConfigInt("similarity_threshold"); ok {
		threshold = float64(t)
	}

	matches, err := CompareScreenshot(screenshot, referenceDir, threshold)
	if err != nil {
		r.c.logger.Debug().Str("target", r.target).Err(err).Msg("Screenshot similarity check skipped")
		return
	}
	for _, match := range matches {
		r.publish(models.Finding{
			Severity:  models.SeverityHigh,
			RiskScore: collectors.ClampScore(models.SeverityHigh, match.Similarity),
			Title:     fmt.Sprintf("Visual similarity to %s", match.Reference),
			Description: fmt.Sprintf(
				"The captured page is %.1f%% visually similar to reference %s; the target may be impersonating a known page.",
				match.Similarity, match.Reference),
			Evidence: map[string]interface{}{
				"reference":  match.Reference,
				"similarity": match.Similarity,
				"threshold":  threshold,
			},
		})
	}
}

// ----- reputation -----

func (r *investigationRun) checkReputation() {
	for _, issue := range CheckReputation(r.target) {
		switch issue.Kind {
		case "typosquat":
			r.publish(models.Finding{
				Severity:    models.SeverityHigh,
				RiskScore:   collectors.DefaultScore(models.SeverityHigh),
				Title:       fmt.Sprintf("Possible typosquat of %s", issue.Against),
				Description: fmt.Sprintf("The domain label %q is within edit distance %d of the brand %q.", issue.Detail, typosquatThreshold, issue.Against),
				Evidence: map[string]interface{}{
					"label": issue.Detail,
					"brand": issue.Against,
				},
			})
		case "suspicious_tld":
			r.publish(models.Finding{
				Severity:    models.SeverityMedium,
				RiskScore:   collectors.DefaultScore(models.SeverityMedium),
				Title:       fmt.Sprintf("Suspicious top-level domain %s", issue.Detail),
				Description: fmt.Sprintf("The %s TLD carries a high abuse rate; treat content on %s with suspicion.", issue.Detail, r.target),
				Evidence:    map[string]interface{}{"tld": issue.Detail},
			})
		}
	}
}

// ----- dark-web cross-reference -----

// crossReferenceDarkWeb checks prior dark-web findings for mentions of the
// target domain. Any hit is critical regardless of the original severity.
func (r *investigationRun) crossReferenceDarkWeb(ctx context.Context) {
	if r.c.octx == nil {
		return
	}
	prior, err := r.c.octx.CachedFindings(ctx, r.target)
	if err != nil {
		r.c.logger.Debug().Str("target", r.target).Err(err).Msg("Dark-web cross-reference unavailable")
		return
	}

	var matched []models.Finding
	for _, f := range prior {
		if f.Capability != models.CapabilityDarkWebIntelligence {
			continue
		}
		if findingMentionsDomain(&f, r.target) {
			matched = append(matched, f)
		}
	}
	if len(matched) == 0 {
		return
	}

	urls := make([]string, 0, len(matched))
	ids := make([]string, 0, len(matched))
	for _, f := range matched {
		ids = append(ids, f.ID)
		if u, ok := f.EvidenceString("url"); ok {
			urls = append(urls, u)
		}
	}
	r.publish(models.Finding{
		Severity:  models.SeverityCritical,
		RiskScore: collectors.DefaultScore(models.SeverityCritical),
		Title:     fmt.Sprintf("Target appears in %d dark-web findings", len(matched)),
		Description: fmt.Sprintf(
			"%s was referenced by prior dark-web intelligence results; the domain or its data is being discussed or traded on hidden services.",
			r.target),
		Evidence: map[string]interface{}{
			"matched_finding_ids": ids,
			"matched_urls":        urls,
		},
		Recommendations: []string{
			"Review the referenced dark-web findings and rotate any exposed credentials",
		},
	})
}

// findingMentionsDomain matches the domain against the finding's target,
// title, description, and string evidence values
func findingMentionsDomain(f *models.Finding, domain string) bool {
	if strings.Contains(strings.ToLower(f.Target), domain) {
		return true
	}
	if strings.Contains(strings.ToLower(f.Title), domain) ||
		strings.Contains(strings.ToLower(f.Description), domain) {
		return true
	}
	for _, v := range f.Evidence {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), domain) {
			return true
		}
	}
	return false
}

// normalizeTarget reduces a URL or host to a bare lowercase hostname
func normalizeTarget(target string) string {
	target = strings.TrimSpace(strings.ToLower(target))
	if idx := strings.Index(target, "://"); idx >= 0 {
		target = target[idx+3:]
	}
	if idx := strings.IndexAny(target, "/?#"); idx >= 0 {
		target = target[:idx]
	}
	if idx := strings.Index(target, ":"); idx >= 0 {
		target = target[:idx]
	}
	return strings.TrimPrefix(target, "www.")
}

var _ interfaces.Collector = (*Collector)(nil)
