// -----------------------------------------------------------------------
// Dark-web pipeline - discover, plan, crawl, finalize
// -----------------------------------------------------------------------

package darkweb

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

// dbFallbackLimit caps how many prior URLs a run borrows from the URL
// database when discovery comes back empty
const dbFallbackLimit = 10

// offlineFailureThreshold is how many consecutive fetch failures mark a
// URL Offline in the URL database
const offlineFailureThreshold = 3

// Collector is the dark-web intelligence collector. It owns the Tor
// fetcher, the engine set, and the rule set; per-run state (bloom filter,
// site graph, history) lives in a Crawler created for each job.
type Collector struct {
	config   *common.Config
	logger   arbor.ILogger
	fetcher  Fetcher
	engines  []Engine
	rules    *RuleSet
	urlStore interfaces.URLStorage
}

// NewCollector creates the dark-web collector. Rule files are loaded once
// at construction; missing files degrade to the light analyzer.
func NewCollector(config *common.Config, urlStore interfaces.URLStorage, logger arbor.ILogger) (*Collector, error) {
	fetcher, err := NewFetcher(&config.Tor, &config.Crawler, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create tor fetcher: %w", err)
	}
	return &Collector{
		config:   config,
		logger:   logger,
		fetcher:  fetcher,
		engines:  NewEngines(&config.Discovery, fetcher, logger),
		rules:    LoadRules(config.DarkWeb.YaraRulesDir, logger),
		urlStore: urlStore,
	}, nil
}

// SetFetcher swaps the page fetcher; tests use a canned implementation
func (c *Collector) SetFetcher(fetcher Fetcher) {
	c.fetcher = fetcher
}

// SetEngines swaps the discovery engine set
func (c *Collector) SetEngines(engines []Engine) {
	c.engines = engines
}

func (c *Collector) Capability() models.Capability {
	return models.CapabilityDarkWebIntelligence
}

func (c *Collector) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"max_urls":       c.config.DarkWeb.DefaultCrawlLimit,
		"worker_threads": c.config.DarkWeb.MaxWorkers,
		"depth":          c.config.Crawler.MaxDepth,
		"crawl_timeout":  int(c.config.DarkWeb.CrawlTimeout / time.Second),
	}
}

type pipelineRun struct {
	c        *Collector
	job      *models.Job
	pub      interfaces.Publisher
	target   string
	mu       sync.Mutex
	findings []models.Finding

	// crawlFindings counts findings produced by the crawl phase only, for
	// the "no matches" decision
	crawlFindings int
}

func (c *Collector) Run(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
	r := &pipelineRun{c: c, job: job, pub: pub, target: strings.TrimSpace(job.Target)}
	keywords := ExtractKeywords(job.Target)

	pub.Progress(5, fmt.Sprintf("Starting dark-web intelligence for %s", r.target))

	// ----- Discover -----

	discovered := r.discover(ctx, keywords)
	if err := ctx.Err(); err != nil {
		return r.findings, err
	}
	pub.Progress(20, fmt.Sprintf("Discovery complete: %d unique onion URLs", len(discovered)))

	if len(discovered) > 0 && c.urlStore != nil {
		inserted, err := c.urlStore.BatchSave(ctx, discovered, "discovery", "onion", "")
		if err != nil {
			c.logger.Warn().Err(err).Msg("URL batch save failed")
		} else {
			c.logger.Info().Int("discovered", len(discovered)).Int("inserted", inserted).Msg("Discovered URLs persisted")
		}
	}

	// ----- DBFallback -----

	if len(discovered) == 0 {
		discovered = r.dbFallback(ctx)
	}
	if len(discovered) == 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       "Dark Web Intelligence: No URLs Discovered",
			Description: fmt.Sprintf("No onion URLs were found for %s across the configured engines or prior crawls.", r.target),
			Evidence:    map[string]interface{}{"keywords": keywords},
		})
		pub.Progress(100, "Dark-web intelligence complete: nothing to crawl")
		return r.findings, nil
	}

	// ----- Plan -----

	maxURLs := c.config.DarkWeb.DefaultCrawlLimit
	if v, ok := job.GetConfigInt("max_urls"); ok && v > 0 {
		maxURLs = v
	}
	workers := c.config.DarkWeb.MaxWorkers
	if v, ok := job.GetConfigInt("worker_threads"); ok && v > 0 {
		workers = v
	}
	depth := c.config.Crawler.MaxDepth
	if v, ok := job.GetConfigInt("depth"); ok && v >= 0 {
		depth = v
	}
	crawlTimeout := c.config.DarkWeb.CrawlTimeout
	if v, ok := job.GetConfigInt("crawl_timeout"); ok && v > 0 {
		crawlTimeout = time.Duration(v) * time.Second
	}

	toCrawl := discovered
	if len(toCrawl) > maxURLs {
		toCrawl = toCrawl[:maxURLs]
	}

	job.SetMetadata("discovered_urls", discovered)
	job.SetMetadata("crawled_urls", []string{})
	job.SetMetadata("uncrawled_urls", append([]string(nil), toCrawl...))
	pub.Progress(30, fmt.Sprintf("Crawling %d of %d URLs with %d workers", len(toCrawl), len(discovered), workers))

	// ----- Crawl -----

	crawler := NewCrawler(c.fetcher, c.rules, c.urlStore, c.logger)
	tasks := make([]models.CrawlTask, 0, len(toCrawl))
	for _, u := range toCrawl {
		tasks = append(tasks, models.CrawlTask{
			JobID:           job.ID,
			TargetURL:       u,
			Priority:        basePriority - depth,
			ScheduledAt:     time.Now(),
			Depth:           depth,
			ExtractEntities: true,
		})
	}

	crawlCtx, cancel := context.WithTimeout(ctx, crawlTimeout)
	defer cancel()

	total := len(tasks)
	done := 0
	var crawled []string

	crawler.CrawlAll(crawlCtx, tasks, CrawlOptions{
		Workers:          workers,
		Depth:            depth,
		Keywords:         keywords,
		FailureThreshold: offlineFailureThreshold,
	}, func(outcome CrawlOutcome) {
		done++
		if outcome.Err != nil {
			c.logger.Debug().Str("url", outcome.Task.TargetURL).Err(outcome.Err).Msg("Crawl failed")
		} else {
			crawled = append(crawled, outcome.Task.TargetURL)
			r.publishSiteFindings(outcome)
		}

		pct := 30 + (done*60)/total
		if pct > 90 {
			pct = 90
		}
		r.pub.Progress(pct, fmt.Sprintf("Crawled %d/%d URLs", done, total))
	})

	// ----- Finalize -----

	job.SetMetadata("crawled_urls", crawled)
	job.SetMetadata("uncrawled_urls", subtract(toCrawl, crawled))

	if r.crawlFindings == 0 && len(crawled) > 0 {
		r.publish(models.Finding{
			Severity:    models.SeverityInfo,
			RiskScore:   collectors.DefaultScore(models.SeverityInfo),
			Title:       fmt.Sprintf("No matches for %s", r.target),
			Description: fmt.Sprintf("%d dark-web URLs were crawled without any keyword or entity match for %s.", len(crawled), r.target),
			Evidence:    map[string]interface{}{"urls_crawled": len(crawled)},
		})
	}

	pub.Progress(100, fmt.Sprintf(
		"Dark-web intelligence complete: %d URLs crawled, %d findings, %d sites in graph",
		len(crawled), len(r.findings), crawler.Graph().Size()))

	if err := ctx.Err(); err != nil {
		return r.findings, err
	}
	return r.findings, nil
}

// discover fans out to every engine, publishing one interim finding per
// engine as it completes
func (r *pipelineRun) discover(ctx context.Context, keywords []string) []string {
	if len(r.c.engines) == 0 || len(keywords) == 0 {
		return nil
	}

	discoverer := NewDiscoverer(r.c.engines, &r.c.config.Discovery, r.c.logger)

	var mu sync.Mutex
	remaining := make(map[string]int, len(r.c.engines))
	counts := make(map[string]int, len(r.c.engines))
	for _, engine := range r.c.engines {
		remaining[engine.Name()] = len(keywords)
	}

	discoverCtx := ctx
	if r.c.config.DarkWeb.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		discoverCtx, cancel = context.WithTimeout(ctx, r.c.config.DarkWeb.DiscoveryTimeout)
		defer cancel()
	}

	return discoverer.Discover(discoverCtx, keywords, func(result EngineResult) {
		mu.Lock()
		counts[result.Engine] += result.URLCount
		remaining[result.Engine]--
		finished := remaining[result.Engine] == 0
		count := counts[result.Engine]
		mu.Unlock()

		r.pub.Log("info", fmt.Sprintf("Engine %s returned %d URLs for %q", result.Engine, result.URLCount, result.Keyword), nil)
		if finished {
			r.publish(models.Finding{
				Severity:    models.SeverityInfo,
				RiskScore:   collectors.DefaultScore(models.SeverityInfo),
				Title:       fmt.Sprintf("Engine %s discovered %d URLs", result.Engine, count),
				Description: fmt.Sprintf("Search engine %s finished all keywords with %d new onion URLs.", result.Engine, count),
				Evidence:    map[string]interface{}{"engine": result.Engine, "url_count": count},
			})
		}
	})
}

// dbFallback pulls prior non-offline URLs from the URL database
func (r *pipelineRun) dbFallback(ctx context.Context) []string {
	if r.c.urlStore == nil {
		return nil
	}
	records, err := r.c.urlStore.Select(ctx, &interfaces.URLSelectOptions{Limit: dbFallbackLimit})
	if err != nil {
		r.c.logger.Warn().Err(err).Msg("URL database fallback failed")
		return nil
	}
	urls := make([]string, 0, len(records))
	for _, record := range records {
		urls = append(urls, record.URL)
	}
	if len(urls) > 0 {
		r.c.logger.Info().Int("count", len(urls)).Msg("Falling back to prior URL database entries")
	}
	return urls
}

// publishSiteFindings emits the per-URL findings the crawl produced
func (r *pipelineRun) publishSiteFindings(outcome CrawlOutcome) {
	site := outcome.Site
	if site == nil || outcome.Cached {
		return
	}

	if len(site.KeywordsMatched) > 0 {
		severity := site.ThreatLevel.Severity()
		r.publishCrawl(models.Finding{
			Severity:  severity,
			RiskScore: collectors.ClampScore(severity, site.RiskScore*100),
			Title:     fmt.Sprintf("Keyword match on %s site: %s", site.Category, site.URL),
			Description: fmt.Sprintf(
				"Monitored keywords %v appear on %s (category %s, threat %s).",
				site.KeywordsMatched, site.URL, site.Category, site.ThreatLevel),
			Evidence: map[string]interface{}{
				"url":              site.URL,
				"site_id":          site.SiteID,
				"title":            site.Title,
				"category":         string(site.Category),
				"keywords_matched": site.KeywordsMatched,
				"language":         site.Language,
				"site_risk_score":  site.RiskScore,
			},
			AffectedAssets: site.KeywordsMatched,
		})
	}

	for _, entity := range site.ExtractedEntities {
		switch entity.EntityType {
		case models.ExtractedEmail:
			r.publishCrawl(models.Finding{
				Severity:    models.SeverityMedium,
				RiskScore:   65,
				Title:       fmt.Sprintf("Email address exposed on dark-web site: %s", entity.Value),
				Description: fmt.Sprintf("The address %s appears on %s.", entity.Value, site.URL),
				Evidence: map[string]interface{}{
					"url":         site.URL,
					"site_id":     site.SiteID,
					"entity_type": string(entity.EntityType),
					"value":       entity.Value,
					"context":     entity.Context,
				},
			})
		case models.ExtractedCreditCard:
			r.publishCrawl(models.Finding{
				Severity:    models.SeverityHigh,
				RiskScore:   85,
				Title:       "Credit card number exposed on dark-web site",
				Description: fmt.Sprintf("A card number pattern appears on %s.", site.URL),
				Evidence: map[string]interface{}{
					"url":         site.URL,
					"site_id":     site.SiteID,
					"entity_type": string(entity.EntityType),
					"value":       entity.Value,
					"context":     entity.Context,
				},
			})
		}
	}
}

func (r *pipelineRun) publish(f models.Finding) {
	f.ID = common.NewFindingID()
	f.Capability = models.CapabilityDarkWebIntelligence
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

// publishCrawl publishes a finding and counts it toward the crawl phase
func (r *pipelineRun) publishCrawl(f models.Finding) {
	r.mu.Lock()
	r.crawlFindings++
	r.mu.Unlock()
	r.publish(f)
}

// subtract returns the elements of all not present in done
func subtract(all, done []string) []string {
	seen := make(map[string]struct{}, len(done))
	for _, d := range done {
		seen[d] = struct{}{}
	}
	var out []string
	for _, a := range all {
		if _, ok := seen[a]; !ok {
			out = append(out, a)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

var _ interfaces.Collector = (*Collector)(nil)
