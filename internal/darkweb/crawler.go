// -----------------------------------------------------------------------
// Crawler - bounded-parallel onion crawl with priority queue and filter
// -----------------------------------------------------------------------

package darkweb

import (
	"container/heap"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

const (
	// urlFilterCapacity and urlFilterFPR size the seen-URL bloom filter
	urlFilterCapacity = 10_000_000
	urlFilterFPR      = 0.001

	// perURLTimeout bounds one URL's fetch + analysis
	perURLTimeout = 120 * time.Second

	// basePriority derives task priority from depth: priority = base - depth
	basePriority = 10
)

// CrawlOptions tunes one crawl run
type CrawlOptions struct {
	Workers          int
	Depth            int
	Keywords         []string
	FailureThreshold int // consecutive failures before a URL goes Offline
}

// CrawlOutcome is the result of crawling one URL
type CrawlOutcome struct {
	Task     models.CrawlTask
	Site     *models.OnionSite
	Analysis *PageAnalysis
	Cached   bool
	Err      error
}

// Crawler runs the dark-web crawl phase. One Crawler instance serves one
// pipeline; the bloom filter and graphs are per-instance state.
type Crawler struct {
	fetcher  Fetcher
	analyzer *Analyzer
	rules    *RuleSet
	urlStore interfaces.URLStorage
	graph    *SiteGraph
	history  *CrawlHistory
	logger   arbor.ILogger

	// mu serializes filter tests/adds and mention appends; workers and the
	// dispatcher touch both concurrently. graph and history carry their own
	// locks.
	mu       sync.Mutex
	mentions []models.BrandMention
	filter   *bloom.BloomFilter
}

// NewCrawler creates a crawler over the given fetcher and rule set
func NewCrawler(fetcher Fetcher, rules *RuleSet, urlStore interfaces.URLStorage, logger arbor.ILogger) *Crawler {
	return &Crawler{
		fetcher:  fetcher,
		analyzer: NewAnalyzer(),
		rules:    rules,
		urlStore: urlStore,
		graph:    NewSiteGraph(),
		history:  NewCrawlHistory(),
		filter:   bloom.NewWithEstimates(urlFilterCapacity, urlFilterFPR),
		logger:   logger,
	}
}

// Graph returns the site graph built so far
func (c *Crawler) Graph() *SiteGraph { return c.graph }

// History returns the append-only crawl history
func (c *Crawler) History() *CrawlHistory { return c.history }

// Mentions returns the brand mentions recorded so far
func (c *Crawler) Mentions() []models.BrandMention {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.BrandMention(nil), c.mentions...)
}

// seen reports whether the URL has probably been crawled already
func (c *Crawler) seen(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.TestString(url)
}

// markSeen records the URL in the filter, reporting whether it was
// probably there already
func (c *Crawler) markSeen(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.TestAndAddString(url)
}

func (c *Crawler) addMention(m models.BrandMention) {
	c.mu.Lock()
	c.mentions = append(c.mentions, m)
	c.mu.Unlock()
}

// taskHeap orders crawl tasks by priority, then schedule time
type taskHeap []models.CrawlTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].ScheduledAt.Before(h[j].ScheduledAt)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(models.CrawlTask)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	*h = old[:n-1]
	return task
}

// CrawlAll drains the task set with a bounded worker pool. Outbound links
// found at depth > 0 are pushed back onto the queue with lower priority.
// onOutcome fires once per completed URL, on the dispatcher goroutine.
// Failures never abort the run. ctx carries the whole-crawl envelope.
func (c *Crawler) CrawlAll(ctx context.Context, tasks []models.CrawlTask, opts CrawlOptions, onOutcome func(CrawlOutcome)) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	pending := make(taskHeap, 0, len(tasks))
	for _, t := range tasks {
		pending = append(pending, t)
	}
	heap.Init(&pending)

	results := make(chan CrawlOutcome)
	active := 0

	for pending.Len() > 0 || active > 0 {
		for active < workers && pending.Len() > 0 {
			if ctx.Err() != nil {
				break
			}
			task := heap.Pop(&pending).(models.CrawlTask)
			active++
			go func() {
				results <- c.crawlOne(ctx, task, &opts)
			}()
		}
		if active == 0 {
			// Context expired before anything could be dispatched
			break
		}

		outcome := <-results
		active--

		// Schedule children while depth remains
		if outcome.Err == nil && outcome.Analysis != nil && outcome.Task.Depth > 0 {
			childDepth := outcome.Task.Depth - 1
			for _, link := range outcome.Analysis.OutboundOnions {
				if c.seen(normalizeOnionURL(link)) {
					continue
				}
				heap.Push(&pending, models.CrawlTask{
					JobID:           outcome.Task.JobID,
					TargetURL:       link,
					Priority:        basePriority - childDepth,
					ScheduledAt:     time.Now(),
					Depth:           childDepth,
					ExtractEntities: outcome.Task.ExtractEntities,
				})
			}
		}

		if onOutcome != nil {
			onOutcome(outcome)
		}
	}
}

// crawlOne fetches and analyzes a single URL under the per-URL timeout
func (c *Crawler) crawlOne(ctx context.Context, task models.CrawlTask, opts *CrawlOptions) CrawlOutcome {
	outcome := CrawlOutcome{Task: task}
	crawlURL := normalizeOnionURL(task.TargetURL)
	siteID := common.SiteID(crawlURL)

	// Probably-seen URLs short-circuit to the cached site
	if c.markSeen(crawlURL) {
		if site, ok := c.graph.GetSite(siteID); ok {
			outcome.Site = site
			outcome.Cached = true
			return outcome
		}
	}

	urlCtx, cancel := context.WithTimeout(ctx, perURLTimeout)
	defer cancel()

	status, body, err := c.fetcher.Get(urlCtx, crawlURL)
	c.updateURLStatus(ctx, crawlURL, status, opts.FailureThreshold)
	if err != nil {
		outcome.Err = err
		c.history.Append(models.CrawlRecord{
			URL:       crawlURL,
			SiteID:    siteID,
			Succeeded: false,
			Error:     err.Error(),
			CrawledAt: time.Now(),
		})
		return outcome
	}
	if status != 200 {
		outcome.Err = fmt.Errorf("HTTP %d", status)
		c.history.Append(models.CrawlRecord{
			URL:       crawlURL,
			SiteID:    siteID,
			Succeeded: false,
			Error:     outcome.Err.Error(),
			CrawledAt: time.Now(),
		})
		return outcome
	}

	analysis := c.analyzer.Analyze(crawlURL, body, opts.Keywords)
	c.applyRules(ctx, crawlURL, analysis)

	now := time.Now()
	site := &models.OnionSite{
		SiteID:            siteID,
		URL:               crawlURL,
		Title:             analysis.Title,
		Category:          analysis.Category,
		ThreatLevel:       analysis.ThreatLevel,
		Language:          analysis.Language,
		ContentHash:       common.ContentHash(analysis.Text),
		ExtractedEntities: analysis.Entities,
		KeywordsMatched:   analysis.KeywordsMatched,
		RiskScore:         analysis.RiskScore,
		FirstSeen:         now,
		LastSeen:          now,
		IsOnline:          true,
	}
	for _, link := range analysis.OutboundOnions {
		linkedID := common.SiteID(normalizeOnionURL(link))
		site.LinkedSites = append(site.LinkedSites, linkedID)
		c.graph.AddLink(siteID, linkedID)
	}
	c.graph.AddSite(site)

	for _, keyword := range analysis.KeywordsMatched {
		c.addMention(models.BrandMention{
			MentionID: common.MentionID(keyword, crawlURL, now),
			Keyword:   keyword,
			URL:       crawlURL,
			SiteID:    siteID,
			Snippet:   keywordSnippet(analysis.Text, keyword),
			Threat:    analysis.ThreatLevel,
			SeenAt:    now,
		})
	}

	c.history.Append(models.CrawlRecord{
		URL:       crawlURL,
		SiteID:    siteID,
		Category:  analysis.Category,
		Threat:    analysis.ThreatLevel,
		Succeeded: true,
		CrawledAt: now,
	})

	outcome.Site = site
	outcome.Analysis = analysis
	return outcome
}

// applyRules runs the YARA-subset categorize step and persists the result
// to the URL database. Without loaded rules the light analyzer's verdict
// stands.
func (c *Crawler) applyRules(ctx context.Context, crawlURL string, analysis *PageAnalysis) {
	if c.rules == nil || c.rules.Empty() {
		return
	}

	categoryMatch := BestMatch(c.rules.Categories, analysis.Text)
	keywordMatches := AllMatches(c.rules.Keywords, analysis.Text)

	scoreKeywords := 0
	keywordNames := ""
	for _, m := range keywordMatches {
		scoreKeywords += m.Rule.Score
		if keywordNames != "" {
			keywordNames += ","
		}
		keywordNames += m.Rule.Name
	}

	if categoryMatch == nil && len(keywordMatches) == 0 {
		return
	}

	categorie := string(analysis.Category)
	scoreCategorie := 0
	fullMatch := false
	if categoryMatch != nil {
		categorie = categoryMatch.Rule.Name
		scoreCategorie = categoryMatch.Rule.Score
		fullMatch = categoryMatch.FullMatch
		if mapped := models.SiteCategory(categoryMatch.Rule.Name); categoryWeights[mapped] > 0 {
			analysis.Category = mapped
			analysis.RiskScore = siteRiskScore(mapped, analysis.Entities, len(analysis.KeywordsMatched))
			analysis.ThreatLevel = threatLevelFor(analysis.RiskScore)
		}
	}

	if c.urlStore == nil {
		return
	}
	record, err := c.urlStore.SelectURL(ctx, crawlURL)
	if err != nil || record == nil {
		return
	}
	if err := c.urlStore.UpdateCategorie(ctx, record.ID, categorie, analysis.Title, fullMatch, scoreCategorie, scoreKeywords, keywordNames); err != nil {
		c.logger.Debug().Str("url", crawlURL).Err(err).Msg("URL categorize update failed")
	}
}

// updateURLStatus records the fetch outcome in the URL database
func (c *Crawler) updateURLStatus(ctx context.Context, crawlURL string, status int, failureThreshold int) {
	if c.urlStore == nil {
		return
	}
	record, err := c.urlStore.SelectURL(ctx, crawlURL)
	if err != nil || record == nil {
		return
	}
	if err := c.urlStore.UpdateStatus(ctx, record.ID, crawlURL, status, failureThreshold); err != nil {
		c.logger.Debug().Str("url", crawlURL).Err(err).Msg("URL status update failed")
	}
}

// keywordSnippet returns the text around the first keyword occurrence
func keywordSnippet(text, keyword string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(keyword))
	if idx < 0 {
		return ""
	}
	start := idx - contextRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(keyword) + contextRadius
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
