// -----------------------------------------------------------------------
// Discovery - parallel engine fan-out with per-engine completion callbacks
// -----------------------------------------------------------------------

package darkweb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"golang.org/x/sync/errgroup"
)

// EngineResult reports one engine's completed search
type EngineResult struct {
	Engine   string
	Keyword  string
	URLCount int
	Err      error
}

// Discoverer fans keyword searches out across the configured engines
type Discoverer struct {
	engines []Engine
	config  *common.DiscoveryConfig
	logger  arbor.ILogger
}

// NewDiscoverer creates a discoverer over the given engines
func NewDiscoverer(engines []Engine, config *common.DiscoveryConfig, logger arbor.ILogger) *Discoverer {
	return &Discoverer{engines: engines, config: config, logger: logger}
}

// ExtractKeywords splits a job target into its comma-separated keywords
func ExtractKeywords(target string) []string {
	var keywords []string
	for _, part := range strings.Split(target, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			keywords = append(keywords, part)
		}
	}
	return keywords
}

// Discover queries every engine for every keyword, one worker per engine,
// and returns the deduplicated union of onion URLs. onResult fires as each
// engine finishes so callers can publish interim findings. Engine failures
// degrade to partial results.
func (d *Discoverer) Discover(ctx context.Context, keywords []string, onResult func(EngineResult)) []string {
	var mu sync.Mutex
	seen := make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	for _, engine := range d.engines {
		g.Go(func() error {
			for _, keyword := range keywords {
				engineCtx := gctx
				if d.config.Timeout > 0 {
					var cancel context.CancelFunc
					engineCtx, cancel = context.WithTimeout(gctx, d.config.Timeout)
					defer cancel()
				}

				urls, err := engine.Search(engineCtx, keyword)
				if err != nil {
					d.logger.Warn().
						Str("engine", engine.Name()).
						Str("keyword", keyword).
						Err(err).
						Msg("Engine search failed")
				}

				count := 0
				mu.Lock()
				for _, raw := range urls {
					normalized := normalizeOnionURL(raw)
					if !isOnionURL(normalized) {
						continue
					}
					if _, dup := seen[normalized]; dup {
						continue
					}
					seen[normalized] = struct{}{}
					count++
				}
				mu.Unlock()

				if onResult != nil {
					onResult(EngineResult{
						Engine:   engine.Name(),
						Keyword:  keyword,
						URLCount: count,
						Err:      err,
					})
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()
	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}
