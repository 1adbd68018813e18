// -----------------------------------------------------------------------
// Onion search engines - shared contract and helpers
// -----------------------------------------------------------------------

package darkweb

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"golang.org/x/time/rate"
)

// Engine queries one onion search engine for a keyword and returns the
// raw result URLs it found.
type Engine interface {
	Name() string
	Search(ctx context.Context, keyword string) ([]string, error)
}

// NewEngines instantiates the configured engine subset. Unknown engine
// names are skipped with a warning.
func NewEngines(cfg *common.DiscoveryConfig, fetcher Fetcher, logger arbor.ILogger) []Engine {
	var engines []Engine
	for _, name := range cfg.Engines {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "ahmia":
			engines = append(engines, newAhmiaEngine(fetcher, cfg.MaxPages))
		case "tor66":
			engines = append(engines, newTor66Engine(fetcher, cfg.MaxPages))
		case "onionland":
			engines = append(engines, newOnionLandEngine(fetcher, cfg.MaxPages))
		default:
			logger.Warn().Str("engine", name).Msg("Unknown discovery engine skipped")
		}
	}
	return engines
}

// enginePacer spaces requests so engines do not ban the crawler.
// One limiter per engine instance; roughly one request every 2 seconds.
func enginePacer() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(0.5), 1)
}

// isOnionURL reports whether a URL points at a .onion host
func isOnionURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".onion")
}

// normalizeOnionURL lowercases the host and strips fragments so the same
// site discovered by two engines dedupes to one entry
func normalizeOnionURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	return u.String()
}

// hostOfURL returns the lowercase hostname of a URL, or "" when unparseable
func hostOfURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// resultCountPattern pulls the leading integer out of engine result
// banners like "About 1,234 results" or ".Onion sites found : 567"
var resultCountPattern = regexp.MustCompile(`([\d,]+)`)

func parseResultCount(text string) int {
	match := resultCountPattern.FindString(text)
	if match == "" {
		return 0
	}
	match = strings.ReplaceAll(match, ",", "")
	var n int
	if _, err := fmt.Sscanf(match, "%d", &n); err != nil {
		return 0
	}
	return n
}

// pagesFor converts a result count to a page count under caps
func pagesFor(results, perPage, engineCap, configCap int) int {
	if results <= 0 || perPage <= 0 {
		return 1
	}
	pages := (results + perPage - 1) / perPage
	if pages > engineCap {
		pages = engineCap
	}
	if configCap > 0 && pages > configCap {
		pages = configCap
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}
