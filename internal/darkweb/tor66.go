// -----------------------------------------------------------------------
// Tor66 engine - paged results as <b><a> rows after the first <hr>
// -----------------------------------------------------------------------

package darkweb

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const tor66Base = "http://tor66sewebgixwhcqfnp5inzp5x5uohhdy3kvtnyfxc2e5mxiuh34iid.onion"

// tor66 shows about 20 results per page, capped at 30 pages
const (
	tor66PerPage = 20
	tor66PageCap = 30
)

type tor66Engine struct {
	fetcher  Fetcher
	pacer    *rate.Limiter
	maxPages int
}

func newTor66Engine(fetcher Fetcher, maxPages int) *tor66Engine {
	return &tor66Engine{fetcher: fetcher, pacer: enginePacer(), maxPages: maxPages}
}

func (e *tor66Engine) Name() string { return "tor66" }

func (e *tor66Engine) Search(ctx context.Context, keyword string) ([]string, error) {
	var urls []string
	pages := 1

	for page := 1; page <= pages; page++ {
		if err := e.pacer.Wait(ctx); err != nil {
			return urls, err
		}
		query := url.Values{}
		query.Set("q", keyword)
		query.Set("sorttype", "rel")
		query.Set("page", fmt.Sprintf("%d", page))

		status, body, err := e.fetcher.Get(ctx, tor66Base+"/search?"+query.Encode())
		if err != nil {
			return urls, fmt.Errorf("tor66 page %d: %w", page, err)
		}
		if status != 200 {
			return urls, fmt.Errorf("tor66 page %d returned HTTP %d", page, status)
		}

		if page == 1 {
			pages = pagesFor(tor66ResultCount(body), tor66PerPage, tor66PageCap, e.maxPages)
		}
		urls = append(urls, parseTor66Results(body)...)
	}
	return urls, nil
}

// tor66ResultCount parses the ".Onion sites found : N" banner
func tor66ResultCount(body []byte) int {
	text := string(body)
	idx := strings.Index(text, ".Onion sites found")
	if idx < 0 {
		return 0
	}
	end := idx + 60
	if end > len(text) {
		end = len(text)
	}
	return parseResultCount(text[idx:end])
}

// parseTor66Results takes every <b><a href> row after the first <hr>,
// skipping the engine's own /serviceinfo/ links
func parseTor66Results(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var urls []string
	seenHr := false
	doc.Find("hr, b a").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "hr" {
			seenHr = true
			return
		}
		if !seenHr {
			return
		}
		href, ok := s.Attr("href")
		if !ok || strings.Contains(href, "/serviceinfo/") {
			return
		}
		if isOnionURL(href) {
			urls = append(urls, href)
		}
	})
	return urls
}
