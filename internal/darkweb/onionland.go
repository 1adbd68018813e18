// -----------------------------------------------------------------------
// OnionLand engine - paged results with double-encoded redirect targets
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

const onionLandBase = "http://3bbad7fauom4d6sgppalyqddsqbf5u5p56b5k5uk2zxsy3d6ey2jobad.onion"

// onionland shows about 19 results per page, capped at 100 pages
const (
	onionLandPerPage = 19
	onionLandPageCap = 100
)

type onionLandEngine struct {
	fetcher  Fetcher
	pacer    *rate.Limiter
	maxPages int
}

func newOnionLandEngine(fetcher Fetcher, maxPages int) *onionLandEngine {
	return &onionLandEngine{fetcher: fetcher, pacer: enginePacer(), maxPages: maxPages}
}

func (e *onionLandEngine) Name() string { return "onionland" }

func (e *onionLandEngine) Search(ctx context.Context, keyword string) ([]string, error) {
	var urls []string
	pages := 1

	for page := 1; page <= pages; page++ {
		if err := e.pacer.Wait(ctx); err != nil {
			return urls, err
		}
		query := url.Values{}
		query.Set("q", keyword)
		query.Set("page", fmt.Sprintf("%d", page))

		status, body, err := e.fetcher.Get(ctx, onionLandBase+"/search?"+query.Encode())
		if err != nil {
			return urls, fmt.Errorf("onionland page %d: %w", page, err)
		}
		if status != 200 {
			return urls, fmt.Errorf("onionland page %d returned HTTP %d", page, status)
		}

		if page == 1 {
			pages = pagesFor(onionLandResultCount(body), onionLandPerPage, onionLandPageCap, e.maxPages)
		}
		urls = append(urls, parseOnionLandResults(body)...)
	}
	return urls, nil
}

// onionLandResultCount parses the "About N result" banner
func onionLandResultCount(body []byte) int {
	text := string(body)
	idx := strings.Index(text, "About ")
	if idx < 0 {
		return 0
	}
	end := idx + 40
	if end > len(text) {
		end = len(text)
	}
	return parseResultCount(text[idx:end])
}

// parseOnionLandResults extracts result URLs. The engine wraps targets in
// a redirect whose l parameter is URL-encoded twice.
func parseOnionLandResults(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	anchors := doc.Find(".result-block .title a")
	if anchors.Length() == 0 {
		anchors = doc.Find("a[href*='l=']")
	}

	var urls []string
	anchors.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if target := onionLandRedirectTarget(href); target != "" {
			urls = append(urls, target)
		} else if isOnionURL(href) {
			urls = append(urls, href)
		}
	})
	return urls
}

// onionLandRedirectTarget decodes the doubly-encoded l parameter
func onionLandRedirectTarget(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	encoded := u.Query().Get("l")
	if encoded == "" {
		return ""
	}
	once, err := url.QueryUnescape(encoded)
	if err != nil {
		return ""
	}
	twice, err := url.QueryUnescape(once)
	if err != nil {
		return once
	}
	return twice
}
