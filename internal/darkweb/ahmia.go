// -----------------------------------------------------------------------
// Ahmia engine - CSRF form walk then redirect_url extraction
// -----------------------------------------------------------------------

package darkweb

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const ahmiaBase = "http://juhanurmihxlp77nkq76byazcldy2hlmovfu2epvl5ankdibsot4csyd.onion"

type ahmiaEngine struct {
	fetcher Fetcher
	pacer   *rate.Limiter
}

func newAhmiaEngine(fetcher Fetcher, _ int) *ahmiaEngine {
	return &ahmiaEngine{fetcher: fetcher, pacer: enginePacer()}
}

func (e *ahmiaEngine) Name() string { return "ahmia" }

// Search loads the landing page first to harvest hidden form fields (the
// CSRF tokens Ahmia rotates), then issues the search with them attached.
func (e *ahmiaEngine) Search(ctx context.Context, keyword string) ([]string, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	status, body, err := e.fetcher.Get(ctx, ahmiaBase+"/")
	if err != nil {
		return nil, fmt.Errorf("ahmia landing page: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("ahmia landing page returned HTTP %d", status)
	}

	csrf := url.Values{}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ahmia landing page parse: %w", err)
	}
	doc.Find(`form input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		value, _ := s.Attr("value")
		if name != "" {
			csrf.Set(name, value)
		}
	})

	query := url.Values{}
	query.Set("q", keyword)
	for name := range csrf {
		query.Set(name, csrf.Get(name))
	}

	if err := e.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	status, body, err = e.fetcher.Get(ctx, ahmiaBase+"/search/?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("ahmia search: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("ahmia search returned HTTP %d", status)
	}
	return parseAhmiaResults(body), nil
}

// parseAhmiaResults extracts result URLs; anchors carry the real target in
// a redirect_url query parameter
func parseAhmiaResults(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	anchors := doc.Find("li.result h4 a")
	if anchors.Length() == 0 {
		anchors = doc.Find("li.result a")
	}
	if anchors.Length() == 0 {
		anchors = doc.Find(".result a")
	}

	var urls []string
	anchors.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if target := ahmiaRedirectTarget(href); target != "" {
			urls = append(urls, target)
		} else if isOnionURL(href) {
			urls = append(urls, href)
		}
	})
	return urls
}

func ahmiaRedirectTarget(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("redirect_url")
}
