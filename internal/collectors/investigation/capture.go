// -----------------------------------------------------------------------
// Headless page capture - network log + screenshot via CDP
// -----------------------------------------------------------------------

package investigation

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// HAREntry is one observed network request during page load
type HAREntry struct {
	URL           string `json:"url"`
	Host          string `json:"host"`
	InitiatorHost string `json:"initiator_host"`
	Status        int    `json:"status"`
	Size          int64  `json:"size"`
	MimeType      string `json:"mime_type"`
	Redirected    bool   `json:"redirected"`
}

// CaptureResult is the output of one headless page load
type CaptureResult struct {
	FinalURL   string
	Entries    []HAREntry
	Screenshot []byte
}

// Capturer loads a page headlessly and records its network activity.
// Tests substitute a canned implementation.
type Capturer interface {
	Capture(ctx context.Context, pageURL string, timeout time.Duration) (*CaptureResult, error)
}

// chromeCapturer drives a headless Chrome instance
type chromeCapturer struct{}

// NewCapturer creates the production CDP capturer
func NewCapturer() Capturer {
	return &chromeCapturer{}
}

func (c *chromeCapturer) Capture(ctx context.Context, pageURL string, timeout time.Duration) (*CaptureResult, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, timeout)
	defer cancelRun()

	var mu sync.Mutex
	entries := map[network.RequestID]*HAREntry{}
	result := &CaptureResult{}

	chromedp.ListenTarget(runCtx, func(event interface{}) {
		mu.Lock()
		defer mu.Unlock()
		switch e := event.(type) {
		case *network.EventRequestWillBeSent:
			entry := &HAREntry{
				URL:        e.Request.URL,
				Host:       hostOf(e.Request.URL),
				Redirected: e.RedirectResponse != nil,
			}
			if e.Initiator != nil && e.Initiator.URL != "" {
				entry.InitiatorHost = hostOf(e.Initiator.URL)
			}
			entries[e.RequestID] = entry
		case *network.EventResponseReceived:
			if entry, ok := entries[e.RequestID]; ok {
				entry.Status = int(e.Response.Status)
				entry.MimeType = e.Response.MimeType
			}
		case *network.EventLoadingFinished:
			if entry, ok := entries[e.RequestID]; ok {
				entry.Size = int64(e.EncodedDataLength)
			}
		}
	})

	var screenshot []byte
	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&result.FinalURL),
		chromedp.FullScreenshot(&screenshot, 80),
	)
	if err != nil {
		return nil, fmt.Errorf("page capture failed: %w", err)
	}

	mu.Lock()
	for _, entry := range entries {
		result.Entries = append(result.Entries, *entry)
	}
	mu.Unlock()
	result.Screenshot = screenshot

	return result, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
