// -----------------------------------------------------------------------
// Tor fetcher - SOCKS5 transport with UA rotation and backoff retry
// -----------------------------------------------------------------------

package darkweb

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"golang.org/x/net/proxy"
)

// maxRetries is the retry budget for connection-level failures
const maxRetries = 2

// maxBodyBytes bounds how much of a page is read into memory
const maxBodyBytes = 2 << 20 // 2 MiB

// Fetcher retrieves pages through the Tor network. Tests substitute a
// canned implementation.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (int, []byte, error)
}

// torFetcher dials everything through the configured SOCKS5 proxy
type torFetcher struct {
	client  *http.Client
	crawler *common.CrawlerConfig
	logger  arbor.ILogger
}

// NewFetcher builds the Tor SOCKS5 fetcher. The dialer is created once;
// every request shares the transport so circuits are reused.
func NewFetcher(torCfg *common.TorConfig, crawlerCfg *common.CrawlerConfig, logger arbor.ILogger) (Fetcher, error) {
	dialer, err := proxy.SOCKS5("tcp", torCfg.ProxyAddr(), nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not support context dialing")
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return contextDialer.DialContext(ctx, network, addr)
		},
		DisableKeepAlives:     false,
		MaxIdleConnsPerHost:   4,
		ResponseHeaderTimeout: torCfg.Timeout,
	}

	timeout := crawlerCfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &torFetcher{
		client:  &http.Client{Transport: transport, Timeout: timeout},
		crawler: crawlerCfg,
		logger:  logger,
	}, nil
}

// Get fetches a URL with exponential-backoff retry on connection errors.
// HTTP error statuses are returned to the caller, not retried.
func (f *torFetcher) Get(ctx context.Context, rawURL string) (int, []byte, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		status, body, err := f.once(ctx, rawURL)
		if err == nil {
			return status, body, nil
		}
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		lastErr = err
		f.logger.Debug().
			Str("url", rawURL).
			Int("attempt", attempt+1).
			Err(err).
			Msg("Fetch attempt failed")
	}
	return 0, nil, fmt.Errorf("fetch failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (f *torFetcher) once(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid url %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (f *torFetcher) userAgent() string {
	if f.crawler.UserAgent != "" && !f.crawler.UserAgentRotation {
		return f.crawler.UserAgent
	}
	return common.RandomUserAgent()
}

// CheckTor verifies the SOCKS proxy actually routes traffic by fetching an
// IP-echo service through it. A non-2xx response or transport error means
// Tor is unusable.
func CheckTor(ctx context.Context, torCfg *common.TorConfig, logger arbor.ILogger) error {
	fetcher, err := NewFetcher(torCfg, &common.CrawlerConfig{RequestTimeout: torCfg.Timeout, UserAgentRotation: true}, logger)
	if err != nil {
		return err
	}

	status, body, err := fetcher.Get(ctx, "https://check.torproject.org/api/ip")
	if err != nil {
		return fmt.Errorf("tor health check failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("tor health check returned HTTP %d", status)
	}

	logger.Info().
		Str("proxy", torCfg.ProxyAddr()).
		Str("response", strings.TrimSpace(string(body))).
		Msg("Tor health check passed")
	return nil
}
