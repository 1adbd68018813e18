package infra

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ternarybob/darkwatch/internal/models"
)

// fallbackNginxVersion is used when the live version scrape fails
const fallbackNginxVersion = "1.29.1"

var downloadVersionPattern = regexp.MustCompile(`nginx-(\d+\.\d+\.\d+)\.tar\.gz`)

var (
	latestVersionOnce  sync.Once
	latestVersionValue string
)

// latestNginxVersion scrapes the nginx download page once per process and
// caches the highest stable version seen.
func (c *Collector) latestNginxVersion(ctx context.Context) string {
	latestVersionOnce.Do(func() {
		latestVersionValue = fallbackNginxVersion

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://nginx.org/en/download.html", nil)
		if err != nil {
			return
		}
		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.Debug().Err(err).Msg("nginx version scrape failed")
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512*1024))

		best := ""
		for _, match := range downloadVersionPattern.FindAllStringSubmatch(string(body), -1) {
			if best == "" || compareVersions(match[1], best) > 0 {
				best = match[1]
			}
		}
		if best != "" {
			latestVersionValue = best
		}
	})
	return latestVersionValue
}

// compareVersions returns -1, 0, or 1 for dotted numeric versions
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, _ := strconv.Atoi(as[i])
		bn, _ := strconv.Atoi(bs[i])
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
	}
	if len(as) != len(bs) {
		if len(as) < len(bs) {
			return -1
		}
		return 1
	}
	return 0
}

// nginxCVE describes one version-gated nginx vulnerability
type nginxCVE struct {
	ID          string
	Severity    models.Severity
	Description string
	// affected range [From, Before)
	From   string
	Before string
}

// nginxCVEs gates findings on the detected version
var nginxCVEs = []nginxCVE{
	{
		ID:          "CVE-2017-7529",
		Severity:    models.SeverityHigh,
		Description: "Integer overflow in the range filter leaks cache memory via crafted Range headers.",
		From:        "0.5.6",
		Before:      "1.13.3",
	},
	{
		ID:          "CVE-2019-20372",
		Severity:    models.SeverityMedium,
		Description: "HTTP request smuggling via error_page redirects with certain configurations.",
		From:        "0.7.12",
		Before:      "1.17.7",
	},
	{
		ID:          "CVE-2021-23017",
		Severity:    models.SeverityHigh,
		Description: "Off-by-one in the DNS resolver allows memory corruption via crafted responses.",
		From:        "0.6.18",
		Before:      "1.21.0",
	},
	{
		ID:          "CVE-2022-41741",
		Severity:    models.SeverityMedium,
		Description: "Memory corruption in the mp4 module when processing crafted video files.",
		From:        "1.1.3",
		Before:      "1.23.2",
	},
	{
		ID:          "CVE-2023-44487",
		Severity:    models.SeverityMedium,
		Description: "HTTP/2 rapid reset allows request-flood resource exhaustion.",
		From:        "1.9.5",
		Before:      "1.25.3",
	},
}

// knownNginxCVEs returns the CVEs whose affected range covers version
func knownNginxCVEs(version string) []nginxCVE {
	var affected []nginxCVE
	for _, cve := range nginxCVEs {
		if compareVersions(version, cve.From) >= 0 && compareVersions(version, cve.Before) < 0 {
			affected = append(affected, cve)
		}
	}
	return affected
}
