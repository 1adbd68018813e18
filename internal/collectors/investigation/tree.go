// -----------------------------------------------------------------------
// Domain tree - HAR entries classified into a host hierarchy
// -----------------------------------------------------------------------

package investigation

import (
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// trackerDomains is the reverse-match tracker list
var trackerDomains = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"googlesyndication.com",
	"facebook.net",
	"connect.facebook.net",
	"hotjar.com",
	"mixpanel.com",
	"segment.io",
	"segment.com",
	"amplitude.com",
	"scorecardresearch.com",
	"quantserve.com",
	"criteo.com",
	"adnxs.com",
	"taboola.com",
	"outbrain.com",
}

// cdnDomains flags common content-delivery hosts
var cdnDomains = []string{
	"cloudfront.net",
	"cloudflare.com",
	"akamaized.net",
	"akamaihd.net",
	"fastly.net",
	"jsdelivr.net",
	"unpkg.com",
	"cdnjs.cloudflare.com",
	"azureedge.net",
	"stackpathcdn.com",
}

// DomainNode is one host observed during page load
type DomainNode struct {
	Host         string        `json:"host"`
	Parent       string        `json:"parent,omitempty"`
	FirstParty   bool          `json:"first_party"`
	Tracker      bool          `json:"tracker"`
	CDN          bool          `json:"cdn"`
	RequestCount int           `json:"request_count"`
	TotalBytes   int64         `json:"total_bytes"`
	Children     []*DomainNode `json:"children,omitempty"`
}

// DomainTree is the classified host hierarchy for one page load
type DomainTree struct {
	Root            *DomainNode `json:"root"`
	TotalDomains    int         `json:"total_domains"`
	ThirdPartyHosts []string    `json:"third_party_hosts"`
	TrackerHosts    []string    `json:"tracker_hosts"`
	RedirectCount   int         `json:"redirect_count"`
	TotalBytes      int64       `json:"total_bytes"`
	RiskScore       float64     `json:"risk_score"`
}

// baseDomain strips the public suffix, e.g. "a.b.example.co.uk" -> "example.co.uk"
func baseDomain(host string) string {
	base, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return base
}

// isTracker reverse-matches host against the tracker list
func isTracker(host string) bool {
	return matchesSuffixList(host, trackerDomains)
}

// isCDN reverse-matches host against the CDN list
func isCDN(host string) bool {
	return matchesSuffixList(host, cdnDomains)
}

func matchesSuffixList(host string, list []string) bool {
	host = strings.ToLower(host)
	for _, domain := range list {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// BuildDomainTree classifies HAR entries into a host tree rooted at the
// target domain and derives the page-load risk score.
func BuildDomainTree(target string, entries []HAREntry) *DomainTree {
	rootBase := baseDomain(strings.ToLower(target))

	root := &DomainNode{Host: strings.ToLower(target), FirstParty: true}
	nodes := map[string]*DomainNode{root.Host: root}
	tree := &DomainTree{Root: root}

	for _, entry := range entries {
		host := strings.ToLower(entry.Host)
		if host == "" {
			continue
		}
		if entry.Redirected {
			tree.RedirectCount++
		}
		tree.TotalBytes += entry.Size

		node, ok := nodes[host]
		if !ok {
			node = &DomainNode{
				Host:       host,
				FirstParty: baseDomain(host) == rootBase,
				Tracker:    isTracker(host),
				CDN:        isCDN(host),
			}
			if entry.InitiatorHost != "" && nodes[strings.ToLower(entry.InitiatorHost)] != nil {
				parent := nodes[strings.ToLower(entry.InitiatorHost)]
				node.Parent = parent.Host
				parent.Children = append(parent.Children, node)
			} else if host != root.Host {
				node.Parent = root.Host
				root.Children = append(root.Children, node)
			}
			nodes[host] = node
		}
		node.RequestCount++
		node.TotalBytes += entry.Size
	}

	for host, node := range nodes {
		if host == root.Host {
			continue
		}
		if node.Tracker {
			tree.TrackerHosts = append(tree.TrackerHosts, host)
		}
		if !node.FirstParty {
			tree.ThirdPartyHosts = append(tree.ThirdPartyHosts, host)
		}
	}
	sort.Strings(tree.TrackerHosts)
	sort.Strings(tree.ThirdPartyHosts)
	tree.TotalDomains = len(nodes)
	tree.RiskScore = pageRiskScore(len(tree.TrackerHosts), len(tree.ThirdPartyHosts), tree.RedirectCount, tree.TotalDomains)

	return tree
}

// pageRiskScore weights the page-load composition into 0-100.
// Thresholds are fixed: heavy tracking and deep redirect chains dominate.
func pageRiskScore(trackers, thirdParties, redirects, totalDomains int) float64 {
	score := 0.0

	switch {
	case trackers >= 10:
		score += 40
	case trackers >= 5:
		score += 30
	case trackers >= 2:
		score += 20
	case trackers == 1:
		score += 10
	}

	switch {
	case thirdParties >= 20:
		score += 30
	case thirdParties >= 10:
		score += 20
	case thirdParties >= 5:
		score += 10
	}

	switch {
	case redirects >= 5:
		score += 20
	case redirects >= 2:
		score += 10
	}

	if totalDomains >= 30 {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}
