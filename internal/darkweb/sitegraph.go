// -----------------------------------------------------------------------
// Site graph - directed link graph with content-hash clone detection
// -----------------------------------------------------------------------

package darkweb

import (
	"sort"
	"sync"

	"github.com/ternarybob/darkwatch/internal/models"
)

// SiteGraph tracks crawled sites and the directed links between them.
// Clones are sites whose normalized text hashes to the same value while
// living at different URLs.
type SiteGraph struct {
	mu     sync.RWMutex
	sites  map[string]*models.OnionSite // by site ID
	edges  map[string]map[string]struct{}
	byHash map[string][]string // content hash -> site IDs
}

// NewSiteGraph creates an empty site graph
func NewSiteGraph() *SiteGraph {
	return &SiteGraph{
		sites:  make(map[string]*models.OnionSite),
		edges:  make(map[string]map[string]struct{}),
		byHash: make(map[string][]string),
	}
}

// AddSite inserts or refreshes a site vertex. Re-adding updates LastSeen
// fields but keeps FirstSeen from the original insert.
func (g *SiteGraph) AddSite(site *models.OnionSite) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.sites[site.SiteID]; ok {
		site.FirstSeen = existing.FirstSeen
		site.PageCount = existing.PageCount + 1
		g.removeHashEntry(existing.ContentHash, site.SiteID)
	} else {
		site.PageCount = 1
	}
	g.sites[site.SiteID] = site
	if site.ContentHash != "" {
		g.byHash[site.ContentHash] = append(g.byHash[site.ContentHash], site.SiteID)
	}
}

func (g *SiteGraph) removeHashEntry(hash, siteID string) {
	ids := g.byHash[hash]
	for i, id := range ids {
		if id == siteID {
			g.byHash[hash] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// AddLink records a directed link between two sites. Unknown endpoints
// are allowed; the edge shows up once both sides are crawled.
func (g *SiteGraph) AddLink(fromSiteID, toSiteID string) {
	if fromSiteID == "" || toSiteID == "" || fromSiteID == toSiteID {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges[fromSiteID] == nil {
		g.edges[fromSiteID] = make(map[string]struct{})
	}
	g.edges[fromSiteID][toSiteID] = struct{}{}
}

// GetSite returns a site by ID
func (g *SiteGraph) GetSite(siteID string) (*models.OnionSite, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	site, ok := g.sites[siteID]
	return site, ok
}

// Sites returns every crawled site, ordered by site ID
func (g *SiteGraph) Sites() []*models.OnionSite {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.sites))
	for id := range g.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sites := make([]*models.OnionSite, 0, len(ids))
	for _, id := range ids {
		sites = append(sites, g.sites[id])
	}
	return sites
}

// LinksFrom returns the site IDs linked from a site, sorted
func (g *SiteGraph) LinksFrom(siteID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id := range g.edges[siteID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clones returns groups of site IDs sharing a content hash. Only groups
// of two or more sites are clones.
func (g *SiteGraph) Clones() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hashes := make([]string, 0, len(g.byHash))
	for hash, ids := range g.byHash {
		if len(ids) >= 2 {
			hashes = append(hashes, hash)
		}
	}
	sort.Strings(hashes)

	var groups [][]string
	for _, hash := range hashes {
		group := append([]string(nil), g.byHash[hash]...)
		sort.Strings(group)
		groups = append(groups, group)
	}
	return groups
}

// Size returns the number of sites in the graph
func (g *SiteGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sites)
}
