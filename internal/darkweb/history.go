// -----------------------------------------------------------------------
// Crawl history - append-only chronological record
// -----------------------------------------------------------------------

package darkweb

import (
	"container/list"
	"sync"

	"github.com/ternarybob/darkwatch/internal/models"
)

// CrawlHistory is an append-only chronological record of crawl attempts.
// A linked list keeps appends O(1) and export order stable.
type CrawlHistory struct {
	mu      sync.Mutex
	records *list.List
}

// NewCrawlHistory creates an empty history
func NewCrawlHistory() *CrawlHistory {
	return &CrawlHistory{records: list.New()}
}

// Append records one crawl attempt
func (h *CrawlHistory) Append(record models.CrawlRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records.PushBack(record)
}

// Export returns every record in chronological order
func (h *CrawlHistory) Export() []models.CrawlRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]models.CrawlRecord, 0, h.records.Len())
	for e := h.records.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(models.CrawlRecord))
	}
	return out
}

// Len returns the number of recorded attempts
func (h *CrawlHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records.Len()
}
