// -----------------------------------------------------------------------
// Finding index - in-memory ordering of findings by risk score
// -----------------------------------------------------------------------

package orchestrator

import (
	"sort"
	"sync"

	"github.com/ternarybob/darkwatch/internal/models"
)

// indexCap bounds the in-memory index; the durable store holds the rest
const indexCap = 10_000

// findingIndex keeps this process's findings ordered by risk score,
// highest first. It is a cache over the durable store, never the source
// of truth: a restart rebuilds nothing and loses nothing.
type findingIndex struct {
	mu       sync.RWMutex
	findings []models.Finding
}

func newFindingIndex() *findingIndex {
	return &findingIndex{}
}

// Add inserts a finding at its sorted position. Ties keep insertion
// order. When the cap is hit the lowest-scored finding falls off.
func (x *findingIndex) Add(f models.Finding) {
	x.mu.Lock()
	defer x.mu.Unlock()

	pos := sort.Search(len(x.findings), func(i int) bool {
		return x.findings[i].RiskScore < f.RiskScore
	})
	x.findings = append(x.findings, models.Finding{})
	copy(x.findings[pos+1:], x.findings[pos:])
	x.findings[pos] = f

	if len(x.findings) > indexCap {
		x.findings = x.findings[:indexCap]
	}
}

// Top returns a copy of the n highest-risk findings
func (x *findingIndex) Top(n int) []models.Finding {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if n > len(x.findings) {
		n = len(x.findings)
	}
	if n <= 0 {
		return nil
	}
	out := make([]models.Finding, n)
	copy(out, x.findings[:n])
	return out
}

// Len returns the number of indexed findings
func (x *findingIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.findings)
}
