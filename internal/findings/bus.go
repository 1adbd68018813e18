// -----------------------------------------------------------------------
// Finding bus - per-job finding lists with snapshot reads and fan-out
// -----------------------------------------------------------------------

package findings

import (
	"sync"
	"time"

	"github.com/ternarybob/darkwatch/internal/models"
)

// Sink receives findings as they are appended. The bus calls it outside
// the per-job lock; implementations must not block.
type Sink func(jobID string, finding models.Finding)

// jobFindings holds one job's append-only finding list.
// lastStamp enforces monotonic DiscoveredAt within the job.
type jobFindings struct {
	mu        sync.Mutex
	findings  []models.Finding
	lastStamp time.Time
}

// Bus is the per-job finding bus. There is no global findings lock:
// reads and writes for different jobs never contend.
type Bus struct {
	mu   sync.RWMutex
	jobs map[string]*jobFindings
	sink Sink
}

// NewBus creates a finding bus. sink may be nil.
func NewBus(sink Sink) *Bus {
	return &Bus{
		jobs: make(map[string]*jobFindings),
		sink: sink,
	}
}

func (b *Bus) forJob(jobID string) *jobFindings {
	b.mu.RLock()
	jf := b.jobs[jobID]
	b.mu.RUnlock()
	if jf != nil {
		return jf
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if jf = b.jobs[jobID]; jf == nil {
		jf = &jobFindings{}
		b.jobs[jobID] = jf
	}
	return jf
}

// Add appends one finding under the job's lock, stamping DiscoveredAt so
// it is >= every prior finding for the job, then fans out to the sink.
func (b *Bus) Add(jobID string, finding models.Finding) models.Finding {
	jf := b.forJob(jobID)

	jf.mu.Lock()
	finding = stamp(jf, finding)
	jf.findings = append(jf.findings, finding)
	jf.mu.Unlock()

	if b.sink != nil {
		b.sink(jobID, finding)
	}
	return finding
}

// AddMany appends findings as one atomic batch
func (b *Bus) AddMany(jobID string, findings []models.Finding) []models.Finding {
	if len(findings) == 0 {
		return nil
	}
	jf := b.forJob(jobID)

	stamped := make([]models.Finding, len(findings))
	jf.mu.Lock()
	for i, finding := range findings {
		stamped[i] = stamp(jf, finding)
	}
	jf.findings = append(jf.findings, stamped...)
	jf.mu.Unlock()

	if b.sink != nil {
		for _, finding := range stamped {
			b.sink(jobID, finding)
		}
	}
	return stamped
}

// stamp assigns a DiscoveredAt no earlier than the previous finding's.
// Caller holds jf.mu.
func stamp(jf *jobFindings, finding models.Finding) models.Finding {
	now := time.Now()
	if !now.After(jf.lastStamp) {
		now = jf.lastStamp.Add(time.Nanosecond)
	}
	jf.lastStamp = now
	finding.DiscoveredAt = now
	return finding
}

// Get returns a point-in-time copy of the job's findings
func (b *Bus) Get(jobID string) []models.Finding {
	return b.GetSince(jobID, Since{})
}

// Since selects the resume point for GetSince. Zero value means "all".
// When ID is set it wins over Time: the snapshot starts after the finding
// with that ID.
type Since struct {
	Time time.Time
	ID   string
}

// GetSince returns a snapshot of findings appended after the given point.
// Concurrent appends after the snapshot are not included.
func (b *Bus) GetSince(jobID string, after Since) []models.Finding {
	jf := b.forJob(jobID)

	jf.mu.Lock()
	defer jf.mu.Unlock()

	start := 0
	if after.ID != "" {
		for i, f := range jf.findings {
			if f.ID == after.ID {
				start = i + 1
				break
			}
		}
	} else if !after.Time.IsZero() {
		for i, f := range jf.findings {
			if f.DiscoveredAt.After(after.Time) {
				start = i
				break
			}
			start = i + 1
		}
	}

	if start >= len(jf.findings) {
		return nil
	}
	snapshot := make([]models.Finding, len(jf.findings)-start)
	copy(snapshot, jf.findings[start:])
	return snapshot
}

// Count returns the number of findings recorded for the job
func (b *Bus) Count(jobID string) int {
	jf := b.forJob(jobID)
	jf.mu.Lock()
	defer jf.mu.Unlock()
	return len(jf.findings)
}

// Drop releases a finished job's findings from the bus. The storage
// adapter keeps the durable copy.
func (b *Bus) Drop(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.jobs, jobID)
}
