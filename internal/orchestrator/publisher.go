// -----------------------------------------------------------------------
// Job publisher - bridges collector output to bus, observers, and storage
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"sync"

	"github.com/ternarybob/darkwatch/internal/models"
)

// jobPublisher is handed to the collector for one run. It fans each
// publish out to the finding bus (which notifies observers through its
// sink), the risk index, durable storage, and the notification store.
// None of its methods block on slow observers.
type jobPublisher struct {
	o   *Orchestrator
	job *models.Job

	// mu serializes collectors that publish from multiple goroutines
	mu sync.Mutex
}

func newJobPublisher(o *Orchestrator, job *models.Job) *jobPublisher {
	return &jobPublisher{o: o, job: job}
}

// Progress raises the job's progress and streams it. Regressions are
// swallowed by the job model so observers only ever see monotonic values.
func (p *jobPublisher) Progress(pct int, message string) {
	p.mu.Lock()
	p.job.SetProgress(pct)
	current := p.job.Progress
	p.mu.Unlock()

	p.o.observers.PublishProgress(p.job.ID, current, message)
}

// Finding records one finding everywhere it needs to go. The bus stamps
// DiscoveredAt and fans out to the job's observer.
func (p *jobPublisher) Finding(f models.Finding) {
	stamped := p.o.findings.Add(p.job.ID, f)
	p.o.index.Add(stamped)

	ctx := context.Background()
	p.o.persistFinding(ctx, p.job, &stamped)
	p.o.notifyFinding(ctx, p.job, &stamped)
}

// Log appends to the job's execution log and mirrors it to the observer
func (p *jobPublisher) Log(level, message string, data map[string]interface{}) {
	p.mu.Lock()
	p.job.AppendLog(level, message, data)
	p.mu.Unlock()

	p.o.logger.Debug().
		Str("job_id", p.job.ID).
		Str("level", level).
		Msg(message)
}
