// -----------------------------------------------------------------------
// Observer channel registry - one live event sink per job
// -----------------------------------------------------------------------

package observer

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/models"
)

// sinkBuffer is the per-job event channel capacity. Producers never block:
// when the buffer is full the event is dropped and counted.
const sinkBuffer = 256

type sink struct {
	ch      chan models.ObserverEvent
	dropped int
}

// Registry maps job IDs to observer sinks. At most one sink per job; a
// second Subscribe supersedes the first.
type Registry struct {
	mu     sync.Mutex
	sinks  map[string]*sink
	logger arbor.ILogger
}

// NewRegistry creates an observer registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		sinks:  make(map[string]*sink),
		logger: logger,
	}
}

// Subscribe registers an observer for the job and returns its event
// channel. An existing sink for the job receives a superseded marker and
// is closed.
func (r *Registry) Subscribe(jobID string) <-chan models.ObserverEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sinks[jobID]; ok {
		select {
		case old.ch <- models.ObserverEvent{Type: models.ObserverSuperseded, Timestamp: time.Now()}:
		default:
		}
		close(old.ch)
		r.logger.Debug().Str("job_id", jobID).Msg("Observer superseded by new subscription")
	}

	s := &sink{ch: make(chan models.ObserverEvent, sinkBuffer)}
	r.sinks[jobID] = s
	return s.ch
}

// Unsubscribe closes and removes the job's sink, but only when ch is the
// registered sink. A superseded subscriber unwinding its deferred cleanup
// must not tear down the channel its replacement is reading.
func (r *Registry) Unsubscribe(jobID string, ch <-chan models.ObserverEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sinks[jobID]
	if !ok || (<-chan models.ObserverEvent)(s.ch) != ch {
		return
	}
	close(s.ch)
	delete(r.sinks, jobID)
}

// HasObserver reports whether a sink is registered for the job
func (r *Registry) HasObserver(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sinks[jobID]
	return ok
}

// publish delivers an event without blocking. Full buffers drop the event;
// the subscriber reconciles via the finding bus after reconnect.
func (r *Registry) publish(jobID string, event models.ObserverEvent) {
	r.mu.Lock()
	s, ok := r.sinks[jobID]
	if !ok {
		r.mu.Unlock()
		return
	}

	select {
	case s.ch <- event:
		r.mu.Unlock()
	default:
		s.dropped++
		dropped := s.dropped
		r.mu.Unlock()
		if dropped%100 == 1 {
			r.logger.Warn().
				Str("job_id", jobID).
				Int("dropped", dropped).
				Str("event_type", string(event.Type)).
				Msg("Observer sink full - dropping events")
		}
	}
}

// PublishProgress emits a progress event
func (r *Registry) PublishProgress(jobID string, progress int, message string) {
	r.publish(jobID, models.ObserverEvent{
		Type:      models.ObserverProgress,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// PublishFinding emits a finding event carrying the finding's wire shape
func (r *Registry) PublishFinding(jobID string, finding models.Finding) {
	r.publish(jobID, models.ObserverEvent{
		Type:      models.ObserverFinding,
		Data:      finding.ToDict(),
		Timestamp: time.Now(),
	})
}

// PublishComplete emits the terminal completion event
func (r *Registry) PublishComplete(jobID string, totalFindings, urlsCrawled int, totalTime time.Duration) {
	r.publish(jobID, models.ObserverEvent{
		Type:             models.ObserverComplete,
		TotalFindings:    totalFindings,
		URLsCrawled:      urlsCrawled,
		TotalTimeSeconds: totalTime.Seconds(),
		Timestamp:        time.Now(),
	})
}

// PublishError emits an error event
func (r *Registry) PublishError(jobID string, errMsg string) {
	r.publish(jobID, models.ObserverEvent{
		Type:      models.ObserverError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}
