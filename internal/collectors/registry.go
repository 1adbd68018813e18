// -----------------------------------------------------------------------
// Collector registry - capability -> collector dispatch table
// -----------------------------------------------------------------------

package collectors

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// Registry maps capabilities to their collector implementations
type Registry struct {
	mu         sync.RWMutex
	collectors map[models.Capability]interfaces.Collector
	logger     arbor.ILogger
}

// NewRegistry creates an empty collector registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		collectors: make(map[models.Capability]interfaces.Collector),
		logger:     logger,
	}
}

// Register adds a collector for its capability. Re-registering replaces
// the previous implementation.
func (r *Registry) Register(c interfaces.Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.collectors[c.Capability()] = c
	r.logger.Info().
		Str("capability", string(c.Capability())).
		Msg("Collector registered")
}

// Get returns the collector for a capability
func (r *Registry) Get(capability models.Capability) (interfaces.Collector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collectors[capability]
	if !ok {
		return nil, fmt.Errorf("no collector registered for capability: %s", capability)
	}
	return c, nil
}

// DefaultConfig returns the default config for a capability, or an empty
// map when the capability is unknown.
func (r *Registry) DefaultConfig(capability models.Capability) map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.collectors[capability]; ok {
		if cfg := c.DefaultConfig(); cfg != nil {
			return cfg
		}
	}
	return map[string]interface{}{}
}
