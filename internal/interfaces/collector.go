package interfaces

import (
	"context"

	"github.com/ternarybob/darkwatch/internal/models"
)

// Publisher is the closure handed to a collector for streaming results.
// Progress must be reported monotonically; findings are immutable once
// passed; none of the methods block on slow observers.
type Publisher interface {
	Progress(pct int, message string)
	Finding(f models.Finding)
	Log(level, message string, data map[string]interface{})
}

// Collector executes one capability against one target. Implementations
// must publish every finding exactly once before returning, return the
// same findings as a slice for non-streaming callers, treat job.Metadata
// as a persisted scratchpad, and honor ctx cancellation at loop
// boundaries, returning whatever is complete.
type Collector interface {
	Capability() models.Capability
	DefaultConfig() map[string]interface{}
	Run(ctx context.Context, job *models.Job, pub Publisher) ([]models.Finding, error)
}

// OrchestratorContext is the narrow view collectors get of orchestrator
// state, replacing a back-pointer. CachedFindings returns prior findings
// for a target across jobs (used for dark-web cross-reference).
type OrchestratorContext interface {
	CachedFindings(ctx context.Context, target string) ([]models.Finding, error)
}
