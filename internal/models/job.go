// -----------------------------------------------------------------------
// Job - orchestrated unit of work dispatched to a collector
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Capability identifies a named unit of work with a default config and a
// collector implementation.
type Capability string

const (
	CapabilityExposureDiscovery   Capability = "exposure_discovery"
	CapabilityDarkWebIntelligence Capability = "dark_web_intelligence"
	CapabilityEmailSecurity       Capability = "email_security"
	CapabilityInfrastructureTest  Capability = "infrastructure_testing"
	CapabilityNetworkSecurity     Capability = "network_security"
	CapabilityInvestigation       Capability = "investigation"
)

// Capabilities lists every registered capability
func Capabilities() []Capability {
	return []Capability{
		CapabilityExposureDiscovery,
		CapabilityDarkWebIntelligence,
		CapabilityEmailSecurity,
		CapabilityInfrastructureTest,
		CapabilityNetworkSecurity,
		CapabilityInvestigation,
	}
}

// IsValid reports whether the capability is one of the registered set
func (c Capability) IsValid() bool {
	for _, known := range Capabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// allowedTransitions encodes the only legal status graph:
// pending -> queued -> running -> (completed | failed | cancelled),
// with cancellation allowed before the run starts.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusQueued, JobStatusCancelled},
	JobStatusQueued:  {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// CanTransition reports whether moving from s to next is legal
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for completed, failed, and cancelled
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Priority orders jobs in the scheduler heap; lower value runs first
type Priority int

const (
	PriorityCritical   Priority = 0
	PriorityHigh       Priority = 1
	PriorityNormal     Priority = 2
	PriorityLow        Priority = 3
	PriorityBackground Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority maps a priority name to its value; unknown names are normal
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	case "background":
		return PriorityBackground
	default:
		return PriorityNormal
	}
}

// LogEntry is one timestamped execution log record on a job
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"` // "info", "warn", "error"
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Job is the orchestrated unit of work. The orchestrator owns the job
// exclusively; collectors receive it by pointer and may only touch
// Metadata (their scratchpad) and ExecutionLogs through the publisher.
type Job struct {
	ID         string     `json:"id"`
	Capability Capability `json:"capability"`
	Target     string     `json:"target"`
	Status     JobStatus  `json:"status"`
	Priority   Priority   `json:"priority"`
	Progress   int        `json:"progress"` // 0-100, monotonically non-decreasing within a run

	Config   map[string]interface{} `json:"config"`
	Metadata map[string]interface{} `json:"metadata"` // includes owning user id and collector state

	ExecutionLogs []LogEntry `json:"execution_logs"`
	Findings      []Finding  `json:"findings"`

	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// EnqueuedAtNs breaks priority ties in the scheduler heap
	EnqueuedAtNs int64 `json:"enqueued_at_ns"`
}

// NewJob constructs a pending job. Config and Metadata are never nil.
func NewJob(id string, capability Capability, target string, config map[string]interface{}) *Job {
	if config == nil {
		config = make(map[string]interface{})
	}
	return &Job{
		ID:         id,
		Capability: capability,
		Target:     target,
		Status:     JobStatusPending,
		Priority:   PriorityNormal,
		Progress:   0,
		Config:     config,
		Metadata:   make(map[string]interface{}),
		CreatedAt:  time.Now(),
	}
}

// UserID returns the owning user recorded in metadata, if any
func (j *Job) UserID() string {
	id, _ := j.GetMetadataString("user_id")
	return id
}

// SetStatus applies a status transition, stamping timestamps. Illegal
// transitions are rejected so a terminal job can never be revived.
func (j *Job) SetStatus(next JobStatus) error {
	if j.Status == next {
		return nil
	}
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s for job %s", j.Status, next, j.ID)
	}
	j.Status = next
	now := time.Now()
	switch next {
	case JobStatusRunning:
		j.StartedAt = &now
	case JobStatusCompleted, JobStatusFailed:
		j.CompletedAt = &now
		j.Progress = 100
	case JobStatusCancelled:
		j.CompletedAt = &now
	}
	return nil
}

// SetProgress raises progress; values below the current one are ignored so
// progress stays monotonic. Terminal jobs are frozen.
func (j *Job) SetProgress(pct int) {
	if j.Status.IsTerminal() {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > j.Progress {
		j.Progress = pct
	}
}

// AppendLog appends one execution log record
func (j *Job) AppendLog(level, message string, data map[string]interface{}) {
	j.ExecutionLogs = append(j.ExecutionLogs, LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Data:      data,
	})
}

// GetConfigString retrieves a string value from config
func (j *Job) GetConfigString(key string) (string, bool) {
	val, ok := j.Config[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetConfigInt retrieves an int value from config.
// Handles both int and float64 (JSON unmarshaling converts numbers to float64).
func (j *Job) GetConfigInt(key string) (int, bool) {
	val, ok := j.Config[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetConfigBool retrieves a bool value from config
func (j *Job) GetConfigBool(key string) (bool, bool) {
	val, ok := j.Config[key]
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// GetConfigStringSlice retrieves a string slice from config,
// accepting []interface{} produced by JSON round-trips.
func (j *Job) GetConfigStringSlice(key string) ([]string, bool) {
	val, ok := j.Config[key]
	if !ok {
		return nil, false
	}
	switch v := val.(type) {
	case []string:
		return v, true
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			result[i] = str
		}
		return result, true
	default:
		return nil, false
	}
}

// GetMetadataString retrieves a string value from metadata
func (j *Job) GetMetadataString(key string) (string, bool) {
	val, ok := j.Metadata[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// SetMetadata sets a metadata value
func (j *Job) SetMetadata(key string, value interface{}) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]interface{})
	}
	j.Metadata[key] = value
}

// Clone creates a deep-enough copy for handing snapshots to observers.
// Config/Metadata maps are copied one level deep; findings share backing
// arrays because findings are immutable once published.
func (j *Job) Clone() *Job {
	configCopy := make(map[string]interface{}, len(j.Config))
	for k, v := range j.Config {
		configCopy[k] = v
	}
	metadataCopy := make(map[string]interface{}, len(j.Metadata))
	for k, v := range j.Metadata {
		metadataCopy[k] = v
	}
	clone := *j
	clone.Config = configCopy
	clone.Metadata = metadataCopy
	clone.Findings = append([]Finding(nil), j.Findings...)
	clone.ExecutionLogs = append([]LogEntry(nil), j.ExecutionLogs...)
	return &clone
}

// ToJSON serializes the job for persistence
func (j *Job) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// JobFromJSON deserializes a job
func JobFromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Validate validates the job before enqueue
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if !j.Capability.IsValid() {
		return fmt.Errorf("unknown capability: %s", j.Capability)
	}
	if j.Target == "" {
		return fmt.Errorf("job target is required")
	}
	return nil
}
