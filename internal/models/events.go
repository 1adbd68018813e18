// -----------------------------------------------------------------------
// Observer and system event shapes
// -----------------------------------------------------------------------

package models

import "time"

// ObserverEventType identifies the shape of an observer event
type ObserverEventType string

const (
	ObserverProgress   ObserverEventType = "progress"
	ObserverFinding    ObserverEventType = "finding"
	ObserverComplete   ObserverEventType = "complete"
	ObserverError      ObserverEventType = "error"
	ObserverSuperseded ObserverEventType = "superseded"
)

// ObserverEvent is one event delivered on a job's observer sink.
// Delivery is best-effort: slow subscribers lose events and are expected
// to reconcile with the finding bus via GetSince after reconnect.
type ObserverEvent struct {
	Type             ObserverEventType      `json:"type"`
	Progress         int                    `json:"progress,omitempty"`
	Message          string                 `json:"message,omitempty"`
	Data             map[string]interface{} `json:"data,omitempty"`
	TotalFindings    int                    `json:"total_findings,omitempty"`
	URLsCrawled      int                    `json:"urls_crawled,omitempty"`
	TotalTimeSeconds float64                `json:"total_time_seconds,omitempty"`
	Error            string                 `json:"error,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
}

// SystemEventType identifies job lifecycle events on the system bus
type SystemEventType string

const (
	EventJobCreated   SystemEventType = "job_created"
	EventJobStarted   SystemEventType = "job_started"
	EventJobCompleted SystemEventType = "job_completed"
	EventJobFailed    SystemEventType = "job_failed"
	EventJobCancelled SystemEventType = "job_cancelled"
)

// SystemEvent is one entry in the orchestrator's best-effort event ring
type SystemEvent struct {
	Type      SystemEventType        `json:"type"`
	JobID     string                 `json:"job_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
