// -----------------------------------------------------------------------
// Orchestrator - job lifecycle, worker pool, persistence glue
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/events"
	"github.com/ternarybob/darkwatch/internal/findings"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/ternarybob/darkwatch/internal/observer"
	"github.com/ternarybob/darkwatch/internal/queue"
)

// ErrJobNotFound is returned when a job ID resolves to nothing
var ErrJobNotFound = errors.New("job not found")

// pollInterval is how often idle workers re-check the queue
const pollInterval = 250 * time.Millisecond

// Orchestrator owns the job lifecycle end to end: creation, queueing,
// dispatch to collectors, streaming, persistence, and cancellation.
type Orchestrator struct {
	config    *common.Config
	logger    arbor.ILogger
	registry  *collectors.Registry
	jobs      *queue.JobStore
	findings  *findings.Bus
	observers *observer.Registry
	events    *events.Bus
	storage   interfaces.StorageManager
	index     *findingIndex

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	workerWg   sync.WaitGroup
	stopWorker context.CancelFunc
}

// New composes the orchestrator from its parts. storage may be nil in
// tests; persistence is best-effort throughout.
func New(config *common.Config, registry *collectors.Registry, storage interfaces.StorageManager, logger arbor.ILogger) *Orchestrator {
	o := &Orchestrator{
		config:   config,
		logger:   logger,
		registry: registry,
		jobs:     queue.NewJobStore(config.Queue.MaxPending),
		events:   events.NewBus(logger),
		storage:  storage,
		index:    newFindingIndex(),
		cancels:  make(map[string]context.CancelFunc),
	}
	o.observers = observer.NewRegistry(logger)
	o.findings = findings.NewBus(func(jobID string, f models.Finding) {
		o.observers.PublishFinding(jobID, f)
	})
	return o
}

// Observers exposes the observer registry for the websocket bridge
func (o *Orchestrator) Observers() *observer.Registry { return o.observers }

// Findings exposes the finding bus for reconcile reads
func (o *Orchestrator) Findings() *findings.Bus { return o.findings }

// Events exposes the system event bus
func (o *Orchestrator) Events() *events.Bus { return o.events }

// CreateJob builds a job, merges its config over the capability defaults,
// queues it, and persists it.
func (o *Orchestrator) CreateJob(ctx context.Context, scope interfaces.Scope, capability models.Capability, target string, config map[string]interface{}, priority models.Priority) (*models.Job, error) {
	merged := o.registry.DefaultConfig(capability)
	for k, v := range config {
		merged[k] = v
	}

	job := models.NewJob(common.NewJobID(), capability, target, merged)
	job.Priority = priority
	if !scope.IsAdmin && scope.UserID != "" {
		job.SetMetadata("user_id", scope.UserID)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if err := o.jobs.Put(job); err != nil {
		return nil, err
	}
	o.persistJob(ctx, job)
	o.events.Publish(ctx, models.EventJobCreated, job.ID, map[string]interface{}{
		"capability": string(capability),
		"target":     target,
	})

	o.logger.Info().
		Str("job_id", job.ID).
		Str("capability", string(capability)).
		Str("target", target).
		Str("priority", job.Priority.String()).
		Msg("Job created")
	return job, nil
}

// GetJob returns a job by ID
func (o *Orchestrator) GetJob(jobID string) (*models.Job, error) {
	job := o.jobs.Get(jobID)
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first
func (o *Orchestrator) ListJobs(f *queue.Filter) []*models.Job {
	return o.jobs.List(f)
}

// ExecuteJob runs one job to completion on the calling goroutine. Status
// moves to running, the collector streams through the publisher, and the
// terminal status depends on the collector's error return.
func (o *Orchestrator) ExecuteJob(ctx context.Context, jobID string) error {
	job := o.jobs.Get(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status == models.JobStatusCancelled {
		return nil
	}

	collector, err := o.registry.Get(job.Capability)
	if err != nil {
		_ = o.jobs.UpdateStatus(jobID, models.JobStatusRunning)
		return o.failJob(ctx, job, err)
	}

	if err := o.jobs.UpdateStatus(jobID, models.JobStatusRunning); err != nil {
		return err
	}
	o.persistJob(ctx, job)
	o.events.Publish(ctx, models.EventJobStarted, jobID, nil)

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[jobID] = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.cancels, jobID)
		o.mu.Unlock()
	}()

	started := time.Now()
	pub := newJobPublisher(o, job)

	collected, runErr := collector.Run(runCtx, job, pub)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return o.failJob(ctx, job, runErr)
	}
	if errors.Is(runErr, context.Canceled) || job.Status == models.JobStatusCancelled {
		// Partial results from a cancelled run are kept
		job.Findings = collected
		_ = o.jobs.UpdateStatus(jobID, models.JobStatusCancelled)
		o.persistJob(ctx, job)
		o.events.Publish(ctx, models.EventJobCancelled, jobID, nil)
		o.observers.PublishError(jobID, "job cancelled")
		o.logger.Info().Str("job_id", jobID).Msg("Job cancelled mid-run")
		return nil
	}

	job.Findings = collected

	if err := o.jobs.UpdateStatus(jobID, models.JobStatusCompleted); err != nil {
		return err
	}
	o.persistJob(ctx, job)
	o.notifyCompletion(ctx, job, len(collected))
	o.events.Publish(ctx, models.EventJobCompleted, jobID, map[string]interface{}{
		"findings": len(collected),
	})
	o.observers.PublishComplete(jobID, len(collected), crawledCount(job), time.Since(started))

	o.logger.Info().
		Str("job_id", jobID).
		Int("findings", len(collected)).
		Msg("Job completed")
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, job *models.Job, cause error) error {
	job.Error = cause.Error()
	if err := o.jobs.UpdateStatus(job.ID, models.JobStatusFailed); err != nil {
		o.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed-status transition rejected")
	}
	o.persistJob(ctx, job)
	o.notifyFailure(ctx, job)
	o.events.Publish(ctx, models.EventJobFailed, job.ID, map[string]interface{}{
		"error": cause.Error(),
	})
	o.observers.PublishError(job.ID, cause.Error())

	o.logger.Error().
		Str("job_id", job.ID).
		Err(cause).
		Msg("Job failed")
	return nil
}

// CancelJob cancels a job. Queued jobs are removed from the heap; running
// jobs get their context cancelled and finish with whatever they have.
func (o *Orchestrator) CancelJob(jobID string) error {
	job := o.jobs.Get(jobID)
	if job == nil {
		return ErrJobNotFound
	}

	o.mu.Lock()
	cancel, running := o.cancels[jobID]
	o.mu.Unlock()
	if running {
		o.jobs.Remove(jobID)
		_ = o.jobs.UpdateStatus(jobID, models.JobStatusCancelled)
		cancel()
		return nil
	}

	if removed := o.jobs.Remove(jobID); removed != nil {
		if err := o.jobs.UpdateStatus(jobID, models.JobStatusCancelled); err != nil {
			return err
		}
		o.persistJob(context.Background(), job)
		o.events.Publish(context.Background(), models.EventJobCancelled, jobID, nil)
		o.logger.Info().Str("job_id", jobID).Msg("Queued job cancelled")
		return nil
	}

	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s already %s", jobID, job.Status)
	}
	return o.jobs.UpdateStatus(jobID, models.JobStatusCancelled)
}

// QuickScanResult aggregates one capability's outcome in a quick scan
type QuickScanResult struct {
	Capability  models.Capability `json:"capability"`
	JobID       string            `json:"job_id"`
	Findings    int               `json:"findings"`
	MaxSeverity models.Severity   `json:"max_severity"`
	Error       string            `json:"error,omitempty"`
}

// QuickScan runs exposure, infrastructure, and email audits sequentially
// against a domain at high priority and aggregates the outcome.
func (o *Orchestrator) QuickScan(ctx context.Context, scope interfaces.Scope, domain string) ([]QuickScanResult, error) {
	sequence := []models.Capability{
		models.CapabilityExposureDiscovery,
		models.CapabilityInfrastructureTest,
		models.CapabilityEmailSecurity,
	}

	var results []QuickScanResult
	for _, capability := range sequence {
		job, err := o.CreateJob(ctx, scope, capability, domain, nil, models.PriorityHigh)
		if err != nil {
			return results, fmt.Errorf("quick scan %s: %w", capability, err)
		}
		// Take it off the queue; quick scan runs inline
		o.jobs.Remove(job.ID)

		result := QuickScanResult{Capability: capability, JobID: job.ID}
		if err := o.ExecuteJob(ctx, job.ID); err != nil {
			result.Error = err.Error()
		}
		refreshed := o.jobs.Get(job.ID)
		if refreshed != nil {
			result.Findings = len(refreshed.Findings)
			result.MaxSeverity = maxSeverity(refreshed.Findings)
			if refreshed.Error != "" {
				result.Error = refreshed.Error
			}
		}
		results = append(results, result)

		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, nil
}

// CachedFindings returns prior findings for a target across jobs. The
// durable store is authoritative; the bus only holds live jobs.
func (o *Orchestrator) CachedFindings(ctx context.Context, target string) ([]models.Finding, error) {
	if o.storage == nil {
		return nil, nil
	}
	return o.storage.FindingStorage().GetFindingsByTarget(ctx, interfaces.AdminScope, target)
}

// TopFindings returns the highest-risk findings seen this process
func (o *Orchestrator) TopFindings(n int) []models.Finding {
	return o.index.Top(n)
}

// RequeueStale re-queues persisted jobs a previous process left in a
// non-terminal state. Jobs already tracked in memory are left alone.
func (o *Orchestrator) RequeueStale(ctx context.Context) int {
	if o.storage == nil {
		return 0
	}

	requeued := 0
	for _, status := range []models.JobStatus{models.JobStatusRunning, models.JobStatusQueued, models.JobStatusPending} {
		persisted, err := o.storage.JobStorage().ListJobs(ctx, interfaces.AdminScope, &interfaces.JobListOptions{Status: status})
		if err != nil {
			o.logger.Warn().Str("status", string(status)).Err(err).Msg("Stale job scan failed")
			continue
		}
		for _, job := range persisted {
			if o.jobs.Get(job.ID) != nil {
				continue
			}
			job.Status = models.JobStatusPending
			job.Progress = 0
			job.Error = ""
			job.StartedAt = nil
			if err := o.jobs.Put(job); err != nil {
				o.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Stale job requeue rejected")
				continue
			}
			o.persistJob(ctx, job)
			requeued++
		}
	}
	if requeued > 0 {
		o.logger.Info().Int("requeued", requeued).Msg("Stale jobs requeued")
	}
	return requeued
}

// Start recovers interrupted jobs and launches the worker pool draining
// the queue
func (o *Orchestrator) Start(ctx context.Context) {
	o.RequeueStale(ctx)

	workers := o.config.Queue.Workers
	if workers <= 0 {
		workers = 1
	}
	workerCtx, cancel := context.WithCancel(ctx)
	o.stopWorker = cancel

	for i := 0; i < workers; i++ {
		o.workerWg.Add(1)
		go o.workerLoop(workerCtx, i)
	}
	o.logger.Info().Int("workers", workers).Msg("Orchestrator workers started")
}

// Stop shuts the worker pool down and waits for in-flight jobs
func (o *Orchestrator) Stop() {
	if o.stopWorker != nil {
		o.stopWorker()
	}
	o.workerWg.Wait()
	o.logger.Info().Msg("Orchestrator workers stopped")
}

func (o *Orchestrator) workerLoop(ctx context.Context, id int) {
	defer o.workerWg.Done()

	for {
		job := o.jobs.PopNext()
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if err := o.ExecuteJob(ctx, job.ID); err != nil {
			o.logger.Error().
				Int("worker", id).
				Str("job_id", job.ID).
				Err(err).
				Msg("Job execution error")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// ----- persistence & notifications (best-effort) -----

func (o *Orchestrator) persistJob(ctx context.Context, job *models.Job) {
	if o.storage == nil {
		return
	}
	if err := o.storage.JobStorage().SaveJob(ctx, interfaces.AdminScope, job); err != nil {
		o.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Job persistence failed")
	}
}

func (o *Orchestrator) persistFinding(ctx context.Context, job *models.Job, f *models.Finding) {
	if o.storage == nil {
		return
	}
	scope := interfaces.AdminScope
	if userID := job.UserID(); userID != "" {
		scope = interfaces.Scope{UserID: userID}
	}
	if err := o.storage.FindingStorage().SaveFinding(ctx, scope, f); err != nil {
		o.logger.Warn().Str("finding_id", f.ID).Err(err).Msg("Finding persistence failed")
	}
}

// notifyFinding creates a notification record for critical/high findings
// when the job has an owner
func (o *Orchestrator) notifyFinding(ctx context.Context, job *models.Job, f *models.Finding) {
	if o.storage == nil {
		return
	}
	userID := job.UserID()
	if userID == "" {
		return
	}
	if f.Severity != models.SeverityCritical && f.Severity != models.SeverityHigh {
		return
	}

	n := &models.Notification{
		ID:        common.NewNotificationID(),
		UserID:    userID,
		JobID:     job.ID,
		FindingID: f.ID,
		Severity:  f.Severity,
		Title:     fmt.Sprintf("%s finding: %s", f.Severity, f.Title),
		Message:   f.Description,
		CreatedAt: time.Now(),
	}
	if err := o.storage.NotificationStorage().SaveNotification(ctx, interfaces.Scope{UserID: userID}, n); err != nil {
		o.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Finding notification failed")
	}
}

func (o *Orchestrator) notifyCompletion(ctx context.Context, job *models.Job, findingCount int) {
	o.saveJobNotification(ctx, job, "Scan completed",
		fmt.Sprintf("%s scan of %s completed with %d findings.", job.Capability, job.Target, findingCount), "")
}

func (o *Orchestrator) notifyFailure(ctx context.Context, job *models.Job) {
	o.saveJobNotification(ctx, job, "Scan failed",
		fmt.Sprintf("%s scan of %s failed: %s", job.Capability, job.Target, job.Error), "")
}

func (o *Orchestrator) saveJobNotification(ctx context.Context, job *models.Job, title, message, findingID string) {
	if o.storage == nil {
		return
	}
	userID := job.UserID()
	if userID == "" {
		return
	}
	n := &models.Notification{
		ID:        common.NewNotificationID(),
		UserID:    userID,
		JobID:     job.ID,
		FindingID: findingID,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := o.storage.NotificationStorage().SaveNotification(ctx, interfaces.Scope{UserID: userID}, n); err != nil {
		o.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Job notification failed")
	}
}

// ----- helpers -----

func maxSeverity(findings []models.Finding) models.Severity {
	best := models.SeverityInfo
	for _, f := range findings {
		if f.Severity.Rank() > best.Rank() {
			best = f.Severity
		}
	}
	return best
}

// crawledCount reads the dark-web crawl total from job metadata
func crawledCount(job *models.Job) int {
	urls, ok := job.Metadata["crawled_urls"].([]string)
	if !ok {
		return 0
	}
	return len(urls)
}

var _ interfaces.OrchestratorContext = (*Orchestrator)(nil)
