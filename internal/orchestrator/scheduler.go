// -----------------------------------------------------------------------
// Scheduler - cron-driven recurring scans
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// Scheduler enqueues configured scans on a cron schedule. Scheduled jobs
// run at background priority so interactive work always goes first.
type Scheduler struct {
	config *common.SchedulerConfig
	orch   *Orchestrator
	logger arbor.ILogger
	cron   *cron.Cron
}

// NewScheduler builds a scheduler over the orchestrator. Call Start to
// begin ticking.
func NewScheduler(config *common.SchedulerConfig, orch *Orchestrator, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		config: config,
		orch:   orch,
		logger: logger,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start registers the schedule and starts the cron runner. Disabled or
// empty configs are a no-op.
func (s *Scheduler) Start() error {
	if !s.config.Enabled || len(s.config.Targets) == 0 {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.tick); err != nil {
		return fmt.Errorf("invalid scheduler cron expression %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Int("targets", len(s.config.Targets)).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron runner and waits for a running tick to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// tick sweeps stale persisted jobs back onto the queue, then enqueues one
// job per configured target. Malformed entries and full-queue rejections
// are logged and skipped, never fatal.
func (s *Scheduler) tick() {
	s.orch.RequeueStale(context.Background())

	for _, entry := range s.config.Targets {
		capability, target, err := parseScheduleTarget(entry)
		if err != nil {
			s.logger.Warn().Str("entry", entry).Err(err).Msg("Skipping malformed scheduler target")
			continue
		}

		job, err := s.orch.CreateJob(context.Background(), interfaces.AdminScope,
			capability, target, nil, models.PriorityBackground)
		if err != nil {
			s.logger.Warn().
				Str("capability", string(capability)).
				Str("target", target).
				Err(err).
				Msg("Scheduled job rejected")
			continue
		}
		s.logger.Info().
			Str("job_id", job.ID).
			Str("capability", string(capability)).
			Str("target", target).
			Msg("Scheduled job enqueued")
	}
}

// parseScheduleTarget splits a "capability:target" config entry
func parseScheduleTarget(entry string) (models.Capability, string, error) {
	parts := strings.SplitN(entry, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected capability:target, got %q", entry)
	}
	capability := models.Capability(strings.TrimSpace(parts[0]))
	if !capability.IsValid() {
		return "", "", fmt.Errorf("unknown capability %q", parts[0])
	}
	return capability, strings.TrimSpace(parts[1]), nil
}
