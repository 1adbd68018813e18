package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/ternarybob/darkwatch/internal/queue"
)

// fakeCollector runs a caller-provided function for its capability
type fakeCollector struct {
	capability models.Capability
	defaults   map[string]interface{}
	run        func(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error)
}

func (f *fakeCollector) Capability() models.Capability { return f.capability }

func (f *fakeCollector) DefaultConfig() map[string]interface{} { return f.defaults }

func (f *fakeCollector) Run(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
	return f.run(ctx, job, pub)
}

func newTestOrchestrator(t *testing.T, fakes ...*fakeCollector) *Orchestrator {
	t.Helper()
	cfg := common.NewDefaultConfig()
	registry := collectors.NewRegistry(common.GetLogger())
	for _, f := range fakes {
		registry.Register(f)
	}
	return New(cfg, registry, nil, common.GetLogger())
}

func staticCollector(capability models.Capability, findings []models.Finding) *fakeCollector {
	return &fakeCollector{
		capability: capability,
		defaults:   map[string]interface{}{},
		run: func(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
			pub.Progress(10, "starting")
			for _, f := range findings {
				pub.Finding(f)
			}
			pub.Progress(100, "done")
			return findings, nil
		},
	}
}

func TestCreateJob_MergesConfigOverDefaults(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCollector{
		capability: models.CapabilityExposureDiscovery,
		defaults:   map[string]interface{}{"max_results": 50, "include_subdomains": true},
		run: func(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
			return nil, nil
		},
	})

	job, err := o.CreateJob(context.Background(), interfaces.Scope{UserID: "user-1"},
		models.CapabilityExposureDiscovery, "example.com",
		map[string]interface{}{"max_results": 10}, models.PriorityNormal)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 10, job.Config["max_results"], "caller config wins over defaults")
	assert.Equal(t, true, job.Config["include_subdomains"])
	assert.Equal(t, "user-1", job.UserID())

	events := o.Events().Recent(10)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventJobCreated, events[len(events)-1].Type)
	assert.Equal(t, job.ID, events[len(events)-1].JobID)
}

func TestCreateJob_UnknownCapabilityRejected(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.CreateJob(context.Background(), interfaces.AdminScope,
		"no_such_capability", "example.com", nil, models.PriorityNormal)
	assert.Error(t, err)
}

func TestCreateJob_QueueFull(t *testing.T) {
	o := newTestOrchestrator(t, staticCollector(models.CapabilityExposureDiscovery, nil))
	o.config.Queue.MaxPending = 1
	o.jobs = queue.NewJobStore(1)

	_, err := o.CreateJob(context.Background(), interfaces.AdminScope,
		models.CapabilityExposureDiscovery, "a.com", nil, models.PriorityNormal)
	require.NoError(t, err)

	_, err = o.CreateJob(context.Background(), interfaces.AdminScope,
		models.CapabilityExposureDiscovery, "b.com", nil, models.PriorityNormal)
	assert.ErrorIs(t, err, queue.ErrQueueFull)
}

func TestExecuteJob_HappyPath(t *testing.T) {
	found := []models.Finding{
		{ID: "finding_1", Severity: models.SeverityHigh, RiskScore: 75, Title: "Exposed panel"},
		{ID: "finding_2", Severity: models.SeverityInfo, RiskScore: 5, Title: "Index reachable"},
	}
	o := newTestOrchestrator(t, staticCollector(models.CapabilityExposureDiscovery, found))

	job, err := o.CreateJob(context.Background(), interfaces.AdminScope,
		models.CapabilityExposureDiscovery, "example.com", nil, models.PriorityNormal)
	require.NoError(t, err)

	ch := o.Observers().Subscribe(job.ID)
	require.NoError(t, o.ExecuteJob(context.Background(), job.ID))

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Len(t, job.Findings, 2)
	assert.Equal(t, 2, o.Findings().Count(job.ID))

	// The observer stream ends with a complete event carrying totals
	var sawFinding, sawComplete bool
	for done := false; !done; {
		select {
		case ev := <-ch:
			switch ev.Type {
			case models.ObserverFinding:
				sawFinding = true
			case models.ObserverComplete:
				sawComplete = true
				assert.Equal(t, 2, ev.TotalFindings)
				done = true
			}
		default:
			done = true
		}
	}
	assert.True(t, sawFinding)
	assert.True(t, sawComplete)

	events := o.Events().Recent(10)
	assert.Equal(t, models.EventJobCompleted, events[len(events)-1].Type)
}

func TestExecuteJob_CollectorError(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCollector{
		capability: models.CapabilityEmailSecurity,
		defaults:   map[string]interface{}{},
		run: func(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
			return nil, fmt.Errorf("resolver unreachable")
		},
	})

	job, err := o.CreateJob(context.Background(), interfaces.AdminScope,
		models.CapabilityEmailSecurity, "example.com", nil, models.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, o.ExecuteJob(context.Background(), job.ID))
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "resolver unreachable", job.Error)

	events := o.Events().Recent(10)
	assert.Equal(t, models.EventJobFailed, events[len(events)-1].Type)
}

func TestExecuteJob_NoCollectorRegistered(t *testing.T) {
	o := newTestOrchestrator(t, staticCollector(models.CapabilityExposureDiscovery, nil))

	job, err := o.CreateJob(context.Background(), interfaces.AdminScope,
		models.CapabilityExposureDiscovery, "example.com", nil, models.PriorityNormal)
	require.NoError(t, err)

	// Deregistering is not supported; simulate by pointing at a fresh registry
	o.registry = collectors.NewRegistry(common.GetLogger())
	require.NoError(t, o.ExecuteJob(context.Background(), job.ID))
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "no collector registered")
}

func TestPriorityOrdering(t *testing.T) {
	o := newTestOrchestrator(t, staticCollector(models.CapabilityExposureDiscovery, nil))

	mk := func(target string, p models.Priority) *models.Job {
		job, err := o.CreateJob(context.Background(), interfaces.AdminScope,
			models.CapabilityExposureDiscovery, target, nil, p)
		require.NoError(t, err)
		return job
	}
	normal := mk("normal.com", models.PriorityNormal)
	critical := mk("critical.com", models.PriorityCritical)
	high := mk("high.com", models.PriorityHigh)

	assert.Equal(t, critical.ID, o.jobs.PopNext().ID)
	assert.Equal(t, high.ID, o.jobs.PopNext().ID)
	assert.Equal(t, normal.ID, o.jobs.PopNext().ID)
}

func TestCancelJob_BeforeRun(t *testing.T) {
	o := newTestOrchestrator(t, staticCollector(models.CapabilityExposureDiscovery, nil))

	job, err := o.CreateJob(context.Background(), interfaces.AdminScope,
		models.CapabilityExposureDiscovery, "example.com", nil, models.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, o.CancelJob(job.ID))
	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Nil(t, o.jobs.PopNext(), "cancelled job must never be dispatched")

	// A second cancel of a terminal job is rejected
	assert.Error(t, o.CancelJob(job.ID))
}

func TestCancelJob_MidRun(t *testing.T) {
	started := make(chan struct{})
	o := newTestOrchestrator(t, &fakeCollector{
		capability: models.CapabilityDarkWebIntelligence,
		defaults:   map[string]interface{}{},
		run: func(ctx context.Context, job *models.Job, pub interfaces.Publisher) ([]models.Finding, error) {
			partial := models.Finding{ID: "finding_partial", Severity: models.SeverityMedium, Title: "Partial"}
			pub.Finding(partial)
			close(started)
			<-ctx.Done()
			return []models.Finding{partial}, ctx.Err()
		},
	})

	job, err := o.CreateJob(context.Background(), interfaces.AdminScope,
		models.CapabilityDarkWebIntelligence, "acme", nil, models.PriorityNormal)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- o.ExecuteJob(context.Background(), job.ID) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("collector never started")
	}
	require.NoError(t, o.CancelJob(job.ID))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not unwind after cancel")
	}

	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Len(t, job.Findings, 1, "partial findings from a cancelled run are kept")
}

func TestCancelJob_NotFound(t *testing.T) {
	o := newTestOrchestrator(t)
	assert.ErrorIs(t, o.CancelJob("job-missing"), ErrJobNotFound)
}

func TestQuickScan_RunsSequenceAndAggregates(t *testing.T) {
	o := newTestOrchestrator(t,
		staticCollector(models.CapabilityExposureDiscovery, []models.Finding{
			{ID: "finding_e1", Severity: models.SeverityHigh, RiskScore: 75, Title: "Exposed panel"},
		}),
		staticCollector(models.CapabilityInfrastructureTest, nil),
		staticCollector(models.CapabilityEmailSecurity, []models.Finding{
			{ID: "finding_m1", Severity: models.SeverityCritical, RiskScore: 90, Title: "SPF missing"},
			{ID: "finding_m2", Severity: models.SeverityLow, RiskScore: 20, Title: "Weak DMARC"},
		}),
	)

	results, err := o.QuickScan(context.Background(), interfaces.Scope{UserID: "user-1"}, "example.com")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.CapabilityExposureDiscovery, results[0].Capability)
	assert.Equal(t, 1, results[0].Findings)
	assert.Equal(t, models.SeverityHigh, results[0].MaxSeverity)

	assert.Equal(t, models.CapabilityInfrastructureTest, results[1].Capability)
	assert.Zero(t, results[1].Findings)

	assert.Equal(t, models.CapabilityEmailSecurity, results[2].Capability)
	assert.Equal(t, 2, results[2].Findings)
	assert.Equal(t, models.SeverityCritical, results[2].MaxSeverity)

	assert.Zero(t, o.jobs.PendingLen(), "quick scan jobs must not linger in the queue")
}

func TestWorkerPool_DrainsQueue(t *testing.T) {
	o := newTestOrchestrator(t, staticCollector(models.CapabilityExposureDiscovery, []models.Finding{
		{ID: "finding_w1", Severity: models.SeverityInfo, RiskScore: 5, Title: "Observed"},
	}))
	o.config.Queue.Workers = 2

	var jobs []*models.Job
	for i := 0; i < 4; i++ {
		job, err := o.CreateJob(context.Background(), interfaces.AdminScope,
			models.CapabilityExposureDiscovery, fmt.Sprintf("site%d.com", i), nil, models.PriorityNormal)
		require.NoError(t, err)
		jobs = append(jobs, job)
	}

	o.Start(context.Background())
	deadline := time.After(5 * time.Second)
	for {
		completed := 0
		for _, job := range jobs {
			if o.jobs.Get(job.ID).Status == models.JobStatusCompleted {
				completed++
			}
		}
		if completed == len(jobs) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d of %d jobs completed", completed, len(jobs))
		case <-time.After(20 * time.Millisecond):
		}
	}
	o.Stop()
}

func TestFindingIndex_TopOrdersByRisk(t *testing.T) {
	idx := newFindingIndex()
	idx.Add(models.Finding{ID: "finding_a", RiskScore: 40})
	idx.Add(models.Finding{ID: "finding_b", RiskScore: 90})
	idx.Add(models.Finding{ID: "finding_c", RiskScore: 65})

	top := idx.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "finding_b", top[0].ID)
	assert.Equal(t, "finding_c", top[1].ID)
	assert.Equal(t, 3, idx.Len())
}

func TestParseScheduleTarget(t *testing.T) {
	capability, target, err := parseScheduleTarget("email_security:example.com")
	require.NoError(t, err)
	assert.Equal(t, models.CapabilityEmailSecurity, capability)
	assert.Equal(t, "example.com", target)

	_, _, err = parseScheduleTarget("bare-entry")
	assert.Error(t, err)
	_, _, err = parseScheduleTarget("bogus:example.com")
	assert.Error(t, err)
}

// fakeStorage backs RequeueStale tests with an in-memory job store. The
// other stores are unused on this path.
type fakeStorage struct {
	jobs *fakeJobStorage
}

func (s *fakeStorage) JobStorage() interfaces.JobStorage                   { return s.jobs }
func (s *fakeStorage) FindingStorage() interfaces.FindingStorage           { return nil }
func (s *fakeStorage) GraphStorage() interfaces.GraphStorage               { return nil }
func (s *fakeStorage) IndicatorStorage() interfaces.IndicatorStorage       { return nil }
func (s *fakeStorage) NotificationStorage() interfaces.NotificationStorage { return nil }
func (s *fakeStorage) ScoreStorage() interfaces.ScoreStorage               { return nil }
func (s *fakeStorage) URLStorage() interfaces.URLStorage                   { return nil }
func (s *fakeStorage) NetworkLogStorage() interfaces.NetworkLogStorage     { return nil }
func (s *fakeStorage) Close() error                                        { return nil }

type fakeJobStorage struct {
	saved map[string]*models.Job
}

func (s *fakeJobStorage) SaveJob(ctx context.Context, scope interfaces.Scope, job *models.Job) error {
	s.saved[job.ID] = job
	return nil
}

func (s *fakeJobStorage) GetJob(ctx context.Context, scope interfaces.Scope, jobID string) (*models.Job, error) {
	return s.saved[jobID], nil
}

func (s *fakeJobStorage) ListJobs(ctx context.Context, scope interfaces.Scope, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	var out []*models.Job
	for _, job := range s.saved {
		if opts != nil && opts.Status != "" && job.Status != opts.Status {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *fakeJobStorage) DeleteJob(ctx context.Context, scope interfaces.Scope, jobID string) error {
	delete(s.saved, jobID)
	return nil
}

func TestRequeueStale_RecoversInterruptedJobs(t *testing.T) {
	storage := &fakeStorage{jobs: &fakeJobStorage{saved: make(map[string]*models.Job)}}

	interrupted := models.NewJob("job_stale", models.CapabilityExposureDiscovery, "example.com", nil)
	interrupted.Status = models.JobStatusRunning
	interrupted.Progress = 40
	storage.jobs.saved[interrupted.ID] = interrupted

	finished := models.NewJob("job_done", models.CapabilityExposureDiscovery, "example.com", nil)
	finished.Status = models.JobStatusCompleted
	storage.jobs.saved[finished.ID] = finished

	cfg := common.NewDefaultConfig()
	registry := collectors.NewRegistry(common.GetLogger())
	o := New(cfg, registry, storage, common.GetLogger())

	assert.Equal(t, 1, o.RequeueStale(context.Background()))

	recovered := o.jobs.Get("job_stale")
	require.NotNil(t, recovered)
	assert.Equal(t, models.JobStatusQueued, recovered.Status)
	assert.Equal(t, 0, recovered.Progress)
	assert.Nil(t, o.jobs.Get("job_done"), "terminal jobs stay out of the queue")

	// Already tracked in memory, so a second sweep is a no-op
	assert.Equal(t, 0, o.RequeueStale(context.Background()))
}
