package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger.
// The database is the source of truth for job history; the in-memory
// queue only holds the live working set.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, scope interfaces.Scope, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	// Non-admin writes are stamped with the caller's identity
	if !scope.IsAdmin && scope.UserID != "" {
		job.SetMetadata("user_id", scope.UserID)
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, scope interfaces.Scope, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if !scope.IsAdmin && job.UserID() != scope.UserID {
		// Scope violations are indistinguishable from absence
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, scope interfaces.Scope, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	limit, offset := 0, 0
	if opts != nil {
		if opts.Capability != "" {
			query = query.And("Capability").Eq(opts.Capability)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Target != "" {
			query = query.And("Target").Eq(opts.Target)
		}
		limit = opts.Limit
		offset = opts.Offset
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	// User scoping lives in job metadata, so filter and page in code
	result := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		if !scope.IsAdmin && jobs[i].UserID() != scope.UserID {
			continue
		}
		result = append(result, &jobs[i])
	}
	if offset > 0 {
		if offset >= len(result) {
			return []*models.Job{}, nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, scope interfaces.Scope, jobID string) error {
	if _, err := s.GetJob(ctx, scope, jobID); err != nil {
		return err
	}
	if err := s.db.Store().Delete(jobID, &models.Job{}); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
