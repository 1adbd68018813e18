// -----------------------------------------------------------------------
// Priority queue & job store - min-heap ordered by (priority, enqueue, id)
// -----------------------------------------------------------------------

package queue

import (
	"container/heap"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
)

// ErrQueueFull is returned when the pending capacity is exhausted.
// Callers surface this as QUEUE_FULL.
var ErrQueueFull = errors.New("job queue is full")

// ErrDuplicateJob is returned when the same job ID is enqueued twice
var ErrDuplicateJob = errors.New("job already enqueued")

// jobHeap implements heap.Interface over queued jobs.
// Order: priority ascending, then enqueue time, then job ID.
type jobHeap []*models.Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if h[i].EnqueuedAtNs != h[j].EnqueuedAtNs {
		return h[i].EnqueuedAtNs < h[j].EnqueuedAtNs
	}
	return h[i].ID < h[j].ID
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*models.Job))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// JobStore holds every job by ID, maintains status/capability/target
// indices, and orders pending work in a min-heap. One mutex guards the
// heap, the jobs map, and all indices together so they stay consistent.
type JobStore struct {
	mu           sync.Mutex
	jobs         map[string]*models.Job
	pending      *jobHeap
	inHeap       map[string]bool
	byStatus     map[models.JobStatus]map[string]struct{}
	byCapability map[models.Capability]map[string]struct{}
	byTarget     map[string]map[string]struct{}
	maxPending   int
}

// NewJobStore creates a job store. maxPending <= 0 means unbounded.
func NewJobStore(maxPending int) *JobStore {
	h := &jobHeap{}
	heap.Init(h)
	return &JobStore{
		jobs:         make(map[string]*models.Job),
		pending:      h,
		inHeap:       make(map[string]bool),
		byStatus:     make(map[models.JobStatus]map[string]struct{}),
		byCapability: make(map[models.Capability]map[string]struct{}),
		byTarget:     make(map[string]map[string]struct{}),
		maxPending:   maxPending,
	}
}

// Put stores the job and enqueues it for execution. The same job is never
// enqueued twice. The job transitions pending -> queued here.
func (s *JobStore) Put(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inHeap[job.ID] {
		return ErrDuplicateJob
	}
	if s.maxPending > 0 && s.pending.Len() >= s.maxPending {
		return ErrQueueFull
	}

	if existing, ok := s.jobs[job.ID]; ok {
		s.dropFromIndices(existing)
	}

	job.EnqueuedAtNs = time.Now().UnixNano()
	if job.Status == models.JobStatusPending {
		if err := job.SetStatus(models.JobStatusQueued); err != nil {
			return err
		}
	}

	s.jobs[job.ID] = job
	s.addToIndices(job)
	heap.Push(s.pending, job)
	s.inHeap[job.ID] = true
	return nil
}

// Get returns the job by ID, or nil when absent
func (s *JobStore) Get(id string) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// PopNext removes and returns the highest-priority queued job, or nil
// when the queue is empty. Never blocks.
func (s *JobStore) PopNext() *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.pending.Len() > 0 {
		job := heap.Pop(s.pending).(*models.Job)
		delete(s.inHeap, job.ID)
		// Jobs cancelled while queued stay in the store but never run
		if job.Status == models.JobStatusCancelled {
			continue
		}
		return job
	}
	return nil
}

// Remove takes a queued job out of the heap (pre-run cancellation).
// Returns the job when it was still pending execution.
func (s *JobStore) Remove(id string) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inHeap[id] {
		return nil
	}
	job := s.jobs[id]
	for i, queued := range *s.pending {
		if queued.ID == id {
			heap.Remove(s.pending, i)
			break
		}
	}
	delete(s.inHeap, id)
	return job
}

// UpdateStatus applies a status transition and moves the job between
// status indices atomically.
func (s *JobStore) UpdateStatus(id string, next models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errors.New("job not found: " + id)
	}
	s.removeFromIndex(s.byStatus[job.Status], id)
	if err := job.SetStatus(next); err != nil {
		s.indexInto(s.byStatus, job.Status, id)
		return err
	}
	s.indexInto(s.byStatus, job.Status, id)
	return nil
}

// Filter selects jobs by optional capability, status, and target
type Filter = interfaces.JobListOptions

// List returns jobs matching the filter, newest first, honoring
// limit/offset. Index intersection avoids a full scan when possible.
func (s *JobStore) List(f *Filter) []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates map[string]struct{}
	switch {
	case f != nil && f.Status != "":
		candidates = s.byStatus[f.Status]
	case f != nil && f.Capability != "":
		candidates = s.byCapability[f.Capability]
	case f != nil && f.Target != "":
		candidates = s.byTarget[f.Target]
	}

	var result []*models.Job
	if candidates != nil {
		for id := range candidates {
			if job := s.jobs[id]; job != nil && matches(job, f) {
				result = append(result, job)
			}
		}
	} else {
		for _, job := range s.jobs {
			if matches(job, f) {
				result = append(result, job)
			}
		}
	}

	sortJobsByCreatedDesc(result)

	if f != nil {
		if f.Offset > 0 {
			if f.Offset >= len(result) {
				return nil
			}
			result = result[f.Offset:]
		}
		if f.Limit > 0 && len(result) > f.Limit {
			result = result[:f.Limit]
		}
	}
	return result
}

// PendingLen returns the number of jobs waiting in the heap
func (s *JobStore) PendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func matches(job *models.Job, f *Filter) bool {
	if f == nil {
		return true
	}
	if f.Capability != "" && job.Capability != f.Capability {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Target != "" && job.Target != f.Target {
		return false
	}
	return true
}

func sortJobsByCreatedDesc(jobs []*models.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

func (s *JobStore) addToIndices(job *models.Job) {
	s.indexInto(s.byStatus, job.Status, job.ID)
	if s.byCapability[job.Capability] == nil {
		s.byCapability[job.Capability] = make(map[string]struct{})
	}
	s.byCapability[job.Capability][job.ID] = struct{}{}
	if s.byTarget[job.Target] == nil {
		s.byTarget[job.Target] = make(map[string]struct{})
	}
	s.byTarget[job.Target][job.ID] = struct{}{}
}

func (s *JobStore) dropFromIndices(job *models.Job) {
	s.removeFromIndex(s.byStatus[job.Status], job.ID)
	s.removeFromIndex(s.byCapability[job.Capability], job.ID)
	s.removeFromIndex(s.byTarget[job.Target], job.ID)
}

func (s *JobStore) indexInto(index map[models.JobStatus]map[string]struct{}, status models.JobStatus, id string) {
	if index[status] == nil {
		index[status] = make(map[string]struct{})
	}
	index[status][id] = struct{}{}
}

func (s *JobStore) removeFromIndex(index map[string]struct{}, id string) {
	if index != nil {
		delete(index, id)
	}
}
