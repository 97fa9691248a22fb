package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfworker/database"
)

// fakeRepository is an in-memory database.Repository
type fakeRepository struct {
	mu        sync.Mutex
	jobs      map[ulid.ULID]*database.Job
	progress  map[ulid.ULID][]int
	pingErr   error
	createErr error
	deleted   int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		jobs:     map[ulid.ULID]*database.Job{},
		progress: map[ulid.ULID][]int{},
	}
}

func (r *fakeRepository) Close() error { return nil }

func (r *fakeRepository) Ping() error { return r.pingErr }

func (r *fakeRepository) CreateJob(jobType database.JobType, message string) (*database.Job, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	now := time.Now()
	id, err := database.CalculateUUID(now)
	if err != nil {
		return nil, err
	}
	job := &database.Job{ID: id, Type: jobType, Status: database.JobStatusPending, Message: message, CreatedAt: now, UpdatedAt: now}
	r.mu.Lock()
	r.jobs[id] = job
	r.mu.Unlock()
	copied := *job
	return &copied, nil
}

func (r *fakeRepository) update(jobID ulid.ULID, fn func(job *database.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrJobNotFound, jobID)
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (r *fakeRepository) UpdateJobProgress(jobID ulid.ULID, progress int, currentStep string) error {
	return r.update(jobID, func(job *database.Job) {
		job.Progress = progress
		job.CurrentStep = currentStep
		r.progress[jobID] = append(r.progress[jobID], progress)
	})
}

func (r *fakeRepository) UpdateJobStatus(jobID ulid.ULID, status database.JobStatus, message string) error {
	return r.update(jobID, func(job *database.Job) {
		job.Status = status
		job.Message = message
	})
}

func (r *fakeRepository) UpdateJobError(jobID ulid.ULID, errorMsg string) error {
	return r.update(jobID, func(job *database.Job) {
		job.Status = database.JobStatusFailed
		job.Error = errorMsg
	})
}

func (r *fakeRepository) CompleteJob(jobID ulid.ULID, result string) error {
	return r.update(jobID, func(job *database.Job) {
		job.Status = database.JobStatusCompleted
		job.Progress = 100
		job.Result = result
	})
}

func (r *fakeRepository) GetJob(jobID ulid.ULID) (*database.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrJobNotFound, jobID)
	}
	copied := *job
	return &copied, nil
}

func (r *fakeRepository) GetRecentJobs(limit, offset int) ([]database.Job, error) {
	jobs := r.sorted(func(*database.Job) bool { return true })
	if offset >= len(jobs) {
		return nil, nil
	}
	jobs = jobs[offset:]
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *fakeRepository) GetActiveJobs() ([]database.Job, error) {
	return r.sorted(func(job *database.Job) bool { return !job.Status.Terminal() }), nil
}

func (r *fakeRepository) DeleteOldJobs(olderThan time.Duration) (int, error) {
	if olderThan < 0 {
		return 0, errors.New("negative retention")
	}
	return r.deleted, nil
}

func (r *fakeRepository) sorted(keep func(*database.Job) bool) []database.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []database.Job
	for _, job := range r.jobs {
		if keep(job) {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID.Compare(jobs[j].ID) > 0 })
	return jobs
}
