package scribe

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// JobList is the registry of in-flight jobs.
type JobList struct {
	jobs map[uuid.UUID]*Job
	mu   sync.RWMutex
}

func NewJobList() *JobList {
	return &JobList{
		jobs: make(map[uuid.UUID]*Job),
	}
}

func (jl *JobList) Add(job *Job) {
	jl.mu.Lock()
	defer jl.mu.Unlock()
	jl.jobs[job.ID] = job
}

func (jl *JobList) Remove(id uuid.UUID) {
	jl.mu.Lock()
	defer jl.mu.Unlock()
	delete(jl.jobs, id)
}

func (jl *JobList) Get(id uuid.UUID) (*Job, bool) {
	jl.mu.RLock()
	defer jl.mu.RUnlock()
	job, ok := jl.jobs[id]
	return job, ok
}

func (jl *JobList) Len() int {
	jl.mu.RLock()
	defer jl.mu.RUnlock()
	return len(jl.jobs)
}

// List returns a snapshot of every job, oldest first.
func (jl *JobList) List() []JobSnapshot {
	jl.mu.RLock()
	out := make([]JobSnapshot, 0, len(jl.jobs))
	for _, job := range jl.jobs {
		out = append(out, job.Snapshot())
	}
	jl.mu.RUnlock()

	slices.SortFunc(out, func(a, b JobSnapshot) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out
}

// CancelAll cancels every registered job and returns how many there were.
func (jl *JobList) CancelAll(cause error) int {
	jl.mu.RLock()
	defer jl.mu.RUnlock()
	for _, job := range jl.jobs {
		job.Cancel(cause)
	}
	return len(jl.jobs)
}
