package scribe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bosley/relayscribe/acquire"
	"github.com/bosley/relayscribe/progress"
)

// Outcome is a job's terminal state.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Stages a job reports before the worker's own stages take over.
const (
	stageAcquiring    progress.Stage = "acquiring"
	stageTranscribing progress.Stage = "transcribing"
)

var (
	errJobCancelled = errors.New("job cancelled")
	errShuttingDown = errors.New("server shutting down")
	errClientGone   = errors.New("client disconnected")
)

// Job is one transcription request. It lives in the registry from request
// entry until its response has been written.
type Job struct {
	ID        uuid.UUID
	StartedAt time.Time

	cancel context.CancelCauseFunc

	mu       sync.Mutex
	kind     acquire.Kind
	source   string
	artifact string
	outcome  Outcome
	last     progress.Event
}

// JobSnapshot is the listing view of a job.
type JobSnapshot struct {
	ID         string         `json:"id"`
	Kind       acquire.Kind   `json:"kind,omitempty"`
	Source     string         `json:"source"`
	Stage      progress.Stage `json:"stage"`
	Percentage float64        `json:"percentage"`
	Outcome    Outcome        `json:"outcome"`
	StartedAt  time.Time      `json:"started_at"`
}

func newJob(parent context.Context, in acquire.Input) (*Job, context.Context) {
	ctx, cancel := context.WithCancelCause(parent)
	return &Job{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		cancel:    cancel,
		kind:      in.Kind,
		source:    in.Source(),
		outcome:   OutcomePending,
		last:      progress.Event{Stage: stageAcquiring},
	}, ctx
}

// Cancel stops the job. The cause becomes the job's failure message.
func (j *Job) Cancel(cause error) {
	j.cancel(cause)
}

func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:         j.ID.String(),
		Kind:       j.kind,
		Source:     j.source,
		Stage:      j.last.Stage,
		Percentage: j.last.Percentage,
		Outcome:    j.outcome,
		StartedAt:  j.StartedAt,
	}
}

func (j *Job) setKind(kind acquire.Kind) {
	j.mu.Lock()
	j.kind = kind
	j.mu.Unlock()
}

func (j *Job) setArtifact(path string) {
	j.mu.Lock()
	j.artifact = path
	j.mu.Unlock()
}

func (j *Job) setStage(stage progress.Stage) {
	j.mu.Lock()
	j.last = progress.Event{Stage: stage, Percentage: j.last.Percentage}
	j.mu.Unlock()
}

func (j *Job) observe(ev progress.Event) {
	j.mu.Lock()
	j.last = ev
	j.mu.Unlock()
}

// settle records the outcome. When the job was cancelled the returned error
// is the cancellation cause, so the client sees why rather than a bare
// "context canceled".
func (j *Job) settle(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.outcome = OutcomeFailed
	} else {
		j.outcome = OutcomeCompleted
	}
	return err
}

func (j *Job) result() (Outcome, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcome, j.artifact
}
