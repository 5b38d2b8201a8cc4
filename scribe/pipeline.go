package scribe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bosley/relayscribe/acquire"
	"github.com/bosley/relayscribe/audio"
	"github.com/bosley/relayscribe/progress"
	"github.com/bosley/relayscribe/transcript"
)

// Transcriber runs the worker over one acquired audio file.
// *worker.Supervisor satisfies it.
type Transcriber interface {
	Run(ctx context.Context, audioPath string, onProgress func(progress.Event)) (transcript.Result, error)
}

type jobHooks struct {
	// acquired runs once the audio is on disk, before the worker starts.
	acquired func()
	progress func(progress.Event)
}

func (s *Scribe) startJob(parent context.Context, in acquire.Input) (*Job, context.Context) {
	job, ctx := newJob(parent, in)
	s.jobs.Add(job)
	s.logger.Info("job started",
		"jobID", job.ID.String(),
		"kind", in.Kind,
		"source", in.Source())
	return job, ctx
}

func (s *Scribe) endJob(job *Job) {
	job.Cancel(nil)
	s.jobs.Remove(job.ID)
	outcome, artifactPath := job.result()
	s.logger.Info("job finished",
		"jobID", job.ID.String(),
		"outcome", outcome,
		"artifact", artifactPath,
		"took", roundedSince(job.StartedAt))
}

// execute runs one job from input to result. The artifact is released
// before execute returns, whatever the outcome.
func (s *Scribe) execute(ctx context.Context, job *Job, in acquire.Input, hooks jobHooks) (transcript.Result, error) {
	if in.Kind == "" {
		kind, err := acquire.Classify(in.URL)
		if err != nil {
			return transcript.Result{}, err
		}
		in.Kind = kind
		job.setKind(kind)
	}

	art, err := s.artifacts.Allocate(job.ID.String(), acquire.ExtFor(in))
	if err != nil {
		return transcript.Result{}, fmt.Errorf("allocate artifact: %w", err)
	}
	defer art.Release()
	job.setArtifact(art.Path)

	path, err := s.acquirer.Acquire(ctx, in, art.Path)
	if err != nil {
		return transcript.Result{}, err
	}
	s.describeAudio(job, path)

	job.setStage(stageTranscribing)
	if hooks.acquired != nil {
		hooks.acquired()
	}

	return s.transcriber.Run(ctx, path, func(ev progress.Event) {
		job.observe(ev)
		if hooks.progress != nil {
			hooks.progress(ev)
		}
	})
}

func (s *Scribe) describeAudio(job *Job, path string) {
	if !s.logger.Enabled(context.Background(), slog.LevelDebug) || !audio.IsWAV(path) {
		return
	}
	info, err := audio.Probe(path)
	if err != nil {
		s.logger.Debug("could not probe wav artifact", "jobID", job.ID.String(), "error", err)
		return
	}
	s.logger.Debug("wav artifact",
		"jobID", job.ID.String(),
		"sampleRate", info.SampleRate,
		"channels", info.Channels,
		"bitsPerSample", info.BitsPerSample,
		"duration", info.Duration.String())
}
