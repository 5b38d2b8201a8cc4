package scribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bosley/relayscribe/acquire"
	"github.com/bosley/relayscribe/transcript"
)

const transcriptSuffix = ".transcript.json"

func (s *Scribe) inboxWorker(ctx context.Context, id int) error {
	logger := s.logger.With("inboxWorker", id)
	logger.Debug("inbox worker starting")
	defer logger.Debug("inbox worker shutting down")

	for {
		select {
		case <-ctx.Done():
			return nil

		case item := <-s.queue:
			if err := s.processInboxFile(ctx, item); err != nil {
				logger.Error("failed to transcribe inbox file",
					"error", err,
					"file", item.Path)
			}
		}
	}
}

// processInboxFile transcribes one inbox file and writes the result next to
// it. A failed job still writes a transcript file carrying the error, unless
// the server is shutting down.
func (s *Scribe) processInboxFile(ctx context.Context, item inboxJob) error {
	in := acquire.Input{Kind: acquire.KindLocal, Path: item.Path}
	job, jobCtx := s.startJob(ctx, in)
	defer s.endJob(job)

	res, err := s.execute(jobCtx, job, in, jobHooks{})
	err = job.settle(jobCtx, err)
	if err != nil && ctx.Err() != nil {
		return err
	}
	if err != nil {
		res = transcript.Result{Success: false, Error: err.Error()}
	}

	out := TranscriptPath(item.Path)
	if werr := writeTranscript(out, res); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}

	s.logger.Info("transcribed inbox file",
		"file", filepath.Base(item.Path),
		"output", filepath.Base(out),
		"textLength", len(res.Text),
		"waited", roundedSince(item.Queued))
	return nil
}

// TranscriptPath is where the inbox writes the result for audioPath.
func TranscriptPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + transcriptSuffix
}

func writeTranscript(path string, res transcript.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
