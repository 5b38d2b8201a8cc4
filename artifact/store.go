// Package artifact manages the per-job temporary audio files.
//
// Every job gets exactly one artifact path inside the store directory. The
// path is released (deleted together with any sibling the download tool left
// next to it) when the job's execution scope ends, whatever the outcome.
package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	filePrefix = "job-"
	lockName   = ".relayscribe.lock"

	defaultExt = ".audio"
)

// Store allocates artifact paths under one directory.
type Store struct {
	dir    string
	lock   *flock.Flock
	owner  bool
	logger *slog.Logger
}

// Open ensures dir exists and takes the directory lock. The process holding
// the lock sweeps artifacts left behind by a previous crash; a second process
// sharing the directory still allocates unique paths but never sweeps.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "relayscribe")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure artifact dir: %w", err)
	}

	s := &Store{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, lockName)),
		logger: logger.With("component", "artifacts"),
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock artifact dir: %w", err)
	}
	s.owner = ok
	if ok {
		s.sweep()
	} else {
		s.logger.Warn("artifact dir locked by another process; skipping sweep", "dir", dir)
	}
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the directory lock.
func (s *Store) Close() error {
	if !s.owner {
		return nil
	}
	s.owner = false
	return s.lock.Unlock()
}

// Allocate reserves the artifact path for jobID. The file itself is not
// created; acquisition writes it.
func (s *Store) Allocate(jobID, ext string) (*Artifact, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || strings.ContainsAny(jobID, `/\`) {
		return nil, fmt.Errorf("allocate artifact: invalid job id %q", jobID)
	}
	path := filepath.Join(s.dir, filePrefix+jobID+NormalizeExt(ext))
	if _, err := os.Lstat(path); err == nil {
		return nil, fmt.Errorf("allocate artifact: %s already exists", path)
	}
	return &Artifact{Path: path, logger: s.logger}, nil
}

// sweep removes artifacts from earlier runs of this process.
func (s *Store) sweep() {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to sweep stale artifact", "path", path, "error", err)
			continue
		}
		s.logger.Info("swept stale artifact", "path", path)
	}
}

// NormalizeExt lower-cases ext and ensures a leading dot. Anything that does
// not look like a short alphanumeric extension becomes ".audio".
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || len(ext) > 8 {
		return defaultExt
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExt
		}
	}
	return "." + ext
}

// Artifact is one job's local audio file.
type Artifact struct {
	Path string

	once   sync.Once
	logger *slog.Logger
}

// Base returns the path without its extension. The download tool writes
// "<base>.<ext>" files.
func (a *Artifact) Base() string {
	return strings.TrimSuffix(a.Path, filepath.Ext(a.Path))
}

// Release deletes the artifact and any sibling sharing its base name. It is
// safe to call more than once; failures are logged, never returned, so they
// cannot mask the job's own outcome.
func (a *Artifact) Release() {
	a.once.Do(func() {
		start := time.Now()
		paths := []string{a.Path}
		if siblings, err := filepath.Glob(globEscape(a.Base()) + ".*"); err == nil {
			paths = append(paths, siblings...)
		}
		removed := 0
		for _, path := range paths {
			err := os.Remove(path)
			switch {
			case err == nil:
				removed++
			case errors.Is(err, os.ErrNotExist):
			default:
				a.logger.Warn("failed to delete artifact", "path", path, "error", err)
			}
		}
		a.logger.Debug("released artifact",
			"path", a.Path,
			"removed", removed,
			"took", time.Since(start).String())
	})
}

func globEscape(path string) string {
	replacer := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return replacer.Replace(path)
}
