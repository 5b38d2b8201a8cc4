package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAndRelease(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	a, err := store.Allocate("abc", "MP3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job-abc.mp3"), a.Path)
	assert.NoFileExists(t, a.Path)

	require.NoError(t, os.WriteFile(a.Path, []byte("audio"), 0o644))
	require.NoError(t, os.WriteFile(a.Base()+".webm.part", []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job-other.mp3"), []byte("x"), 0o644))

	a.Release()
	a.Release()

	assert.NoFileExists(t, a.Path)
	assert.NoFileExists(t, a.Base()+".webm.part")
	assert.FileExists(t, filepath.Join(dir, "job-other.mp3"))
}

func TestReleaseWithoutFile(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	a, err := store.Allocate("never-written", "")
	require.NoError(t, err)
	assert.Equal(t, ".audio", filepath.Ext(a.Path))
	a.Release()
}

func TestAllocateRejectsBadIDs(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, id := range []string{"", "  ", "../escape", `a\b`} {
		_, err := store.Allocate(id, ".wav")
		assert.Error(t, err, "id %q", id)
	}
}

func TestOpenSweepsStaleArtifacts(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "job-crashed.mp3")
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	store, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.NoFileExists(t, stale)
	assert.FileExists(t, keep)
}

func TestSecondStoreSkipsSweep(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	inFlight := filepath.Join(dir, "job-live.wav")
	require.NoError(t, os.WriteFile(inFlight, []byte("x"), 0o644))

	second, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	assert.FileExists(t, inFlight)
}

func TestNormalizeExt(t *testing.T) {
	tests := map[string]string{
		"":           ".audio",
		".WAV":       ".wav",
		"mp3":        ".mp3",
		" .m4a ":     ".m4a",
		"tar.gz":     ".audio",
		"waytoolong": ".audio",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeExt(in), "input %q", in)
	}
}
