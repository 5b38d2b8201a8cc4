// Package audio holds the WAV helpers and the speech detector used by the
// recorder and by upload logging.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/youpy/go-wav"
)

const (
	RecordingSampleRate = 44100 // Rate at which microphone audio is captured
	Channels            = 1     // Mono audio
	BitsPerSample       = 16    // Using int16 for samples

	wavHeaderBytes = 44
)

// Info describes a WAV file.
type Info struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	Duration      time.Duration
}

// WriteWAV writes mono 16-bit PCM samples to path. The file is written under
// a temporary name and renamed into place so a watcher never sees a partial
// file.
func WriteWAV(path string, samples []int16, sampleRate uint32) error {
	if len(samples) == 0 {
		return errors.New("no samples to write")
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	out := make([]wav.Sample, len(samples))
	for i, s := range samples {
		out[i].Values[0] = int(s)
	}

	writer := wav.NewWriter(file, uint32(len(samples)), Channels, sampleRate, BitsPerSample)
	if err := writer.WriteSamples(out); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close wav file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move wav file into place: %w", err)
	}
	return nil
}

// Probe reads the format chunk of a WAV file. Duration is derived from the
// data size, assuming the canonical 44 byte header.
func Probe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return Info{}, err
	}

	format, err := wav.NewReader(file).Format()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read wav format: %w", err)
	}

	info := Info{
		SampleRate:    format.SampleRate,
		Channels:      format.NumChannels,
		BitsPerSample: format.BitsPerSample,
	}
	if format.ByteRate > 0 && stat.Size() > wavHeaderBytes {
		seconds := float64(stat.Size()-wavHeaderBytes) / float64(format.ByteRate)
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	return info, nil
}

// IsWAV reports whether path has a .wav extension.
func IsWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}
