package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gordonklaus/portaudio"
	"github.com/youpy/go-wav"
)

// Play plays a WAV file on the default output device and returns when the
// file has been played or ctx is cancelled.
func Play(ctx context.Context, filename string) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	done := false
	stream, err := portaudio.OpenDefaultStream(
		0,
		int(format.NumChannels),
		float64(format.SampleRate),
		framesPerBuffer,
		func(out []int16) {
			if done {
				clear(out)
				return
			}
			frames := uint32(len(out) / int(format.NumChannels))
			samples, err := reader.ReadSamples(frames)
			if err != nil && !errors.Is(err, io.EOF) {
				slog.Error("Error reading from WAV file", "error", err)
			}

			n := 0
			for _, sample := range samples {
				for ch := 0; ch < int(format.NumChannels) && ch < len(sample.Values) && n < len(out); ch++ {
					out[n] = int16(sample.Values[ch])
					n++
				}
			}
			// Fill remaining buffer with silence if needed
			clear(out[n:])

			if err != nil || len(samples) == 0 {
				done = true
				close(finished)
			}
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	select {
	case <-finished:
	case <-ctx.Done():
	}
	return stream.Stop()
}
