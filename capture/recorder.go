// Package capture records microphone audio with PortAudio.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/bosley/relayscribe/audio"
)

const (
	calibrationDuration = 2 * time.Second
	framesPerBuffer     = 1024
)

// ErrNoSpeech is returned when the recording limit passed without any speech.
var ErrNoSpeech = errors.New("no speech detected")

// Options controls one recording.
type Options struct {
	// DeviceID selects an input device by index; zero uses the default device.
	DeviceID    int
	MaxDuration time.Duration
	// Threshold is the speech/background energy ratio.
	Threshold float64
	// Silence ends the recording once speech has been followed by this much quiet.
	Silence time.Duration
	// SkipCalibration uses the first chunks as the background estimate.
	SkipCalibration bool
}

// Recording is mono 16-bit PCM at audio.RecordingSampleRate.
type Recording struct {
	Samples    []int16
	SampleRate uint32
	Background float64
}

// Duration is the recorded length.
func (r Recording) Duration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

// Record calibrates the background level, then captures until speech is
// followed by extended silence, MaxDuration passes, or ctx is cancelled.
// Audio from before the first speech chunk is kept so the start of the first
// word is not clipped.
func Record(ctx context.Context, opts Options) (Recording, error) {
	if err := portaudio.Initialize(); err != nil {
		return Recording{}, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	params, err := inputParameters(opts.DeviceID)
	if err != nil {
		return Recording{}, err
	}

	background := 0.0
	if !opts.SkipCalibration {
		background, err = calibrateBackgroundNoise(ctx, params)
		if err != nil {
			return Recording{}, err
		}
	}

	detector := audio.NewDetector(background, opts.Threshold, opts.Silence)

	var (
		mu      sync.Mutex
		samples []int16
		chunks  int
	)
	ended := make(chan struct{})
	var endOnce sync.Once

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		mu.Lock()
		defer mu.Unlock()

		samples = append(samples, in...)
		chunks++
		if detector.Observe(in) {
			endOnce.Do(func() { close(ended) })
		}
		if chunks%40 == 0 {
			slog.Debug("Capturing audio",
				"seconds", float64(len(samples))/audio.RecordingSampleRate,
				"speaking", detector.Speaking(),
				"backgroundNoise", detector.Background())
		}
	})
	if err != nil {
		return Recording{}, fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return Recording{}, fmt.Errorf("failed to start audio stream: %w", err)
	}
	slog.Info("Recording; speak now", "maxSeconds", opts.MaxDuration.Seconds())

	var limit <-chan time.Time
	if opts.MaxDuration > 0 {
		timer := time.NewTimer(opts.MaxDuration)
		defer timer.Stop()
		limit = timer.C
	}

	select {
	case <-ended:
		slog.Info("Extended silence detected, stopping recording")
	case <-limit:
		slog.Info("Recording limit reached")
	case <-ctx.Done():
	}

	if err := stream.Stop(); err != nil {
		slog.Error("Failed to stop audio stream", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}

	mu.Lock()
	defer mu.Unlock()
	if !detector.HeardSpeech() {
		return Recording{}, ErrNoSpeech
	}
	return Recording{
		Samples:    append([]int16(nil), samples...),
		SampleRate: audio.RecordingSampleRate,
		Background: detector.Background(),
	}, nil
}

func calibrateBackgroundNoise(ctx context.Context, params portaudio.StreamParameters) (float64, error) {
	slog.Debug("Calibrating background noise")

	var (
		mu             sync.Mutex
		totalAmplitude float64
		sampleCount    int
	)
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		mu.Lock()
		totalAmplitude += audio.ChunkAmplitude(in)
		sampleCount++
		mu.Unlock()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open calibration stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return 0, fmt.Errorf("failed to start calibration stream: %w", err)
	}

	select {
	case <-time.After(calibrationDuration):
	case <-ctx.Done():
	}
	if err := stream.Stop(); err != nil {
		slog.Error("Failed to stop calibration stream", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mu.Lock()
	defer mu.Unlock()
	if sampleCount == 0 {
		return 0, errors.New("calibration captured no audio")
	}
	background := totalAmplitude / float64(sampleCount)
	slog.Debug("Background noise calibration complete", "averageAmplitude", background)
	return background, nil
}

func inputParameters(deviceID int) (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo
	if deviceID > 0 { // Only use specific device if explicitly requested (non-zero)
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get audio devices: %w", err)
		}
		if deviceID >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("invalid device ID %d", deviceID)
		}
		device = devices[deviceID]
		if device.MaxInputChannels == 0 {
			return portaudio.StreamParameters{}, fmt.Errorf("device %d (%s) is not an input device", deviceID, device.Name)
		}
	} else {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get default input device: %w", err)
		}
	}

	slog.Info("Using audio device",
		"deviceID", deviceID,
		"deviceName", device.Name,
		"sampleRate", device.DefaultSampleRate,
		"inputChannels", device.MaxInputChannels)

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: audio.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      audio.RecordingSampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, nil
}

// ListInputDevices returns every device that can record, keyed by the index
// accepted as Options.DeviceID.
func ListInputDevices() (map[int]portaudio.DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	inputs := make(map[int]portaudio.DeviceInfo)
	for i, device := range devices {
		if device.MaxInputChannels > 0 {
			inputs[i] = *device
		}
	}
	return inputs, nil
}
