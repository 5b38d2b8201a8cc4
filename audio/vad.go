package audio

import (
	"math"
	"time"
)

const (
	DefaultVADThreshold    = 2.22
	DefaultSilenceDuration = 1 * time.Second

	backgroundBufferSize = 50
)

// Detector is an energy-based voice activity detector. It tracks a rolling
// background amplitude over quiet chunks and flags a chunk as speech when its
// amplitude exceeds the background by a factor of Threshold.
type Detector struct {
	Threshold float64
	Silence   time.Duration

	backgroundNoise  float64
	backgroundBuffer []float64
	speaking         bool
	heardSpeech      bool
	lastNoiseTime    time.Time
	now              func() time.Time
}

// NewDetector returns a detector seeded with a calibrated background level.
func NewDetector(background, threshold float64, silence time.Duration) *Detector {
	if threshold <= 0 {
		threshold = DefaultVADThreshold
	}
	if silence <= 0 {
		silence = DefaultSilenceDuration
	}
	d := &Detector{
		Threshold:        threshold,
		Silence:          silence,
		backgroundNoise:  background,
		backgroundBuffer: make([]float64, 0, backgroundBufferSize),
		now:              time.Now,
	}
	if background > 0 {
		d.backgroundBuffer = append(d.backgroundBuffer, background)
	}
	return d
}

// Observe feeds one chunk. It returns true once speech has been heard and
// has been followed by Silence worth of quiet chunks.
func (d *Detector) Observe(chunk []int16) (ended bool) {
	amplitude := ChunkAmplitude(chunk)

	if amplitude > d.Threshold*math.Max(d.backgroundNoise, 1) {
		d.lastNoiseTime = d.now()
		d.speaking = true
		d.heardSpeech = true
		return false
	}

	d.updateBackgroundNoise(amplitude)
	if d.speaking && d.now().Sub(d.lastNoiseTime) > d.Silence {
		d.speaking = false
		return true
	}
	return false
}

// Speaking reports whether the last chunks were speech or a short pause in it.
func (d *Detector) Speaking() bool {
	return d.speaking
}

// HeardSpeech reports whether any chunk so far was speech.
func (d *Detector) HeardSpeech() bool {
	return d.heardSpeech
}

// Background returns the current background amplitude.
func (d *Detector) Background() float64 {
	return d.backgroundNoise
}

func (d *Detector) updateBackgroundNoise(amplitude float64) {
	if len(d.backgroundBuffer) >= backgroundBufferSize {
		d.backgroundBuffer = d.backgroundBuffer[1:]
	}
	d.backgroundBuffer = append(d.backgroundBuffer, amplitude)

	var sum float64
	for _, a := range d.backgroundBuffer {
		sum += a
	}
	d.backgroundNoise = sum / float64(len(d.backgroundBuffer))
}

// ChunkAmplitude is the mean absolute sample value.
func ChunkAmplitude(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var total float64
	for _, sample := range chunk {
		total += math.Abs(float64(sample))
	}
	return total / float64(len(chunk))
}
