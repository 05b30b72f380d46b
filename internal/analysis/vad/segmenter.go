package vad

import "encoding/binary"

// Boundary marks an utterance boundary detected in the frame stream.
type Boundary int

const (
	BoundaryNone Boundary = iota
	BoundarySpeechStart
	BoundarySpeechEnd
)

// Config tunes the energy gate. Zero values fall back to the reference
// thresholds, which were sized for ~256ms frames (4096 samples at 16kHz).
type Config struct {
	// EnergyThreshold is the mean-squared energy (on a [-1,1] sample
	// scale) above which a frame counts as speech.
	EnergyThreshold float64
	// SilenceFrames is how many consecutive sub-threshold frames end an
	// utterance.
	SilenceFrames int
}

const (
	defaultEnergyThreshold = 0.01
	defaultSilenceFrames   = 10
)

func (c Config) withDefaults() Config {
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = defaultEnergyThreshold
	}
	if c.SilenceFrames <= 0 {
		c.SilenceFrames = defaultSilenceFrames
	}
	return c
}

// Result describes one processed frame. The frame is always forwarded
// downstream regardless of speech state; Boundary flags transitions.
type Result struct {
	Energy       float64
	SpeechActive bool
	Boundary     Boundary
}

// Segmenter turns a stream of PCM frames into utterance boundaries using
// mean-squared energy and a consecutive-silence counter. It is
// deterministic: the same frame sequence always yields the same results.
type Segmenter struct {
	cfg          Config
	silenceCount int
	speechActive bool
}

// NewSegmenter builds a segmenter with the provided thresholds.
func NewSegmenter(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

// Process classifies one frame and advances the rolling silence counter.
func (s *Segmenter) Process(samples []float64) Result {
	energy := Energy(samples)
	res := Result{Energy: energy}

	if energy > s.cfg.EnergyThreshold {
		s.silenceCount = 0
		if !s.speechActive {
			s.speechActive = true
			res.Boundary = BoundarySpeechStart
		}
	} else {
		s.silenceCount++
		if s.speechActive && s.silenceCount > s.cfg.SilenceFrames {
			s.speechActive = false
			s.silenceCount = 0
			res.Boundary = BoundarySpeechEnd
		}
	}

	res.SpeechActive = s.speechActive
	return res
}

// Reset clears the rolling state, ready for a fresh stream.
func (s *Segmenter) Reset() {
	s.silenceCount = 0
	s.speechActive = false
}

// Energy computes mean-squared energy of a frame.
func Energy(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return sum / float64(len(samples))
}

// DecodePCM16 converts little-endian 16-bit PCM bytes to samples on a
// [-1,1] scale. A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float64 {
	samples := make([]float64, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		v := int16(binary.LittleEndian.Uint16(data[i:]))
		samples = append(samples, float64(v)/32768.0)
	}
	return samples
}
