package vad

import (
	"encoding/binary"
	"math"
	"testing"
)

func loudFrame(n int, amplitude float64) []float64 {
	frame := make([]float64, n)
	for i := range frame {
		frame[i] = amplitude * math.Sin(float64(i)/4)
	}
	return frame
}

func silentFrame(n int) []float64 {
	return make([]float64, n)
}

func TestSegmenterSpeechStartAndEnd(t *testing.T) {
	seg := NewSegmenter(Config{})

	starts, ends := 0, 0
	for i := 0; i < 5; i++ {
		res := seg.Process(loudFrame(256, 0.5))
		if res.Boundary == BoundarySpeechStart {
			starts++
		}
		if !res.SpeechActive {
			t.Fatalf("frame %d: expected speech active", i)
		}
	}
	for i := 0; i < 12; i++ {
		res := seg.Process(silentFrame(256))
		if res.Boundary == BoundarySpeechEnd {
			ends++
		}
	}

	if starts != 1 {
		t.Fatalf("expected exactly one speech_start, got %d", starts)
	}
	if ends != 1 {
		t.Fatalf("expected exactly one speech_end, got %d", ends)
	}
}

func TestSegmenterSilenceOnlyNeverStarts(t *testing.T) {
	seg := NewSegmenter(Config{})

	for i := 0; i < 30; i++ {
		res := seg.Process(silentFrame(128))
		if res.Boundary != BoundaryNone {
			t.Fatalf("frame %d: unexpected boundary %v", i, res.Boundary)
		}
		if res.SpeechActive {
			t.Fatalf("frame %d: silence should not activate speech", i)
		}
	}
}

func TestSegmenterBriefDipDoesNotEndUtterance(t *testing.T) {
	seg := NewSegmenter(Config{SilenceFrames: 10})

	seg.Process(loudFrame(256, 0.5))
	// Fewer silent frames than the threshold, then speech resumes.
	for i := 0; i < 9; i++ {
		if res := seg.Process(silentFrame(256)); res.Boundary == BoundarySpeechEnd {
			t.Fatalf("frame %d: premature speech_end", i)
		}
	}
	res := seg.Process(loudFrame(256, 0.5))
	if res.Boundary != BoundaryNone || !res.SpeechActive {
		t.Fatalf("expected speech to continue, got %+v", res)
	}
}

func TestSegmenterDeterministic(t *testing.T) {
	frames := [][]float64{
		loudFrame(64, 0.3), silentFrame(64), loudFrame(64, 0.2), silentFrame(64),
	}

	run := func() []Result {
		seg := NewSegmenter(Config{SilenceFrames: 2})
		out := make([]Result, 0, len(frames))
		for _, f := range frames {
			out = append(out, seg.Process(f))
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("run mismatch at frame %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestEnergy(t *testing.T) {
	if got := Energy(nil); got != 0 {
		t.Fatalf("empty frame energy = %f, want 0", got)
	}
	if got := Energy([]float64{0.5, -0.5}); math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("energy = %f, want 0.25", got)
	}
}

func TestDecodePCM16(t *testing.T) {
	buf := make([]byte, 4)
	negative := int16(-16384)
	binary.LittleEndian.PutUint16(buf[0:], uint16(16384))
	binary.LittleEndian.PutUint16(buf[2:], uint16(negative))

	samples := DecodePCM16(buf)
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if math.Abs(samples[0]-0.5) > 1e-3 || math.Abs(samples[1]+0.5) > 1e-3 {
		t.Fatalf("unexpected samples: %v", samples)
	}

	if got := DecodePCM16([]byte{0x01}); len(got) != 0 {
		t.Fatalf("odd byte should decode to no samples, got %v", got)
	}
}
