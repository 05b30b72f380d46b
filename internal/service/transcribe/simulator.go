package transcribe

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

var examplePhrases = []string{
	"Hello, how are you today?",
	"I'm learning a new language.",
	"Can we practice conversation?",
	"What would you like to talk about?",
	"I find this topic very interesting.",
	"Could you help me improve my pronunciation?",
	"Let's discuss something different.",
	"I enjoy talking with you.",
}

// Simulator is a stand-in transcriber that returns canned phrases with
// randomized finality. It only produces text for frames the segmenter
// marked as speech, so silent input yields empty results.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator seeded from the clock.
func NewSimulator() *Simulator {
	return NewSimulatorWithSeed(time.Now().UnixNano())
}

// NewSimulatorWithSeed creates a simulator with a fixed seed, used by tests
// that need reproducible output.
func NewSimulatorWithSeed(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Transcribe implements Transcriber.
func (s *Simulator) Transcribe(_ context.Context, frame Frame) (Result, error) {
	if !frame.SpeechActive {
		return Result{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return Result{
		Text:    examplePhrases[s.rng.Intn(len(examplePhrases))],
		IsFinal: s.rng.Float64() > 0.7,
	}, nil
}
