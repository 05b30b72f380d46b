package transcribe

import "context"

// Frame is one segmented audio frame handed to the transcriber. Frames are
// forwarded even during silence so an implementation can use its own
// endpointing on top of the relay's energy gate.
type Frame struct {
	Samples      []float64
	Energy       float64
	SpeechActive bool
}

// Result is the transcription of a single frame. IsFinal signals that the
// accumulated utterance should be closed and a new one started after this
// frame.
type Result struct {
	Text    string
	IsFinal bool
}

// Transcriber converts one audio frame into text. Implementations must be
// safe for sequential use from a single session; the session never issues
// concurrent calls. Swapping the simulator for a streaming ASR client must
// not require caller changes.
type Transcriber interface {
	Transcribe(ctx context.Context, frame Frame) (Result, error)
}
