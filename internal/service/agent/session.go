package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shodhai/speaking-agent/backend/internal/analysis/vad"
	"github.com/shodhai/speaking-agent/backend/internal/config"
	"github.com/shodhai/speaking-agent/backend/internal/model/agent"
	"github.com/shodhai/speaking-agent/backend/internal/service/transcribe"
)

// Responder turns a finalized utterance plus history into a reply. The
// returned text must always be usable; errors are reported for logging.
type Responder interface {
	Respond(ctx context.Context, role agent.Role, history []agent.Turn, userText string) (string, error)
	Greeting(role agent.Role) string
}

// workItem is one queued unit of inbound client input: either a raw audio
// frame or an already-finalized text utterance. A single queue keeps the
// two in arrival order.
type workItem struct {
	frame  []byte
	text   string
	isText bool
}

// Session owns one conversation: identity, transcript, attached
// connections, and the audio ingestion queue. All mutation goes through
// its methods; the drain loop is the only consumer of the queue and runs
// at most once concurrently (single-flight).
type Session struct {
	id        string
	role      agent.Role
	roomURL   string
	userName  string
	createdAt time.Time

	segmenter   *vad.Segmenter
	transcriber transcribe.Transcriber
	dialogue    Responder
	cfg         config.AgentConfig

	mu           sync.Mutex
	subs         map[string]*Subscription
	history      []agent.Turn
	queue        []workItem
	processing   bool
	partial      []string
	lastActivity time.Time
	idleSince    time.Time
	closed       bool
	silenceTimer *time.Timer
}

// Deps are the collaborators a session drives during draining.
type Deps struct {
	Transcriber transcribe.Transcriber
	Dialogue    Responder
}

// NewSession builds a session around its collaborators. The caller (the
// registry) owns the session's lifetime.
func NewSession(id string, role agent.Role, roomURL, userName string, deps Deps, cfg config.AgentConfig) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		role:      role,
		roomURL:   roomURL,
		userName:  userName,
		createdAt: now,
		segmenter: vad.NewSegmenter(vad.Config{
			EnergyThreshold: cfg.EnergyThreshold,
			SilenceFrames:   cfg.SilenceFrames,
		}),
		transcriber:  deps.Transcriber,
		dialogue:     deps.Dialogue,
		cfg:          cfg,
		subs:         make(map[string]*Subscription),
		lastActivity: now,
		idleSince:    now,
	}
}

// ID returns the immutable session identifier.
func (s *Session) ID() string { return s.id }

// Role returns the session persona.
func (s *Session) Role() agent.Role { return s.role }

// Summary snapshots the session for operational listings.
func (s *Session) Summary() agent.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return agent.Summary{
		ID:              s.id,
		Role:            s.role,
		RoomURL:         s.roomURL,
		UserName:        s.userName,
		ConnectionCount: len(s.subs),
		CreatedAt:       s.createdAt,
	}
}

// History returns a copy of the transcript so far.
func (s *Session) History() []agent.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agent.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Attach registers a connection sink and greets it. Only the new
// subscription receives the welcome event.
func (s *Session) Attach() *Subscription {
	sub := newSubscription()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.close()
		return sub
	}
	s.subs[sub.id] = sub
	s.idleSince = time.Time{}
	s.mu.Unlock()

	greeting := "Hello! I'm your AI conversation partner. I'm listening to you now and ready to chat."
	if s.dialogue != nil {
		greeting = s.dialogue.Greeting(s.role)
	}
	sub.send(agent.NewEvent(agent.EventWelcome, greeting))
	return sub
}

// Detach removes a connection sink. When the last one goes, the session
// becomes idle-eligible; deletion policy belongs to the registry.
func (s *Session) Detach(sub *Subscription) {
	if sub == nil {
		return
	}

	s.mu.Lock()
	if _, ok := s.subs[sub.id]; ok {
		delete(s.subs, sub.id)
		if len(s.subs) == 0 {
			s.idleSince = time.Now()
		}
	}
	s.mu.Unlock()

	sub.close()
}

// IdleSince reports how long the session has had zero connections. ok is
// false while at least one connection is attached.
func (s *Session) IdleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 || s.idleSince.IsZero() {
		return time.Time{}, false
	}
	return s.idleSince, true
}

// IngestAudio appends a raw frame to the queue and kicks the drain loop.
// It never blocks on transcription or model latency.
func (s *Session) IngestAudio(frame []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, workItem{frame: frame})
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.trigger()
}

// IngestText bypasses segmentation: the text is treated as a finalized
// utterance. It rides the same queue so it cannot overtake audio that
// arrived first.
func (s *Session) IngestText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, workItem{text: text, isText: true})
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.trigger()
}

// Broadcast sends an event to every attached connection.
func (s *Session) Broadcast(event agent.Event) {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.send(event)
	}
}

// Close broadcasts a shutdown notice and detaches every connection.
// Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	subs := make([]*Subscription, 0, len(s.subs))
	for id, sub := range s.subs {
		subs = append(subs, sub)
		delete(s.subs, id)
	}
	s.queue = nil
	s.mu.Unlock()

	notice := agent.NewEvent(agent.EventShutdown, "session closed")
	for _, sub := range subs {
		sub.send(notice)
		sub.close()
	}
}

// trigger starts the drain loop unless one is already in flight. The
// in-flight pass re-checks the queue before releasing the flag, so a
// no-op here never strands queued frames.
func (s *Session) trigger() {
	s.mu.Lock()
	if s.processing || s.closed {
		s.mu.Unlock()
		return
	}
	s.processing = true
	s.mu.Unlock()

	go s.drain()
}

// drain is the single-flight processing pass. It pops one item at a time,
// and before clearing the processing flag it re-checks the queue under the
// same critical section, so frames that arrived mid-pass are never
// dropped and the flag never covers two passes at once.
func (s *Session) drain() {
	ctx := context.Background()

	for {
		s.mu.Lock()
		if s.closed {
			s.processing = false
			s.mu.Unlock()
			return
		}

		var item workItem
		var hasItem, flush bool
		switch {
		case len(s.queue) > 0:
			item, s.queue = s.queue[0], s.queue[1:]
			hasItem = true
		case len(s.partial) > 0 && time.Since(s.lastActivity) >= s.cfg.SilenceWindow:
			flush = true
		default:
			if len(s.partial) > 0 {
				s.scheduleSilenceFlushLocked()
			}
			s.processing = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		switch {
		case flush:
			s.finalizeUtterance(ctx)
		case item.isText:
			s.completeTurn(ctx, item.text)
		case hasItem:
			s.processFrame(ctx, item.frame)
		}
	}
}

// scheduleSilenceFlushLocked arms a timer that re-triggers the drain loop
// once the silence window can have elapsed. Callers hold s.mu. The flush
// itself happens inside the single-flight pass, so it can fire at most
// once per pending partial.
func (s *Session) scheduleSilenceFlushLocked() {
	remaining := s.cfg.SilenceWindow - time.Since(s.lastActivity)
	if remaining < 0 {
		remaining = 0
	}
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	s.silenceTimer = time.AfterFunc(remaining+10*time.Millisecond, s.trigger)
}

// processFrame runs one audio frame through the segmenter and the
// transcriber. Failures are surfaced as error events; the loop moves on.
func (s *Session) processFrame(ctx context.Context, frame []byte) {
	samples := vad.DecodePCM16(frame)
	res := s.segmenter.Process(samples)

	switch res.Boundary {
	case vad.BoundarySpeechStart:
		s.Broadcast(agent.NewEvent(agent.EventStatus, "speech_start"))
	case vad.BoundarySpeechEnd:
		s.Broadcast(agent.NewEvent(agent.EventStatus, "speech_end"))
	}

	result, err := s.transcriber.Transcribe(ctx, transcribe.Frame{
		Samples:      samples,
		Energy:       res.Energy,
		SpeechActive: res.SpeechActive,
	})
	if err != nil {
		log.Printf("[session] transcription failed session=%s: %v", s.id, err)
		s.Broadcast(agent.NewEvent(agent.EventError, "transcription failed"))
		return
	}

	if result.Text == "" {
		return
	}

	s.mu.Lock()
	s.partial = append(s.partial, result.Text)
	s.mu.Unlock()

	event := agent.NewEvent(agent.EventTranscript, result.Text)
	event.IsFinal = result.IsFinal
	s.Broadcast(event)

	if result.IsFinal {
		s.finalizeUtterance(ctx)
	}
}

// finalizeUtterance closes the pending partial buffer into one user turn
// and runs the dialogue step for it.
func (s *Session) finalizeUtterance(ctx context.Context) {
	s.mu.Lock()
	if len(s.partial) == 0 {
		s.mu.Unlock()
		return
	}
	text := strings.TrimSpace(strings.Join(s.partial, " "))
	s.partial = nil
	s.mu.Unlock()

	if text == "" {
		return
	}
	s.completeTurn(ctx, text)
}

// completeTurn records the user turn, asks the dialogue backend for a
// reply, broadcasts it, and records the assistant turn. A backend failure
// degrades to the apology reply; it never stops the session.
func (s *Session) completeTurn(ctx context.Context, userText string) {
	s.mu.Lock()
	prior := make([]agent.Turn, len(s.history))
	copy(prior, s.history)
	s.history = append(s.history, agent.Turn{
		Speaker:   agent.SpeakerUser,
		Text:      userText,
		Timestamp: time.Now(),
	})
	s.lastActivity = time.Now()
	s.mu.Unlock()

	reply, err := s.dialogue.Respond(ctx, s.role, prior, userText)
	if err != nil {
		log.Printf("[session] dialogue failed session=%s: %v", s.id, err)
		s.Broadcast(agent.NewEvent(agent.EventError, "dialogue backend error"))
	}
	if reply == "" {
		return
	}

	s.mu.Lock()
	s.history = append(s.history, agent.Turn{
		Speaker:   agent.SpeakerAssistant,
		Text:      reply,
		Timestamp: time.Now(),
	})
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.Broadcast(agent.NewEvent(agent.EventResponse, reply))
}
