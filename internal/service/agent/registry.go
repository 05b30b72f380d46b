package agent

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shodhai/speaking-agent/backend/internal/config"
	"github.com/shodhai/speaking-agent/backend/internal/model/agent"
	"github.com/shodhai/speaking-agent/backend/internal/service/transcribe"
)

// Registry is the process-wide table of live sessions. It is the sole
// owner of session lifetimes: nothing holds a session past its removal.
// Its lock is independent of any session's lock, so registry operations
// never serialize unrelated sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newTranscriber func() transcribe.Transcriber
	dialogue       Responder
	cfg            config.AgentConfig
}

// NewRegistry builds the registry. newTranscriber is invoked once per
// session so each drain loop gets its own transcriber state.
func NewRegistry(newTranscriber func() transcribe.Transcriber, dialogue Responder, cfg config.AgentConfig) *Registry {
	return &Registry{
		sessions:       make(map[string]*Session),
		newTranscriber: newTranscriber,
		dialogue:       dialogue,
		cfg:            cfg,
	}
}

// Create allocates a session with a fresh ID and inserts it.
func (r *Registry) Create(role agent.Role, roomURL, userName string) (*Session, error) {
	session := NewSession(uuid.NewString(), role, roomURL, userName, Deps{
		Transcriber: r.newTranscriber(),
		Dialogue:    r.dialogue,
	}, r.cfg)

	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	log.Printf("[registry] created session=%s role=%s room=%s", session.ID(), role, roomURL)
	return session, nil
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Remove closes every connection of the session (with a shutdown notice)
// and deletes it. Returns false when the ID is unknown, so a second call
// on the same ID reports not-found instead of double-closing.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	session.Close()
	log.Printf("[registry] removed session=%s", id)
	return true
}

// List snapshots every live session for operational visibility.
func (r *Registry) List() []agent.Summary {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.RUnlock()

	summaries := make([]agent.Summary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Len returns the live session count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every session, used at process shutdown.
func (r *Registry) CloseAll() {
	for _, summary := range r.List() {
		r.Remove(summary.ID)
	}
}

// RunReaper removes sessions that have sat with zero connections for
// longer than the idle window. Blocks until ctx is done.
func (r *Registry) RunReaper(ctx context.Context) {
	interval := r.cfg.ReapInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapIdle()
		}
	}
}

func (r *Registry) reapIdle() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.RUnlock()

	for _, session := range sessions {
		idleSince, idle := session.IdleSince()
		if !idle {
			continue
		}
		if time.Since(idleSince) >= r.cfg.IdleWindow {
			log.Printf("[registry] reaping idle session=%s", session.ID())
			r.Remove(session.ID())
		}
	}
}
