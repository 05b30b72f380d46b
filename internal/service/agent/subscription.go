package agent

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/shodhai/speaking-agent/backend/internal/model/agent"
)

// subscriptionBuffer bounds how many undelivered events one connection may
// accumulate before the session starts dropping for it. A slow client must
// never stall the drain loop.
const subscriptionBuffer = 32

// Subscription is one attached connection's event sink. The session pushes
// events in; the gateway's writer drains them. The channel is closed when
// the subscription is detached or the session shuts down. Its own mutex
// makes send and close mutually exclusive: broadcasts happen outside the
// session lock, so a detach racing the drain loop must not panic on a
// closed channel.
type Subscription struct {
	id string

	mu     sync.Mutex
	closed bool
	events chan agent.Event
}

func newSubscription() *Subscription {
	return &Subscription{
		id:     uuid.NewString(),
		events: make(chan agent.Event, subscriptionBuffer),
	}
}

// Events exposes the receive side of the sink.
func (sub *Subscription) Events() <-chan agent.Event {
	return sub.events
}

// send delivers without blocking; events to a saturated subscriber are
// dropped rather than holding up the session, and events to a closed
// subscription are discarded.
func (sub *Subscription) send(event agent.Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}

	select {
	case sub.events <- event:
	default:
		log.Printf("[session] dropping %s event for slow subscriber %s", event.Type, sub.id)
	}
}

// close is idempotent; Detach and session shutdown may race.
func (sub *Subscription) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.events)
}
