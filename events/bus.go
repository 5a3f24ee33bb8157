// Package events is the in-process notification bus. Publishers never block:
// a subscriber that falls behind loses messages rather than stalling training.
package events

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event type.
type Kind string

const (
	// TrainingCompleted marks the end of a training call. It carries no attributes.
	TrainingCompleted Kind = "training_completed"
	// Transfer records a token changing owner; minting transfers from the zero owner.
	Transfer Kind = "transfer"
	// Minted records a newly minted token.
	Minted Kind = "minted"
)

const subscriberBufSize = 64

// Event is a single notification.
type Event struct {
	ID    uuid.UUID         `json:"id"`
	Kind  Kind              `json:"kind"`
	At    time.Time         `json:"at"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Bus fans out published events to the subscribers of their kind, and to the
// subscribers of every kind.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]chan Event
	all         []chan Event
	logger      *log.Logger
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[Kind][]chan Event),
		logger:      log.New(os.Stderr, "[BUS] ", log.LstdFlags),
	}
}

// Publish fans out ev to all subscribers of ev.Kind and to the catch-all subscribers.
// If a subscriber's channel is full the event is dropped for that subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := append(append([]chan Event{}, b.subscribers[ev.Kind]...), b.all...)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			b.logger.Printf("WARNING: subscriber channel full, dropped kind=%s id=%s", ev.Kind, ev.ID)
		}
	}
}

// Notify builds an event with a fresh id and timestamp and publishes it.
func (b *Bus) Notify(kind Kind, attrs map[string]string) {
	b.Publish(Event{
		ID:    uuid.New(),
		Kind:  kind,
		At:    time.Now().UTC(),
		Attrs: attrs,
	})
}

// Subscribe returns a channel that delivers events of kind k.
// Each call creates a new independent subscriber channel.
func (b *Bus) Subscribe(k Kind) <-chan Event {
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[k] = append(b.subscribers[k], ch)
	b.mu.Unlock()
	return ch
}

// SubscribeAll returns a channel that delivers every event.
func (b *Bus) SubscribeAll() <-chan Event {
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.all = append(b.all, ch)
	b.mu.Unlock()
	return ch
}
