// Package events carries command results and load notifications from the
// control core to whatever presents them. Publishers never block.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/campaignctl/internal/campaign"
)

// Type identifies the kind of event
type Type string

const (
	TypeTransition   Type = "transition"
	TypeConfirmed    Type = "confirmed"
	TypeRolledBack   Type = "rolled_back"
	TypeIgnored      Type = "ignored"
	TypeRejected     Type = "rejected"
	TypeUnauthorized Type = "unauthorized"
	TypeDropped      Type = "dropped"
	TypeLoaded       Type = "loaded"
	TypeLoadFailed   Type = "load_failed"
	TypeClosed       Type = "closed"
)

// Event describes something that happened to an open campaign
type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	CampaignID string          `json:"campaign_id"`
	Action     campaign.Action `json:"action,omitempty"`
	From       campaign.State  `json:"from,omitempty"`
	To         campaign.State  `json:"to,omitempty"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}

// New creates an event with a fresh ID and timestamp
func New(typ Type, campaignID string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       typ,
		CampaignID: campaignID,
		At:         time.Now(),
	}
}

type subscriber struct {
	ch    chan Event
	types map[Type]bool
}

// Broker fans out events to subscribers
type Broker struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewBroker creates a new broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a subscriber for the given event types.
// Empty types means all.
func (b *Broker) Subscribe(types ...Type) *Subscription {
	sub := &subscriber{ch: make(chan Event, 64), types: make(map[Type]bool)}
	for _, t := range types {
		sub.types[t] = true
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return &Subscription{broker: b, sub: sub}
}

// Publish broadcasts an event to subscribers
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if len(sub.types) > 0 && !sub.types[ev.Type] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Drop if subscriber is slow.
		}
	}
}

// Subscription represents an active broker subscription
type Subscription struct {
	broker *Broker
	sub    *subscriber
	once   sync.Once
}

// C exposes the event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.sub.ch
}

// Close removes the subscription
func (s *Subscription) Close() {
	if s == nil || s.broker == nil || s.sub == nil {
		return
	}
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.sub)
		s.broker.mu.Unlock()
		close(s.sub.ch)
	})
}
