package control

import (
	"sync"

	"github.com/foxzi/campaignctl/internal/campaign"
)

// GateState is a snapshot of the in-flight flags
type GateState struct {
	Pausing  bool `json:"pausing"`
	Stopping bool `json:"stopping"`
	Resuming bool `json:"resuming"`
}

// Gate prevents re-entrant dispatch of the same action. Each action kind has
// its own flag; a pause in flight does not block a stop.
type Gate struct {
	mu    sync.Mutex
	flags GateState
}

func (g *Gate) flag(action campaign.Action) *bool {
	switch action {
	case campaign.ActionPause:
		return &g.flags.Pausing
	case campaign.ActionStop:
		return &g.flags.Stopping
	case campaign.ActionResume:
		return &g.flags.Resuming
	}
	return nil
}

// TryAcquire marks action as in flight. It returns false when the same
// action is already in flight or unknown.
func (g *Gate) TryAcquire(action campaign.Action) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	f := g.flag(action)
	if f == nil || *f {
		return false
	}
	*f = true
	return true
}

// Release clears the in-flight flag of action
func (g *Gate) Release(action campaign.Action) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f := g.flag(action); f != nil {
		*f = false
	}
}

// InFlight reports whether action is in flight
func (g *Gate) InFlight(action campaign.Action) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	f := g.flag(action)
	return f != nil && *f
}

// State returns a copy of all flags
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flags
}
