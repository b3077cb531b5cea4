package control

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/foxzi/campaignctl/internal/campaign"
)

var (
	// ErrInvalidTransition is returned when an action does not apply to the current state
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrTerminal is returned once the campaign can no longer be controlled
	ErrTerminal = errors.New("campaign is in a terminal state")
)

// Transition is an optimistic state change awaiting server confirmation
type Transition struct {
	ID     uint64
	Action campaign.Action
	From   campaign.State
	To     campaign.State
}

// Machine owns the controllable lifecycle state of one campaign.
//
// Begin flips the state immediately and records the pre-action state.
// Transitions may resolve in any order:
//   - rolling back the newest pending transition restores its From;
//   - rolling back an older one leaves the current state alone and re-bases
//     the next pending transition onto its From;
//   - confirming a stop is final and discards everything still pending;
//   - resolving a transition that is no longer pending does nothing.
type Machine struct {
	mu      sync.Mutex
	state   campaign.State
	pending []*Transition
	final   bool
	seq     uint64
	version uint64
}

// NewMachine creates a machine in the given state
func NewMachine(initial campaign.State) *Machine {
	return &Machine{state: initial, final: initial.Terminal()}
}

// State returns the current, possibly optimistic, state
func (m *Machine) State() campaign.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns the number of unresolved transitions
func (m *Machine) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Final reports whether the machine accepts no further commands
func (m *Machine) Final() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.final || m.state.Terminal()
}

// Begin applies the optimistic transition for action
func (m *Machine) Begin(action campaign.Action) (*Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.final || m.state.Terminal() {
		return nil, fmt.Errorf("%s from %s: %w", action, m.state, ErrTerminal)
	}

	var to campaign.State
	switch {
	case action == campaign.ActionPause && m.state == campaign.StateProcessing:
		to = campaign.StatePaused
	case action == campaign.ActionResume && m.state == campaign.StatePaused:
		to = campaign.StateProcessing
	case action == campaign.ActionStop && (m.state == campaign.StateProcessing || m.state == campaign.StatePaused):
		to = campaign.StateStopped
	default:
		return nil, fmt.Errorf("%s from %q: %w", action, m.state, ErrInvalidTransition)
	}

	m.seq++
	t := &Transition{ID: m.seq, Action: action, From: m.state, To: to}
	m.pending = append(m.pending, t)
	m.state = to
	m.version++
	return t, nil
}

// Confirm resolves t as accepted by the server. It returns false when t was
// no longer pending.
func (m *Machine) Confirm(t *Transition) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(t)
	if idx < 0 {
		return false
	}

	if t.Action == campaign.ActionStop {
		m.state = campaign.StateStopped
		m.pending = nil
		m.final = true
		m.version++
		return true
	}

	m.pending = slices.Delete(m.pending, idx, idx+1)
	m.version++
	return true
}

// Rollback resolves t as rejected. It returns false when t was no longer
// pending.
func (m *Machine) Rollback(t *Transition) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(t)
	if idx < 0 {
		return false
	}

	if idx == len(m.pending)-1 {
		m.state = t.From
	} else {
		m.pending[idx+1].From = t.From
	}
	m.pending = slices.Delete(m.pending, idx, idx+1)
	m.version++
	return true
}

// Version changes whenever a transition begins or resolves
func (m *Machine) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Sync adopts a state reported by the server. Fetched states are ignored
// while transitions are pending or after a confirmed stop, so a stale
// snapshot cannot undo a local change.
func (m *Machine) Sync(state campaign.State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sync(state)
}

// SyncSince is Sync for a snapshot requested at the given Version. The
// state is ignored if any transition began or resolved since, because the
// snapshot may predate it.
func (m *Machine) SyncSince(state campaign.State, version uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if version != m.version {
		return false
	}
	return m.sync(state)
}

func (m *Machine) sync(state campaign.State) bool {
	if m.final || len(m.pending) > 0 {
		return false
	}
	m.state = state
	m.final = state.Terminal()
	return true
}

func (m *Machine) indexOf(t *Transition) int {
	if t == nil {
		return -1
	}
	return slices.IndexFunc(m.pending, func(p *Transition) bool { return p.ID == t.ID })
}
