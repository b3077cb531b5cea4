package campaign

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of a campaign send job
type State string

const (
	StateProcessing State = "processing"
	StatePaused     State = "paused"
	StateStopped    State = "stopped"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// ParseState converts a server-provided string into a State
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateProcessing, StatePaused, StateStopped, StateCompleted, StateFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown lifecycle state %q", s)
	}
}

// Controllable reports whether pause/resume/stop commands apply to the state
func (s State) Controllable() bool {
	return s == StateProcessing || s == StatePaused || s == StateStopped
}

// Terminal reports whether no further command can change the state
func (s State) Terminal() bool {
	return s == StateStopped || s == StateCompleted || s == StateFailed
}

// Action is a lifecycle command issued against a running campaign
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStop   Action = "stop"
)

// Actions lists every control action
var Actions = []Action{ActionPause, ActionResume, ActionStop}

// ParseAction converts a string into an Action
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !slices.Contains(Actions, a) {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// RecipientStatus is the derived delivery status of a single recipient
type RecipientStatus string

const (
	StatusPending  RecipientStatus = "pending"
	StatusSent     RecipientStatus = "sent"
	StatusFailed   RecipientStatus = "failed"
	StatusNotExist RecipientStatus = "not_exist"
	StatusStopped  RecipientStatus = "stopped"
)

// Known reports whether the status is one the reconciler understands
func (s RecipientStatus) Known() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusNotExist, StatusStopped:
		return true
	}
	return false
}

// Recipient is a single entry of the campaign audience.
// Status is an optional hint sent by the server and may be empty.
type Recipient struct {
	Name   string          `json:"name"`
	Phone  string          `json:"phone"`
	Status RecipientStatus `json:"status,omitempty"`
}

// Counters holds the server-maintained aggregate delivery totals
type Counters struct {
	Total    int `json:"total"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	NotExist int `json:"not_exist"`
}

// Validate checks sent + failed + not_exist <= total
func (c Counters) Validate() error {
	if c.Total < 0 || c.Sent < 0 || c.Failed < 0 || c.NotExist < 0 {
		return fmt.Errorf("counters must not be negative: %+v", c)
	}
	if c.Sent+c.Failed+c.NotExist > c.Total {
		return fmt.Errorf("counters exceed total: sent=%d failed=%d not_exist=%d total=%d",
			c.Sent, c.Failed, c.NotExist, c.Total)
	}
	return nil
}

// DelayRange is the random per-message delay window in seconds
type DelayRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Validate checks 0 <= start <= end
func (d DelayRange) Validate() error {
	if d.Start < 0 || d.End < 0 {
		return fmt.Errorf("delay must not be negative: %d-%d", d.Start, d.End)
	}
	if d.Start > d.End {
		return fmt.Errorf("delay start %d is after end %d", d.Start, d.End)
	}
	return nil
}

// IsZero reports whether the range was never set
func (d DelayRange) IsZero() bool {
	return d.Start == 0 && d.End == 0
}

// Campaign is the client-side cached copy of a server campaign
type Campaign struct {
	ID         string      `json:"id"`
	State      State       `json:"state"`
	Recipients []Recipient `json:"recipients"`
	Counters   Counters    `json:"counters"`
	Delay      DelayRange  `json:"delay"`
}

// Clone returns a deep copy of the campaign
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	out := *c
	out.Recipients = slices.Clone(c.Recipients)
	return &out
}
