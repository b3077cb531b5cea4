// Package session ties the control core together for one open campaign view
// and keeps the set of open views.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/control"
	"github.com/foxzi/campaignctl/internal/credentials"
	"github.com/foxzi/campaignctl/internal/events"
	"github.com/foxzi/campaignctl/internal/loader"
	"github.com/foxzi/campaignctl/internal/reconcile"
	"github.com/foxzi/campaignctl/internal/transport"
)

// API is the remote side of a session
type API interface {
	control.Commander
	loader.Fetcher
}

// View is a point-in-time picture of a session
type View struct {
	Campaign   *campaign.Campaign `json:"campaign"`
	Gate       control.GateState  `json:"in_flight"`
	Pending    int                `json:"pending"`
	DelayDirty bool               `json:"delay_dirty"`
	Halted     bool               `json:"halted"`
	Summary    reconcile.Summary  `json:"summary"`
}

// Session is one open campaign view
type Session struct {
	id      string
	store   *Store
	gate    *control.Gate
	machine *control.Machine
	loader  *loader.Loader
	ctrl    *control.Controller
	creds   credentials.Provider
	broker  *events.Broker
	logger  *slog.Logger

	mu       sync.Mutex
	closed   bool
	halted   bool
	done     chan struct{}
	doneOnce sync.Once
}

// New opens a session for campaign id. Nothing is fetched until Load.
func New(id string, api API, creds credentials.Provider, broker *events.Broker, logger *slog.Logger) *Session {
	s := &Session{
		id:      id,
		store:   NewStore(id),
		gate:    &control.Gate{},
		machine: control.NewMachine(""),
		creds:   creds,
		broker:  broker,
		logger:  logger.With("component", "session", "campaign_id", id),
		done:    make(chan struct{}),
	}
	s.loader = loader.New(s, api, broker, logger)
	s.ctrl = control.NewController(s, s.gate, s.machine, api, broker, logger)
	return s
}

// CampaignID returns the campaign this session controls
func (s *Session) CampaignID() string {
	return s.id
}

// Ready reports why no command may be sent, or nil
func (s *Session) Ready() error {
	s.mu.Lock()
	closed, halted := s.closed, s.halted
	s.mu.Unlock()

	switch {
	case closed:
		return control.ErrClosed
	case halted:
		return control.ErrHalted
	case !s.store.Loaded():
		return control.ErrNotLoaded
	}
	return nil
}

// Open reports whether the session is still open
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Halted reports whether the server rejected the credential
func (s *Session) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Done is closed when the session is closed or halted
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Delay returns the locally held delay range
func (s *Session) Delay() campaign.DelayRange {
	return s.store.Delay()
}

// DelayAcknowledged marks the delay sent with a confirmed resume as synced
func (s *Session) DelayAcknowledged(d campaign.DelayRange) {
	s.store.AcknowledgeDelay(d)
}

// Version returns the local versions a fetch is checked against
func (s *Session) Version() loader.Version {
	return loader.Version{State: s.machine.Version(), Delay: s.store.DelayVersion()}
}

// Apply merges a snapshot requested at since. The lifecycle state goes
// through the machine, which ignores it while commands are pending or when a
// command began or resolved after the request.
func (s *Session) Apply(d *transport.Detail, since loader.Version) {
	if !s.machine.SyncSince(d.State, since.State) {
		s.logger.Debug("fetched state ignored", "fetched", d.State, "state", s.machine.State())
	}
	s.store.Merge(d, since.Delay)
}

// Unauthorized invalidates the credential and halts the session
func (s *Session) Unauthorized(ctx context.Context, err error) {
	s.mu.Lock()
	already := s.halted
	s.halted = true
	s.mu.Unlock()
	if already {
		return
	}

	if s.creds != nil {
		if ierr := s.creds.Invalidate(ctx); ierr != nil {
			s.logger.Error("failed to invalidate credential", "error", ierr)
		}
	}
	s.stop()
	s.logger.Warn("session halted", "error", err)
}

// Load fetches the campaign details, once unless force is set
func (s *Session) Load(ctx context.Context, force bool) (bool, error) {
	s.mu.Lock()
	closed, halted := s.closed, s.halted
	s.mu.Unlock()
	if closed {
		return false, control.ErrClosed
	}
	if halted {
		return false, control.ErrHalted
	}
	return s.loader.Load(ctx, s.id, force)
}

// Dispatch issues a lifecycle command
func (s *Session) Dispatch(ctx context.Context, action campaign.Action) control.Outcome {
	return s.ctrl.Dispatch(ctx, action)
}

// SetDelay edits the delay sent with the next resume
func (s *Session) SetDelay(d campaign.DelayRange) error {
	if !s.Open() {
		return control.ErrClosed
	}
	if err := s.store.SetDelay(d); err != nil {
		return err
	}
	s.logger.Debug("delay edited", "start", d.Start, "end", d.End)
	return nil
}

// Snapshot returns the cached campaign with the machine's current state
func (s *Session) Snapshot() (*View, error) {
	if !s.store.Loaded() {
		return nil, control.ErrNotLoaded
	}

	c := s.store.Snapshot()
	c.State = s.machine.State()

	return &View{
		Campaign:   c,
		Gate:       s.gate.State(),
		Pending:    s.machine.Pending(),
		DelayDirty: s.store.DelayDirty(),
		Halted:     s.Halted(),
		Summary:    reconcile.Summarize(reconcile.Reconcile(c.Recipients, c.Counters, c.State)),
	}, nil
}

// Rows returns reconciled recipient rows, filtered by status when set
func (s *Session) Rows(status campaign.RecipientStatus) ([]reconcile.Row, error) {
	if !s.store.Loaded() {
		return nil, control.ErrNotLoaded
	}
	c := s.store.Snapshot()
	c.State = s.machine.State()
	return reconcile.Filter(reconcile.Rows(c), status), nil
}

// Close closes the session. Results arriving later are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.loader.Reset()
	s.stop()

	if s.broker != nil {
		s.broker.Publish(events.New(events.TypeClosed, s.id))
	}
	s.logger.Debug("session closed")
}

func (s *Session) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}
