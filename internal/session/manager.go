package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/campaignctl/internal/credentials"
	"github.com/foxzi/campaignctl/internal/events"
	"github.com/foxzi/campaignctl/internal/metrics"
)

// ErrNotOpen is returned for a campaign without an open session
var ErrNotOpen = errors.New("campaign is not open")

// ManagerConfig contains session manager settings
type ManagerConfig struct {
	// PollInterval enables background refresh when positive
	PollInterval time.Duration
	// RefreshConcurrency bounds parallel fetches in RefreshAll
	RefreshConcurrency int
}

type entry struct {
	session *Session
	poller  *Poller
}

// Manager keeps one session per open campaign
type Manager struct {
	api    API
	creds  credentials.Provider
	broker *events.Broker
	cfg    ManagerConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager creates a session manager
func NewManager(api API, creds credentials.Provider, broker *events.Broker, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = 4
	}
	if broker == nil {
		broker = events.NewBroker()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:      ctx,
		cancel:   cancel,
		api:      api,
		creds:    creds,
		broker:   broker,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

// Events returns the broker all sessions publish to
func (m *Manager) Events() *events.Broker {
	return m.broker
}

// Open returns the session for id, creating it if needed. A new session
// starts polling when enabled; pollers live until the session is closed.
func (m *Manager) Open(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("campaign id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		return e.session, nil
	}

	s := New(id, m.api, m.creds, m.broker, m.logger)
	e := &entry{session: s}
	if m.cfg.PollInterval > 0 {
		e.poller = NewPoller(s, m.cfg.PollInterval, m.logger)
		e.poller.Start(m.ctx)
	}
	m.sessions[id] = e
	metrics.SessionOpened()

	m.logger.Info("campaign opened", "campaign_id", id)
	return s, nil
}

// Get returns the open session for id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotOpen)
	}
	return e.session, nil
}

// IDs returns the ids of all open sessions, sorted
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close closes the session for id. It returns false if none was open.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.closeEntry(e)
	m.logger.Info("campaign closed", "campaign_id", id)
	return true
}

// CloseAll closes every open session and stops all pollers
func (m *Manager) CloseAll() {
	m.cancel()

	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		m.closeEntry(e)
	}
}

func (m *Manager) closeEntry(e *entry) {
	e.session.Close()
	if e.poller != nil {
		e.poller.Stop()
	}
	metrics.SessionClosed()
}

// RefreshAll force-refreshes every open, non-halted session. One failing
// campaign does not stop the others; all failures are returned joined.
func (m *Manager) RefreshAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		sessions = append(sessions, e.session)
	}
	m.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(m.cfg.RefreshConcurrency)

	for _, s := range sessions {
		if s.Halted() {
			continue
		}
		s := s
		g.Go(func() error {
			if _, err := s.Load(ctx, true); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("refresh %s: %w", s.CampaignID(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
