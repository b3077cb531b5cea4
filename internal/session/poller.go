package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/campaignctl/internal/control"
	"github.com/foxzi/campaignctl/internal/loader"
)

// Poller periodically refreshes an open session
type Poller struct {
	session  *Session
	interval time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewPoller creates a poller for s
func NewPoller(s *Session, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		session:  s,
		interval: interval,
		logger:   logger.With("component", "poller", "campaign_id", s.CampaignID()),
		cancel:   func() {},
	}
}

// Start starts the polling goroutine
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Debug("poller started", "interval", p.interval)
}

// Stop stops the poller, aborting a refresh in flight, and waits for it to finish
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.session.Done():
			p.logger.Debug("poller stopped with session")
			return
		case <-ticker.C:
			if !p.poll(ctx) {
				return
			}
		}
	}
}

// poll refreshes once and reports whether polling should continue
func (p *Poller) poll(ctx context.Context) bool {
	_, err := p.session.Load(ctx, true)
	switch {
	case err == nil:
		return true
	case errors.Is(err, control.ErrClosed), errors.Is(err, control.ErrHalted), errors.Is(err, loader.ErrStale):
		return false
	}
	// already logged by the loader; keep polling
	return !p.session.Halted()
}
