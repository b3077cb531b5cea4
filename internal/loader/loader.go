// Package loader fetches campaign snapshots from the server and merges them
// into an open view.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/foxzi/campaignctl/internal/events"
	"github.com/foxzi/campaignctl/internal/metrics"
	"github.com/foxzi/campaignctl/internal/transport"
)

// ErrStale is returned when a fetch completes after the view was closed or reset
var ErrStale = errors.New("load result arrived after the view was reset")

// Fetcher retrieves a server snapshot
type Fetcher interface {
	FetchDetail(ctx context.Context, campaignID string) (*transport.Detail, error)
}

// Version identifies the local state a fetch was issued against
type Version struct {
	State uint64
	Delay uint64
}

// Target is the open view a loader merges into
type Target interface {
	CampaignID() string
	Open() bool
	// Version is read right before each fetch
	Version() Version
	// Apply merges a snapshot fetched at since
	Apply(d *transport.Detail, since Version)
	// Unauthorized is called when the server rejected the credential
	Unauthorized(ctx context.Context, err error)
}

// Loader loads the details of one campaign. The first successful load
// satisfies the loader; later calls without force do nothing until Reset.
type Loader struct {
	target  Target
	fetcher Fetcher
	broker  *events.Broker
	logger  *slog.Logger
	group   singleflight.Group

	mu         sync.Mutex
	loaded     bool
	generation uint64
}

// New creates a loader for target
func New(target Target, fetcher Fetcher, broker *events.Broker, logger *slog.Logger) *Loader {
	return &Loader{
		target:  target,
		fetcher: fetcher,
		broker:  broker,
		logger:  logger.With("component", "loader", "campaign_id", target.CampaignID()),
	}
}

// Loaded reports whether a load succeeded since the last Reset
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Reset clears the loaded flag. Fetches still in flight are discarded.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
	l.generation++
}

// Load fetches and merges the snapshot of campaignID. The returned bool
// reports whether a fetch was performed. Concurrent callers share a single
// request. Failures leave the merged state untouched.
func (l *Loader) Load(ctx context.Context, campaignID string, force bool) (bool, error) {
	if campaignID != l.target.CampaignID() {
		return false, fmt.Errorf("loader for campaign %s cannot load %s", l.target.CampaignID(), campaignID)
	}
	if !force && l.Loaded() {
		return false, nil
	}

	_, err, _ := l.group.Do(campaignID, func() (any, error) {
		return nil, l.fetch(ctx, campaignID)
	})
	return true, err
}

func (l *Loader) fetch(ctx context.Context, campaignID string) error {
	l.mu.Lock()
	gen := l.generation
	l.mu.Unlock()
	since := l.target.Version()

	start := time.Now()
	d, err := l.fetcher.FetchDetail(ctx, campaignID)
	elapsed := time.Since(start).Seconds()

	// l.mu stays held until the snapshot is applied so a concurrent Reset
	// cannot slip in between the check and the merge.
	l.mu.Lock()
	if gen != l.generation || !l.target.Open() {
		l.mu.Unlock()
		metrics.ObserveFetch("dropped", elapsed)
		l.logger.Debug("load result dropped", "error", err)
		return ErrStale
	}

	if err != nil {
		l.mu.Unlock()
		result := string(transport.KindOf(err))
		if result == "" {
			result = "error"
		}
		metrics.ObserveFetch(result, elapsed)
		l.publish(events.TypeLoadFailed, err)
		l.logger.Warn("failed to load campaign", "error", err)

		if errors.Is(err, transport.ErrUnauthorized) {
			l.target.Unauthorized(ctx, err)
		}
		return fmt.Errorf("load campaign %s: %w", campaignID, err)
	}

	l.target.Apply(d, since)
	l.loaded = true
	l.mu.Unlock()

	metrics.ObserveFetch("ok", elapsed)
	l.publish(events.TypeLoaded, nil)
	l.logger.Debug("campaign loaded",
		"state", d.State,
		"recipients", len(d.Recipients),
		"total", d.Counters.Total,
	)
	return nil
}

func (l *Loader) publish(typ events.Type, err error) {
	if l.broker == nil {
		return
	}
	ev := events.New(typ, l.target.CampaignID())
	if err != nil {
		ev.Error = err.Error()
	}
	l.broker.Publish(ev)
}
