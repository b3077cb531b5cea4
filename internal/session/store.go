package session

import (
	"sync"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/transport"
)

// Store holds the cached campaign of one session. It hands out copies only.
type Store struct {
	mu         sync.Mutex
	campaign     *campaign.Campaign
	delayDirty   bool
	delayVersion uint64
}

// NewStore creates an empty store for campaign id
func NewStore(id string) *Store {
	return &Store{campaign: &campaign.Campaign{ID: id}}
}

// Loaded reports whether a server snapshot was merged
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign.State != ""
}

// Snapshot returns a copy of the cached campaign
func (s *Store) Snapshot() *campaign.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign.Clone()
}

// Merge applies a server snapshot field by field. delayVersion is the
// DelayVersion read before the snapshot was requested. The server delay is
// taken only if the local delay is clean and was not touched since.
func (s *Store) Merge(d *transport.Detail, delayVersion uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.campaign.State = d.State
	s.campaign.Counters = d.Counters
	s.campaign.Recipients = append([]campaign.Recipient(nil), d.Recipients...)
	if !s.delayDirty && s.delayVersion == delayVersion {
		s.campaign.Delay = d.Delay
	}
}

// Delay returns the locally held delay range
func (s *Store) Delay() campaign.DelayRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign.Delay
}

// SetDelay records a local delay edit
func (s *Store) SetDelay(d campaign.DelayRange) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.Delay = d
	s.delayDirty = true
	s.delayVersion++
	return nil
}

// AcknowledgeDelay clears the edit flag if d is still the local value
func (s *Store) AcknowledgeDelay(d campaign.DelayRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.campaign.Delay == d {
		s.delayDirty = false
		s.delayVersion++
	}
}

// DelayVersion changes whenever the delay is edited or acknowledged
func (s *Store) DelayVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayVersion
}

// DelayDirty reports whether the delay was edited and not yet sent with a resume
func (s *Store) DelayDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayDirty
}
