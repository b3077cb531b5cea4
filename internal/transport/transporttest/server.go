// Package transporttest provides an in-process fake of the remote campaign
// API for tests of packages built on transport.Client.
package transporttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaignctl/internal/campaign"
)

// ControlCall records one control command received by the server
type ControlCall struct {
	CampaignID string
	Action     campaign.Action
	Delay      *campaign.DelayRange
	RequestID  string
}

// Response overrides the reply to a control command
type Response struct {
	HTTPStatus int
	OK         bool
	Message    string
}

// Hold blocks control commands of one action until released
type Hold struct {
	arrived     chan struct{}
	release     chan struct{}
	arriveOnce  sync.Once
	releaseOnce sync.Once
}

// Arrived is closed once a held request reached the server
func (h *Hold) Arrived() <-chan struct{} {
	return h.arrived
}

// Release lets held requests complete
func (h *Hold) Release() {
	h.releaseOnce.Do(func() { close(h.release) })
}

// Server is a fake remote campaign API
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	token        string
	campaigns    map[string]*campaign.Campaign
	responses    map[campaign.Action]Response
	holds        map[campaign.Action]*Hold
	controlCalls []ControlCall
	fetches      map[string]int
	fetchStatus  int
	fetchHold    *Hold
}

// NewServer starts a fake API accepting the given bearer token
func NewServer(token string) *Server {
	s := &Server{
		token:     token,
		campaigns: make(map[string]*campaign.Campaign),
		responses: make(map[campaign.Action]Response),
		holds:     make(map[campaign.Action]*Hold),
		fetches:   make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.auth)
	r.Get("/campaigns/{id}", s.handleDetail)
	r.Post("/campaigns/{id}/{action}", s.handleControl)
	s.Server = httptest.NewServer(r)
	return s
}

// Put stores a campaign served by the fake
func (s *Server) Put(c *campaign.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c.Clone()
}

// Campaign returns the server-side copy of a campaign
func (s *Server) Campaign(id string) *campaign.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[id].Clone()
}

// SetToken changes the accepted bearer token
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// SetResponse overrides the reply to one action
func (s *Server) SetResponse(action campaign.Action, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[action] = resp
}

// ClearResponse restores the default reply to one action
func (s *Server) ClearResponse(action campaign.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.responses, action)
}

// SetFetchStatus makes detail requests fail with the given HTTP status; 0 restores normal replies
func (s *Server) SetFetchStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchStatus = status
}

// Hold blocks the next control commands of action until released
func (s *Server) Hold(action campaign.Action) *Hold {
	h := &Hold{arrived: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.holds[action] = h
	s.mu.Unlock()
	return h
}

// HoldFetch blocks detail requests until released. Held requests answer
// with the campaign as it was on arrival.
func (s *Server) HoldFetch() *Hold {
	h := &Hold{arrived: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.fetchHold = h
	s.mu.Unlock()
	return h
}

// ControlCalls returns every control command received so far
func (s *Server) ControlCalls() []ControlCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ControlCall, len(s.controlCalls))
	copy(out, s.controlCalls)
	return out
}

// FetchCount returns how many detail requests hit a campaign
func (s *Server) FetchCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[id]
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The reply reflects the campaign as it was when the request arrived.
	s.mu.Lock()
	s.fetches[id]++
	hold := s.fetchHold
	status := s.fetchStatus
	c := s.campaigns[id].Clone()
	s.mu.Unlock()

	if hold != nil {
		hold.arriveOnce.Do(func() { close(hold.arrived) })
		select {
		case <-hold.release:
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "fetch failed"})
		return
	}
	if c == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "message": "campaign not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": true,
		"message": map[string]any{
			"status":     c.State,
			"recipients": c.Recipients,
			"counters":   c.Counters,
			"delay":      c.Delay,
		},
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action := campaign.Action(chi.URLParam(r, "action"))

	var body struct {
		Delay *campaign.DelayRange `json:"delay"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
	}

	s.mu.Lock()
	s.controlCalls = append(s.controlCalls, ControlCall{
		CampaignID: id,
		Action:     action,
		Delay:      body.Delay,
		RequestID:  r.Header.Get("X-Request-ID"),
	})
	hold := s.holds[action]
	s.mu.Unlock()

	if hold != nil {
		hold.arriveOnce.Do(func() { close(hold.arrived) })
		select {
		case <-hold.release:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	resp, overridden := s.responses[action]
	c := s.campaigns[id]
	if !overridden && c != nil {
		applyControl(c, action, body.Delay)
	}
	s.mu.Unlock()

	switch {
	case overridden && resp.HTTPStatus != 0 && resp.HTTPStatus != http.StatusOK:
		writeJSON(w, resp.HTTPStatus, map[string]string{"error": resp.Message})
	case overridden:
		writeJSON(w, http.StatusOK, map[string]any{"status": resp.OK, "message": resp.Message})
	case c == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "message": "campaign not found"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "message": "ok"})
	}
}

func applyControl(c *campaign.Campaign, action campaign.Action, delay *campaign.DelayRange) {
	switch action {
	case campaign.ActionPause:
		c.State = campaign.StatePaused
	case campaign.ActionResume:
		c.State = campaign.StateProcessing
		if delay != nil {
			c.Delay = *delay
		}
	case campaign.ActionStop:
		c.State = campaign.StateStopped
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
