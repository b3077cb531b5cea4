package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/control"
	"github.com/foxzi/campaignctl/internal/events"
	"github.com/foxzi/campaignctl/internal/reconcile"
	"github.com/foxzi/campaignctl/internal/session"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Campaigns int    `json:"campaigns"`
}

// CommandResponse is returned by the lifecycle command endpoints
type CommandResponse struct {
	Outcome control.Outcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
	View    *session.View   `json:"view,omitempty"`
}

// OpenResponse is returned by POST /campaigns/{id}/open
type OpenResponse struct {
	Fetched bool          `json:"fetched"`
	View    *session.View `json:"view,omitempty"`
}

// RecipientsResponse is returned by GET /campaigns/{id}/recipients
type RecipientsResponse struct {
	Rows    []reconcile.Row   `json:"rows"`
	Summary reconcile.Summary `json:"summary"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Campaigns: len(s.sessions.IDs()),
	})
}

// handleList handles GET /api/v1/campaigns
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, map[string]any{"campaigns": s.sessions.IDs()})
}

// handleOpen handles POST /api/v1/campaigns/{id}/open
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Open(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error(), nil)
		return
	}

	fetched, err := sess.Load(r.Context(), false)
	if err != nil {
		s.failure(w, err)
		return
	}

	view, err := sess.Snapshot()
	if err != nil {
		s.failure(w, err)
		return
	}
	writeOK(w, http.StatusOK, OpenResponse{Fetched: fetched, View: view})
}

// handleClose handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.Close(id) {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("campaign %s is not open", id), nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"closed": id})
}

// handleSnapshot handles GET /api/v1/campaigns/{id}
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	view, err := sess.Snapshot()
	if err != nil {
		s.failure(w, err)
		return
	}
	writeOK(w, http.StatusOK, view)
}

// handleRefresh handles POST /api/v1/campaigns/{id}/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.Load(r.Context(), true); err != nil {
		s.failure(w, err)
		return
	}
	view, err := sess.Snapshot()
	if err != nil {
		s.failure(w, err)
		return
	}
	writeOK(w, http.StatusOK, view)
}

// handleRefreshAll handles POST /api/v1/refresh
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.RefreshAll(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, codeUpstream, err.Error(), nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"refreshed": s.sessions.IDs()})
}

// handleRecipients handles GET /api/v1/campaigns/{id}/recipients?status=
func (s *Server) handleRecipients(w http.ResponseWriter, r *http.Request) {
	status := campaign.RecipientStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Known() {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("unknown recipient status: %s", status), nil)
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	all, err := sess.Rows("")
	if err != nil {
		s.failure(w, err)
		return
	}

	statuses := make([]campaign.RecipientStatus, len(all))
	for i, row := range all {
		statuses[i] = row.Status
	}
	writeOK(w, http.StatusOK, RecipientsResponse{
		Rows:    reconcile.Filter(all, status),
		Summary: reconcile.Summarize(statuses),
	})
}

// handleSetDelay handles PUT /api/v1/campaigns/{id}/delay
func (s *Server) handleSetDelay(w http.ResponseWriter, r *http.Request) {
	var d campaign.DelayRange
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body", nil)
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.SetDelay(d); err != nil {
		if status, code := errorStatus(err); status != http.StatusInternalServerError {
			writeError(w, status, code, err.Error(), nil)
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error(), nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"delay": d})
}

// handleCommand handles POST /api/v1/campaigns/{id}/{pause|resume|stop}
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	action, err := campaign.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, err.Error(), nil)
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	outcome := sess.Dispatch(r.Context(), action)
	resp := CommandResponse{Outcome: outcome}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	if view, err := sess.Snapshot(); err == nil {
		resp.View = view
	}

	status, code := outcomeStatus(outcome)
	if code == "" {
		writeOK(w, status, resp)
		return
	}
	writeError(w, status, code, fmt.Sprintf("%s %s", action, outcome.Result), resp)
}

// handleEvents streams events as server-sent events, optionally filtered
// by ?campaign_id=
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternal, "streaming unsupported", nil)
		return
	}
	campaignID := r.URL.Query().Get("campaign_id")

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sub := s.sessions.Events().Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if campaignID != "" && ev.CampaignID != campaignID {
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}

// session resolves the {id} URL parameter to an open session
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.failure(w, err)
		return nil, false
	}
	return sess, true
}

// failure writes err as an error envelope
func (s *Server) failure(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("console request failed", "error", err)
	}
	writeError(w, status, code, err.Error(), nil)
}
