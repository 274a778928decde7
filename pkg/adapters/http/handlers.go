package http

import (
	"net/http"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/go-chi/chi/v5"
)

type createResponse struct {
	domain.CreateResult
	Error string `json:"error,omitempty"`
}

// CreateSession handles POST /sessions/{tenant}. A capacity rejection still
// carries the outcome and the queued state.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.Sessions.CreateSession(r.Context(), tenantOf(r))
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("Create session failed", "tenant", tenantOf(r), "outcome", result.Outcome, "err", err)
		s.writeJSON(w, status, createResponse{CreateResult: result, Error: err.Error()})
		return
	}
	status := http.StatusOK
	if result.Outcome == domain.OutcomeAccepted {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, createResponse{CreateResult: result})
}

// GetState handles GET /sessions/{tenant}.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Sessions.State(tenantOf(r)))
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Sessions.Sessions())
}

// GetQR handles GET /sessions/{tenant}/qr.
func (s *Server) GetQR(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(r)
	qr, ok := s.Sessions.PendingCredential(tenant)
	if !ok {
		s.writeError(w, r, domain.ErrSessionNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tenant": tenant, "qr": qr})
}

// DestroySession handles DELETE /sessions/{tenant}.
func (s *Server) DestroySession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.DestroySession(r.Context(), tenantOf(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCredentials handles DELETE /sessions/{tenant}/credentials.
func (s *Server) DeleteCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.DeleteCredentials(r.Context(), tenantOf(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGroups handles GET /sessions/{tenant}/groups.
func (s *Server) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.Sessions.ListGroups(r.Context(), tenantOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	s.writeJSON(w, http.StatusOK, groups)
}

// ListGroupMembers handles GET /sessions/{tenant}/groups/{group}/members.
func (s *Server) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.Sessions.ListGroupMembers(r.Context(), tenantOf(r), chi.URLParam(r, "group"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if members == nil {
		members = []domain.Member{}
	}
	s.writeJSON(w, http.StatusOK, members)
}

type restrictionRequest struct {
	Restricted bool `json:"restricted"`
}

// SetGroupRestriction handles PUT /sessions/{tenant}/groups/{group}/restriction.
func (s *Server) SetGroupRestriction(w http.ResponseWriter, r *http.Request) {
	var body restrictionRequest
	if !s.decode(w, r, &body) {
		return
	}
	result, err := s.Sessions.SetGroupRestriction(r.Context(), tenantOf(r), chi.URLParam(r, "group"), body.Restricted)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type textRequest struct {
	Text string `json:"text"`
	domain.MentionOptions
}

// SendText handles POST /sessions/{tenant}/groups/{group}/messages.
func (s *Server) SendText(w http.ResponseWriter, r *http.Request) {
	var body textRequest
	if !s.decode(w, r, &body) {
		return
	}
	receipt, err := s.Sessions.SendText(r.Context(), tenantOf(r), chi.URLParam(r, "group"), body.Text, body.MentionOptions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

type welcomeRequest struct {
	Text         string   `json:"text"`
	JoinerPhones []string `json:"joinerPhones"`
	ExtraPhones  []string `json:"extraPhones"`
}

// SendWelcome handles POST /sessions/{tenant}/groups/{group}/welcome.
func (s *Server) SendWelcome(w http.ResponseWriter, r *http.Request) {
	var body welcomeRequest
	if !s.decode(w, r, &body) {
		return
	}
	receipt, err := s.Sessions.SendWelcome(r.Context(), tenantOf(r), chi.URLParam(r, "group"), body.Text, body.JoinerPhones, body.ExtraPhones)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

type pollRequest struct {
	domain.Poll
	domain.MentionOptions
}

// SendPoll handles POST /sessions/{tenant}/groups/{group}/polls.
func (s *Server) SendPoll(w http.ResponseWriter, r *http.Request) {
	var body pollRequest
	if !s.decode(w, r, &body) {
		return
	}
	receipt, err := s.Sessions.SendPoll(r.Context(), tenantOf(r), chi.URLParam(r, "group"), body.Poll, body.MentionOptions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

// ListChannels handles GET /sessions/{tenant}/channels.
func (s *Server) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.Sessions.ListChannels(r.Context(), tenantOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	s.writeJSON(w, http.StatusOK, channels)
}

// SendChannelText handles POST /sessions/{tenant}/channels/{channel}/messages.
func (s *Server) SendChannelText(w http.ResponseWriter, r *http.Request) {
	var body textRequest
	if !s.decode(w, r, &body) {
		return
	}
	receipt, err := s.Sessions.SendChannelText(r.Context(), tenantOf(r), chi.URLParam(r, "channel"), body.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}
