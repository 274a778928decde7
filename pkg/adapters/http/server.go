package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orchestrator is the session surface served over HTTP. *session.Manager implements it.
type Orchestrator interface {
	CreateSession(ctx context.Context, tenant domain.TenantID) (domain.CreateResult, error)
	State(tenant domain.TenantID) domain.SessionStatus
	PendingCredential(tenant domain.TenantID) (string, bool)
	Sessions() []domain.SessionStatus
	DestroySession(ctx context.Context, tenant domain.TenantID) error
	DeleteCredentials(ctx context.Context, tenant domain.TenantID) error

	ListGroups(ctx context.Context, tenant domain.TenantID) ([]domain.Group, error)
	ListGroupMembers(ctx context.Context, tenant domain.TenantID, groupID string) ([]domain.Member, error)
	SetGroupRestriction(ctx context.Context, tenant domain.TenantID, groupID string, restricted bool) (domain.RestrictionResult, error)

	SendText(ctx context.Context, tenant domain.TenantID, groupID, text string, opts domain.MentionOptions) (domain.SendReceipt, error)
	SendMedia(ctx context.Context, tenant domain.TenantID, groupID, filePath, caption string, opts domain.MentionOptions) (domain.SendReceipt, error)
	SendWelcome(ctx context.Context, tenant domain.TenantID, groupID, text string, joinerPhones, extraPhones []string) (domain.WelcomeReceipt, error)
	SendPoll(ctx context.Context, tenant domain.TenantID, groupID string, poll domain.Poll, opts domain.MentionOptions) (domain.PollReceipt, error)

	ListChannels(ctx context.Context, tenant domain.TenantID) ([]domain.Channel, error)
	SendChannelText(ctx context.Context, tenant domain.TenantID, channelID, text string) (domain.SendReceipt, error)
}

// EventSource feeds the SSE endpoint. memory.Sink implements it;
// an empty tenant subscribes to every tenant.
type EventSource interface {
	Subscribe(tenant domain.TenantID) (<-chan domain.Event, func())
}

// DefaultMaxUploadBytes caps multipart media uploads.
const DefaultMaxUploadBytes = 64 << 20

// Server serves the Orchestrator.
type Server struct {
	Sessions  Orchestrator
	Events    EventSource
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	uploadDir string
	maxUpload int64
}

// Option configures the Server.
type Option func(*Server)

// WithEvents enables GET /events.
func WithEvents(src EventSource) Option {
	return func(s *Server) {
		s.Events = src
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithGatherer enables GET /metrics for the given registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithUploadDir sets where uploaded media is staged (os.TempDir by default).
func WithUploadDir(dir string) Option {
	return func(s *Server) {
		s.uploadDir = dir
	}
}

// WithMaxUploadBytes caps the size of a media upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// NewHandler creates the HTTP handler for the orchestrator.
func NewHandler(orch Orchestrator, opts ...Option) http.Handler {
	s := &Server{
		Sessions:  orch,
		logger:    logging.NewNop(),
		uploadDir: os.TempDir(),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.Events != nil {
		r.Get("/events", s.SubscribeEvents)
	}

	r.Get("/sessions", s.ListSessions)
	r.Route("/sessions/{tenant}", func(r chi.Router) {
		r.Use(s.requireTenant)
		r.Post("/", s.CreateSession)
		r.Get("/", s.GetState)
		r.Delete("/", s.DestroySession)
		r.Get("/qr", s.GetQR)
		r.Delete("/credentials", s.DeleteCredentials)

		r.Get("/groups", s.ListGroups)
		r.Route("/groups/{group}", func(r chi.Router) {
			r.Get("/members", s.ListGroupMembers)
			r.Put("/restriction", s.SetGroupRestriction)
			r.Post("/messages", s.SendText)
			r.Post("/media", s.SendMedia)
			r.Post("/welcome", s.SendWelcome)
			r.Post("/polls", s.SendPoll)
		})

		r.Get("/channels", s.ListChannels)
		r.Post("/channels/{channel}/messages", s.SendChannelText)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tenantKey struct{}

// requireTenant validates the {tenant} segment once for the whole subtree.
func (s *Server) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := domain.TenantID(chi.URLParam(r, "tenant"))
		if err := tenant.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, tenant)))
	})
}

func tenantOf(r *http.Request) domain.TenantID {
	tenant, _ := r.Context().Value(tenantKey{}).(domain.TenantID)
	return tenant
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, domain.NewValidationError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "switchboard",
		"version": strings.TrimSpace(switchboard.Version),
	})
}
