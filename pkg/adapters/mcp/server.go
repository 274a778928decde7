package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Orchestrator is the session surface exposed as MCP tools. *session.Manager implements it.
type Orchestrator interface {
	CreateSession(ctx context.Context, tenant domain.TenantID) (domain.CreateResult, error)
	State(tenant domain.TenantID) domain.SessionStatus
	PendingCredential(tenant domain.TenantID) (string, bool)
	Sessions() []domain.SessionStatus
	DestroySession(ctx context.Context, tenant domain.TenantID) error

	ListGroups(ctx context.Context, tenant domain.TenantID) ([]domain.Group, error)
	ListGroupMembers(ctx context.Context, tenant domain.TenantID, groupID string) ([]domain.Member, error)
	SetGroupRestriction(ctx context.Context, tenant domain.TenantID, groupID string, restricted bool) (domain.RestrictionResult, error)

	SendText(ctx context.Context, tenant domain.TenantID, groupID, text string, opts domain.MentionOptions) (domain.SendReceipt, error)
	SendWelcome(ctx context.Context, tenant domain.TenantID, groupID, text string, joinerPhones, extraPhones []string) (domain.WelcomeReceipt, error)
	SendPoll(ctx context.Context, tenant domain.TenantID, groupID string, poll domain.Poll, opts domain.MentionOptions) (domain.PollReceipt, error)

	ListChannels(ctx context.Context, tenant domain.TenantID) ([]domain.Channel, error)
	SendChannelText(ctx context.Context, tenant domain.TenantID, channelID, text string) (domain.SendReceipt, error)
}

// Server exposes an Orchestrator as an MCP server.
type Server struct {
	sessions  Orchestrator
	mcpServer *server.MCPServer
	handlers  map[string]server.ToolHandlerFunc
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions Orchestrator, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("switchboard-mcp", strings.TrimSpace(switchboard.Version)),
		handlers:  make(map[string]server.ToolHandlerFunc),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.handlers[tool.Name] = handler
	s.mcpServer.AddTool(tool, handler)
}

// errorKind names the domain failure so MCP clients can branch on it.
func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid_input"
	case errors.Is(err, domain.ErrCapacity):
		return "capacity"
	case errors.Is(err, domain.ErrNotReady):
		return "not_ready"
	case errors.Is(err, domain.ErrGroupNotFound):
		return "group_not_found"
	case errors.Is(err, domain.ErrSessionInvalidated):
		return "session_invalidated"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrConnect), errors.Is(err, domain.ErrConnectTimeout):
		return "connect_failed"
	}
	return "internal"
}

func toolError(op string, err error) error {
	return fmt.Errorf("%s: %s: %w", errorKind(err), op, err)
}

func tenantArg(raw string) (domain.TenantID, error) {
	tenant := domain.TenantID(strings.TrimSpace(raw))
	if err := tenant.Validate(); err != nil {
		return "", toolError("tenant", err)
	}
	return tenant, nil
}

func (s *Server) registerResources() {
	// EXPOSE: switchboard://sessions
	s.mcpServer.AddResource(mcp.NewResource("switchboard://sessions", "Registered Sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.sessions.Sessions())
		if err != nil {
			return nil, fmt.Errorf("failed to encode sessions: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "switchboard://sessions",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
