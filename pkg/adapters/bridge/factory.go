package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/gorilla/websocket"
)

// DefaultConnectTimeout bounds browser start-up and page load on the bridge.
const DefaultConnectTimeout = 90 * time.Second

type wsDialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Factory opens engines on one bridge.
type Factory struct {
	base           *url.URL
	client         *http.Client
	dialer         wsDialer
	token          string
	connectTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithHTTPClient replaces the client used for commands.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) {
		f.client = c
	}
}

// WithToken sends a bearer token on every request and on the event stream.
func WithToken(token string) Option {
	return func(f *Factory) {
		f.token = strings.TrimSpace(token)
	}
}

// WithConnectTimeout sets the start-up deadline reported as domain.ErrConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(f *Factory) {
		if d > 0 {
			f.connectTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = l
	}
}

// NewFactory creates a factory for the bridge listening at baseURL (http or https).
func NewFactory(baseURL string, opts ...Option) (*Factory, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("bridge URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse bridge URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported bridge URL scheme %q", parsed.Scheme)
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}

	f := &Factory{
		base:           parsed,
		client:         &http.Client{},
		dialer:         websocket.DefaultDialer,
		connectTimeout: DefaultConnectTimeout,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Open allocates the engine handle of a tenant. Nothing is sent to the bridge until Connect.
func (f *Factory) Open(tenant domain.TenantID, credentialDir string, handler ports.EventHandler) (ports.Engine, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = func(ports.EngineEvent) {}
	}
	return &Engine{
		f:             f,
		tenant:        tenant,
		credentialDir: credentialDir,
		handler:       handler,
		logger:        f.logger.With("tenant", tenant),
	}, nil
}

// endpoint builds the URL of an engine resource. Segments are escaped.
func (f *Factory) endpoint(tenant domain.TenantID, segments ...string) *url.URL {
	escaped := []string{"engines", url.PathEscape(string(tenant))}
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return f.base.JoinPath(escaped...)
}

func (f *Factory) eventsURL(tenant domain.TenantID) string {
	u := f.endpoint(tenant, "events")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

func (f *Factory) header() http.Header {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}
	return header
}
