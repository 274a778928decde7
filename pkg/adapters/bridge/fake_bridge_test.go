package bridge_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
	Auth   string
}

// fakeBridge serves the engine API with canned replies and lets tests push event frames.
type fakeBridge struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	requests  []recordedRequest
	conns     map[string]*websocket.Conn
	streamed  chan string
	onConnect func(w http.ResponseWriter, tenant string)
	replies   map[string]reply
}

type reply struct {
	status int
	body   any
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	b := &fakeBridge{
		t:        t,
		conns:    make(map[string]*websocket.Conn),
		streamed: make(chan string, 8),
		replies:  make(map[string]reply),
	}

	upgrader := websocket.Upgrader{}
	r := chi.NewRouter()
	r.Get("/engines/{tenant}/events", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		tenant := chi.URLParam(req, "tenant")
		b.mu.Lock()
		b.conns[tenant] = conn
		b.mu.Unlock()
		b.streamed <- tenant
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
		rec := recordedRequest{Method: req.Method, Path: req.URL.EscapedPath(), Auth: req.Header.Get("Authorization")}
		if req.Body != nil {
			_ = json.NewDecoder(req.Body).Decode(&rec.Body)
		}
		b.mu.Lock()
		b.requests = append(b.requests, rec)
		canned, ok := b.replies[req.Method+" "+rec.Path]
		onConnect := b.onConnect
		b.mu.Unlock()

		if onConnect != nil && req.Method == http.MethodPost && chi.URLParam(req, "*") != "" && isConnect(rec.Path) {
			onConnect(w, tenantOf(rec.Path))
			return
		}
		if !ok {
			canned = reply{status: http.StatusOK, body: map[string]any{}}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(canned.status)
		_ = json.NewEncoder(w).Encode(canned.body)
	})

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

func isConnect(path string) bool {
	return len(path) > len("/connect") && path[len(path)-len("/connect"):] == "/connect"
}

func tenantOf(path string) string {
	// /engines/{tenant}/...
	rest := path[len("/engines/"):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return rest
}

func (b *fakeBridge) reply(method, path string, status int, body any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[method+" "+path] = reply{status: status, body: body}
}

// conn waits briefly for the event stream of a tenant; the upgrade may still be finishing.
func (b *fakeBridge) conn(tenant string) *websocket.Conn {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		conn := b.conns[tenant]
		b.mu.Unlock()
		if conn != nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// push may run on a handler goroutine, so failures are reported with Errorf.
func (b *fakeBridge) push(tenant, typ string, data map[string]any) {
	conn := b.conn(tenant)
	if conn == nil {
		b.t.Errorf("no event stream for %s", tenant)
		return
	}
	if err := conn.WriteJSON(map[string]any{"type": typ, "data": data}); err != nil {
		b.t.Errorf("push %s: %v", typ, err)
	}
}

func (b *fakeBridge) drop(tenant string) {
	b.mu.Lock()
	conn := b.conns[tenant]
	b.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (b *fakeBridge) last() recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return recordedRequest{}
	}
	return b.requests[len(b.requests)-1]
}
