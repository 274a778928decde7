package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/gorilla/websocket"
)

const wsCloseTimeout = 5 * time.Second

// Engine is one tenant's engine on the bridge.
type Engine struct {
	f             *Factory
	tenant        domain.TenantID
	credentialDir string
	handler       ports.EventHandler
	logger        *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

var _ ports.Engine = (*Engine)(nil)

// Connect opens the event stream, then asks the bridge to start the engine.
// Events emitted during start-up are delivered before Connect returns.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine %s is closed", e.tenant)
	}
	if e.conn != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine %s already connected", e.tenant)
	}
	e.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, e.f.connectTimeout)
	defer cancel()

	conn, _, err := e.f.dialer.DialContext(cctx, e.f.eventsURL(e.tenant), e.f.header())
	if err != nil {
		return connectErr(ctx, cctx, fmt.Errorf("dial event stream: %w", err))
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.conn = conn
	e.done = done
	e.mu.Unlock()
	go e.readLoop(conn, done)

	body := map[string]string{"credentialDir": e.credentialDir}
	if err := e.do(cctx, http.MethodPost, nil, body, nil, "connect"); err != nil {
		return connectErr(ctx, cctx, err)
	}
	e.logger.Debug("Engine connected")
	return nil
}

func connectErr(parent, cctx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrConnectTimeout, err)
	}
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if !e.isClosed() {
				e.logger.Warn("Event stream lost", "err", err)
				e.handler(ports.EngineEvent{Kind: ports.EngineDisconnected, Reason: "event stream lost"})
			}
			return
		}
		ev, err := decodeFrame(f)
		if err != nil {
			e.logger.Debug("Skipping event frame", "type", f.Type, "err", err)
			continue
		}
		e.handler(ev)
	}
}

// Close stops the engine on the bridge and ends the event stream.
// Closing twice is a no-op.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conn, done := e.conn, e.done
	e.mu.Unlock()

	err := e.do(ctx, http.MethodPost, nil, nil, nil, "close")
	if errors.Is(err, errEngineUnknown) {
		err = nil
	}

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsCloseTimeout))
		_ = conn.Close()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return err
}

var errEngineUnknown = errors.New("engine unknown to bridge")

type sentReply struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

func (r sentReply) message() ports.SentMessage {
	return ports.SentMessage{ID: r.ID, Timestamp: unixTime(r.Timestamp)}
}

type contactReply struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	Name     string `json:"name"`
	PushName string `json:"pushname"`
	IsMe     bool   `json:"isMe"`
}

type errorReply struct {
	Error string `json:"error"`
}

// do sends one command. A nil body sends no payload; a nil out discards the reply.
// A 404 reply is reported as notFound.
func (e *Engine) do(ctx context.Context, method string, notFound error, body, out any, segments ...string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.f.endpoint(e.tenant, segments...).String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header = e.f.header()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.f.client.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var reply errorReply
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &reply) != nil || reply.Error == "" {
			reply.Error = http.StatusText(resp.StatusCode)
		}
		if notFound == nil && resp.StatusCode == http.StatusNotFound {
			notFound = errEngineUnknown
		}
		return classifyReply(resp.StatusCode, reply.Error, notFound)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

func (e *Engine) Groups(ctx context.Context) ([]domain.Group, error) {
	var groups []domain.Group
	if err := e.do(ctx, http.MethodGet, nil, nil, &groups, "groups"); err != nil {
		return nil, err
	}
	return groups, nil
}

func (e *Engine) GroupMembers(ctx context.Context, groupID string) ([]domain.Member, error) {
	var members []domain.Member
	if err := e.do(ctx, http.MethodGet, domain.ErrGroupNotFound, nil, &members, "groups", groupID, "members"); err != nil {
		return nil, err
	}
	return members, nil
}

func (e *Engine) SetMessagesAdminOnly(ctx context.Context, groupID string, adminOnly bool) error {
	body := map[string]bool{"messagesAdminOnly": adminOnly}
	return e.do(ctx, http.MethodPut, domain.ErrGroupNotFound, body, nil, "groups", groupID, "settings")
}

func (e *Engine) send(ctx context.Context, body any, segments ...string) (ports.SentMessage, error) {
	var reply sentReply
	if err := e.do(ctx, http.MethodPost, domain.ErrGroupNotFound, body, &reply, segments...); err != nil {
		return ports.SentMessage{}, err
	}
	return reply.message(), nil
}

func (e *Engine) SendText(ctx context.Context, chatID, text string, mentions []string) (ports.SentMessage, error) {
	body := map[string]any{"text": text, "mentions": nonNil(mentions)}
	return e.send(ctx, body, "chats", chatID, "messages")
}

// SendMedia hands the bridge a path on the shared filesystem.
func (e *Engine) SendMedia(ctx context.Context, chatID string, media ports.Media, caption string, mentions []string) (ports.SentMessage, error) {
	body := map[string]any{
		"path":     media.Path,
		"fileName": media.FileName,
		"caption":  caption,
		"mentions": nonNil(mentions),
	}
	return e.send(ctx, body, "chats", chatID, "media")
}

func (e *Engine) SendPoll(ctx context.Context, chatID string, poll domain.Poll, mentions []string) (ports.SentMessage, error) {
	body := map[string]any{
		"question":      poll.Question,
		"options":       poll.Options,
		"allowMultiple": poll.AllowMultiple,
		"mentions":      nonNil(mentions),
	}
	return e.send(ctx, body, "chats", chatID, "polls")
}

func (e *Engine) Channels(ctx context.Context) ([]domain.Channel, error) {
	var channels []domain.Channel
	if err := e.do(ctx, http.MethodGet, nil, nil, &channels, "channels"); err != nil {
		return nil, err
	}
	return channels, nil
}

func (e *Engine) SendChannelText(ctx context.Context, channelID, text string) (ports.SentMessage, error) {
	return e.send(ctx, map[string]string{"text": text}, "channels", channelID, "messages")
}

func (e *Engine) Contact(ctx context.Context, id string) (ports.Contact, error) {
	var reply contactReply
	if err := e.do(ctx, http.MethodGet, nil, nil, &reply, "contacts", id); err != nil {
		return ports.Contact{}, err
	}
	return ports.Contact{
		ID:       reply.ID,
		Number:   reply.Number,
		Name:     reply.Name,
		PushName: reply.PushName,
		IsMe:     reply.IsMe,
	}, nil
}

func (e *Engine) ResolvePhone(ctx context.Context, phone string) (string, error) {
	var reply struct {
		ID string `json:"id"`
	}
	if err := e.do(ctx, http.MethodGet, nil, nil, &reply, "numbers", phone); err != nil {
		return "", err
	}
	if reply.ID == "" {
		return "", fmt.Errorf("number %s is not registered", phone)
	}
	return reply.ID, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
