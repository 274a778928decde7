package bridge_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/adapters/bridge"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []ports.EngineEvent
}

func (l *eventLog) handle(ev ports.EngineEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []ports.EngineEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ports.EngineEvent(nil), l.events...)
}

func (l *eventLog) kinds() []ports.EngineEventKind {
	var out []ports.EngineEventKind
	for _, ev := range l.snapshot() {
		out = append(out, ev.Kind)
	}
	return out
}

func open(t *testing.T, b *fakeBridge, tenant domain.TenantID, opts ...bridge.Option) (ports.Engine, *eventLog) {
	t.Helper()
	f, err := bridge.NewFactory(b.server.URL, opts...)
	require.NoError(t, err)
	log := &eventLog{}
	e, err := f.Open(tenant, "/data/session-"+string(tenant), log.handle)
	require.NoError(t, err)
	return e, log
}

func TestNewFactory_RejectsBadURL(t *testing.T) {
	_, err := bridge.NewFactory("")
	assert.Error(t, err)
	_, err = bridge.NewFactory("ftp://bridge")
	assert.Error(t, err)
}

func TestEngine_ConnectDeliversStartupEvents(t *testing.T) {
	b := newFakeBridge(t)
	b.onConnect = func(w http.ResponseWriter, tenant string) {
		b.push(tenant, "qr", map[string]any{"qr": "2@abc"})
		b.push(tenant, "authenticated", nil)
		b.push(tenant, "ready", map[string]any{"id": "15550009999@c.us", "phoneNumber": "15550009999", "pushName": "Bot"})
		w.WriteHeader(http.StatusOK)
	}

	e, log := open(t, b, "acme", bridge.WithToken("secret"))
	require.NoError(t, e.Connect(context.Background()))

	require.Eventually(t, func() bool { return len(log.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []ports.EngineEventKind{ports.EngineQR, ports.EngineAuthenticated, ports.EngineReady}, log.kinds())
	events := log.snapshot()
	assert.Equal(t, "2@abc", events[0].QR)
	assert.Equal(t, domain.Identity{ID: "15550009999@c.us", PhoneNumber: "15550009999", PushName: "Bot"}, events[2].Identity)

	connect := b.last()
	assert.Equal(t, "/engines/acme/connect", connect.Path)
	assert.Equal(t, "/data/session-acme", connect.Body["credentialDir"])
	assert.Equal(t, "Bearer secret", connect.Auth)

	require.NoError(t, e.Close(context.Background()))
}

func TestEngine_DecodesLooselyTypedMessages(t *testing.T) {
	b := newFakeBridge(t)
	e, log := open(t, b, "acme")
	require.NoError(t, e.Connect(context.Background()))
	<-b.streamed

	b.push("acme", "message", map[string]any{
		"id":           "m1",
		"chatId":       "120363@g.us",
		"chatName":     "Team",
		"isGroup":      "true",
		"author":       "15550001111@c.us",
		"body":         "hi @15550002222",
		"type":         "chat",
		"timestamp":    "1700000000",
		"mentionedIds": []string{"15550002222@c.us"},
	})
	b.push("acme", "group_leave", map[string]any{
		"chatId":       "120363@g.us",
		"participants": []string{"15550003333@c.us"},
		"timestamp":    1700000001,
	})
	b.push("acme", "unknown", map[string]any{})

	require.Eventually(t, func() bool { return len(log.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	events := log.snapshot()

	msg := events[0].Message
	require.NotNil(t, msg)
	assert.True(t, msg.IsGroup)
	assert.Equal(t, "15550001111@c.us", msg.Author)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
	assert.Equal(t, []string{"15550002222@c.us"}, msg.MentionedIDs)

	p := events[1].Participants
	require.NotNil(t, p)
	assert.Equal(t, ports.ParticipantLeave, p.Action)
	assert.Equal(t, []string{"15550003333@c.us"}, p.Participants)

	require.NoError(t, e.Close(context.Background()))
}

func TestEngine_StreamLossReportsDisconnect(t *testing.T) {
	b := newFakeBridge(t)
	e, log := open(t, b, "acme")
	require.NoError(t, e.Connect(context.Background()))
	<-b.streamed

	b.drop("acme")

	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ports.EngineDisconnected, log.snapshot()[0].Kind)
	require.NoError(t, e.Close(context.Background()))
}

func TestEngine_CloseIsQuiet(t *testing.T) {
	b := newFakeBridge(t)
	b.reply(http.MethodPost, "/engines/acme/close", http.StatusNotFound, map[string]string{"error": "no such engine"})
	e, log := open(t, b, "acme")
	require.NoError(t, e.Connect(context.Background()))

	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, log.snapshot(), "closing must not be reported as a disconnect")
	assert.Equal(t, "/engines/acme/close", b.last().Path)
	assert.Error(t, e.Connect(context.Background()))
}

func TestEngine_ConnectTimeout(t *testing.T) {
	b := newFakeBridge(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	b.onConnect = func(w http.ResponseWriter, tenant string) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}

	e, _ := open(t, b, "acme", bridge.WithConnectTimeout(50*time.Millisecond))
	err := e.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectTimeout)
	_ = e.Close(context.Background())
}

func TestEngine_ConnectGatewayTimeout(t *testing.T) {
	b := newFakeBridge(t)
	b.reply(http.MethodPost, "/engines/acme/connect", http.StatusGatewayTimeout, map[string]string{"error": "browser launch timed out"})

	e, _ := open(t, b, "acme")
	err := e.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectTimeout)
	_ = e.Close(context.Background())
}

func TestEngine_Commands(t *testing.T) {
	b := newFakeBridge(t)
	e, _ := open(t, b, "acme")
	ctx := context.Background()

	b.reply(http.MethodGet, "/engines/acme/groups", http.StatusOK, []map[string]any{
		{"id": "120363@g.us", "name": "Team", "participantCount": 3},
	})
	groups, err := e.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Group{{ID: "120363@g.us", Name: "Team", ParticipantCount: 3}}, groups)

	b.reply(http.MethodPost, "/engines/acme/chats/120363@g.us/messages", http.StatusOK, map[string]any{"id": "m-1", "timestamp": 1700000000})
	sent, err := e.SendText(ctx, "120363@g.us", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "m-1", sent.ID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), sent.Timestamp)
	assert.Equal(t, "hello", b.last().Body["text"])
	assert.Equal(t, []any{}, b.last().Body["mentions"])

	_, err = e.SendPoll(ctx, "120363@g.us", domain.Poll{Question: "Lunch?", Options: []string{"a", "b"}}, []string{"1@c.us"})
	require.NoError(t, err)
	assert.Equal(t, "/engines/acme/chats/120363@g.us/polls", b.last().Path)
	assert.Equal(t, "Lunch?", b.last().Body["question"])

	require.NoError(t, e.SetMessagesAdminOnly(ctx, "120363@g.us", true))
	assert.Equal(t, http.MethodPut, b.last().Method)
	assert.Equal(t, true, b.last().Body["messagesAdminOnly"])

	b.reply(http.MethodGet, "/engines/acme/contacts/15550001111@c.us", http.StatusOK, map[string]any{"id": "15550001111@c.us", "number": "15550001111", "pushname": "Ann"})
	c, err := e.Contact(ctx, "15550001111@c.us")
	require.NoError(t, err)
	assert.Equal(t, "15550001111", c.Number)
	assert.Equal(t, "Ann", c.PushName)

	b.reply(http.MethodGet, "/engines/acme/numbers/15550001111", http.StatusOK, map[string]any{"id": "15550001111@c.us"})
	id, err := e.ResolvePhone(ctx, "15550001111")
	require.NoError(t, err)
	assert.Equal(t, "15550001111@c.us", id)

	_, err = e.ResolvePhone(ctx, "15550000000")
	assert.Error(t, err, "unregistered numbers resolve to nothing")
}

func TestEngine_ErrorClassification(t *testing.T) {
	b := newFakeBridge(t)
	e, _ := open(t, b, "acme")
	ctx := context.Background()

	b.reply(http.MethodGet, "/engines/acme/groups", http.StatusInternalServerError, map[string]string{"error": "Protocol error (Runtime.callFunctionOn): Target closed."})
	_, err := e.Groups(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionInvalidated)

	b.reply(http.MethodGet, "/engines/acme/groups/missing@g.us/members", http.StatusNotFound, map[string]string{"error": "group not found"})
	_, err = e.GroupMembers(ctx, "missing@g.us")
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)

	b.reply(http.MethodGet, "/engines/acme/channels", http.StatusGatewayTimeout, map[string]string{"error": "busy"})
	_, err = e.Channels(ctx)
	assert.ErrorIs(t, err, domain.ErrTimeout)

	b.reply(http.MethodPost, "/engines/acme/channels/ch@newsletter/messages", http.StatusInternalServerError, map[string]string{"error": "boom"})
	_, err = e.SendChannelText(ctx, "ch@newsletter", "hi")
	var statusErr *bridge.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, "boom", statusErr.Message)
}

func TestEngine_ClientTimeoutDuringConnect(t *testing.T) {
	b := newFakeBridge(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	b.onConnect = func(w http.ResponseWriter, tenant string) { <-release }

	f, err := bridge.NewFactory(b.server.URL, bridge.WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	require.NoError(t, err)
	e, err := f.Open("slow", "/data/session-slow", nil)
	require.NoError(t, err)

	err = e.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectTimeout)
	_ = e.Close(context.Background())
}

func TestIsInvalidation(t *testing.T) {
	assert.True(t, bridge.IsInvalidation("Attempted to use detached Frame 'abc'."))
	assert.True(t, bridge.IsInvalidation("Execution context was destroyed, most likely because of a navigation."))
	assert.True(t, bridge.IsInvalidation("Protocol error: Session closed. Most likely the page has been closed."))
	assert.False(t, bridge.IsInvalidation("rate limited"))
}
