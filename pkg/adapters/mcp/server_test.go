package mcp

import (
	"context"
	"testing"

	"github.com/aretw0/switchboard/internal/testutils"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *testutils.FakeFactory) {
	t.Helper()
	factory := testutils.NewFakeFactory()
	mgr := session.New(factory, testutils.NewFakeCredentials(),
		session.WithConnectPolicy(session.RetryPolicy{MaxAttempts: 1}),
	)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return NewServer(mgr), factory
}

func call(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	handler, ok := s.handlers[name]
	require.True(t, ok, "tool %s is not registered", name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	if text, ok := res.Content[0].(mcp.TextContent); ok {
		return text.Text
	}
	return ""
}

func TestToolsRegistered(t *testing.T) {
	s, _ := newTestServer(t)
	for _, name := range []string{
		"create_session", "get_session_state", "get_qr", "list_sessions", "destroy_session",
		"list_groups", "list_group_members", "set_group_restriction",
		"send_text", "send_welcome", "send_poll", "list_channels", "send_channel_text",
	} {
		assert.Contains(t, s.handlers, name)
	}
}

func TestSessionLifecycleTools(t *testing.T) {
	s, _ := newTestServer(t)

	res := call(t, s, "create_session", map[string]any{"tenant": "acme"})
	require.False(t, res.IsError, resultText(res))
	created, ok := res.StructuredContent.(domain.CreateResult)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeAccepted, created.Outcome)

	res = call(t, s, "get_session_state", map[string]any{"tenant": "acme"})
	require.False(t, res.IsError)
	assert.Equal(t, domain.StateReady, res.StructuredContent.(domain.SessionStatus).State)

	res = call(t, s, "list_sessions", map[string]any{})
	require.False(t, res.IsError)
	assert.Len(t, res.StructuredContent.(SessionsResponse).Sessions, 1)

	res = call(t, s, "get_qr", map[string]any{"tenant": "acme"})
	assert.False(t, res.StructuredContent.(QRResponse).Pending)

	res = call(t, s, "destroy_session", map[string]any{"tenant": "acme"})
	require.False(t, res.IsError)
	assert.True(t, res.StructuredContent.(DestroyResponse).Destroyed)

	res = call(t, s, "get_session_state", map[string]any{"tenant": "acme"})
	assert.Equal(t, domain.StateNotInitialized, res.StructuredContent.(domain.SessionStatus).State)
}

func TestMessagingTools(t *testing.T) {
	s, factory := newTestServer(t)
	require.False(t, call(t, s, "create_session", map[string]any{"tenant": "acme"}).IsError)
	engine := factory.Last("acme")
	engine.SetGroups([]domain.Group{{ID: "g1@g.us", Name: "Team"}}, nil)
	engine.SetMembers("g1@g.us", []domain.Member{{ID: "15550001111@c.us", Phone: "15550001111"}})

	res := call(t, s, "list_groups", map[string]any{"tenant": "acme"})
	require.False(t, res.IsError)
	assert.Len(t, res.StructuredContent.(GroupsResponse).Groups, 1)

	res = call(t, s, "send_text", map[string]any{
		"tenant":         "acme",
		"group_id":       "g1@g.us",
		"text":           "hello",
		"mention_phones": []any{"15550002222"},
	})
	require.False(t, res.IsError, resultText(res))
	assert.Equal(t, "g1@g.us", res.StructuredContent.(domain.SendReceipt).GroupID)
	require.Len(t, engine.Texts(), 1)
	assert.Equal(t, []string{"15550002222@c.us"}, engine.Texts()[0].Mentions)

	res = call(t, s, "send_poll", map[string]any{
		"tenant":   "acme",
		"group_id": "g1@g.us",
		"question": "Lunch?",
		"options":  []any{"pizza"},
	})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "invalid_input")
	assert.Empty(t, engine.Polls())

	res = call(t, s, "set_group_restriction", map[string]any{"tenant": "acme", "group_id": "g1@g.us", "restricted": true})
	require.False(t, res.IsError, resultText(res))
	assert.True(t, res.StructuredContent.(domain.RestrictionResult).Restricted)
}

func TestToolErrors(t *testing.T) {
	s, _ := newTestServer(t)

	res := call(t, s, "send_text", map[string]any{"tenant": "ghost", "group_id": "g1@g.us", "text": "hi"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "not_ready")

	res = call(t, s, "create_session", map[string]any{"tenant": "../etc"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "invalid_input")

	res = call(t, s, "list_groups", map[string]any{"tenant": "ghost"})
	require.False(t, res.IsError)
	assert.Empty(t, res.StructuredContent.(GroupsResponse).Groups)
}
