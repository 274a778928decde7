package session_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/switchboard/internal/testutils"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupID = "120363000000000001@g.us"

func readySession(t *testing.T, opts ...session.Option) (*session.Manager, *testutils.FakeEngine, *testutils.RecordingSink) {
	t.Helper()
	factory := testutils.NewFakeFactory()
	base := factory.OnOpen
	factory.OnOpen = func(e *testutils.FakeEngine) {
		base(e)
		e.SetGroups([]domain.Group{{ID: groupID, Name: "Study Group", ParticipantCount: 2}}, nil)
		e.SetMembers(groupID, []domain.Member{
			{ID: "15551112222@c.us", Name: "Ann", Phone: "15551112222", IsAdmin: true},
			{ID: "15553334444@c.us", Name: "Bob", Phone: "15553334444"},
		})
	}
	mgr, sink := newManager(t, factory, opts...)
	_, err := mgr.CreateSession(context.Background(), "acme")
	require.NoError(t, err)
	return mgr, factory.Last("acme"), sink
}

func TestOperations_AreSerializedPerTenant(t *testing.T) {
	mgr, engine, _ := readySession(t)
	engine.Delay = time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, err := mgr.SendText(ctx, "acme", groupID, fmt.Sprintf("msg %d", i), domain.MentionOptions{})
				assert.NoError(t, err)
			case 1:
				_, err := mgr.SetGroupRestriction(ctx, "acme", groupID, i%8 == 1)
				assert.NoError(t, err)
			case 2:
				_, err := mgr.SendPoll(ctx, "acme", groupID, domain.Poll{Question: "Q", Options: []string{"a", "b"}}, domain.MentionOptions{})
				assert.NoError(t, err)
			case 3:
				_, err := mgr.SendText(ctx, "acme", groupID, "hi all", domain.MentionOptions{MentionAll: true})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, engine.MaxInFlight(), "engine calls overlapped")
	assert.Len(t, engine.Texts(), 20)
}

func TestOperations_FailFastWhenNotReady(t *testing.T) {
	factory := testutils.NewFakeFactory()
	factory.OnOpen = testutils.QROnConnect("qr-1")
	mgr, _ := newManager(t, factory)
	ctx := context.Background()

	_, err := mgr.SendText(ctx, "ghost", groupID, "hello", domain.MentionOptions{})
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, err = mgr.CreateSession(ctx, "acme")
	require.NoError(t, err)
	_, err = mgr.SetGroupRestriction(ctx, "acme", groupID, true)
	assert.ErrorIs(t, err, domain.ErrNotReady)
	_, err = mgr.ListGroupMembers(ctx, "acme", groupID)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	groups, err := mgr.ListGroups(ctx, "acme")
	assert.NoError(t, err)
	assert.Empty(t, groups)
	assert.Zero(t, factory.Last("acme").TotalCalls())
}

func TestSetGroupRestriction(t *testing.T) {
	mgr, engine, _ := readySession(t)
	ctx := context.Background()

	res, err := mgr.SetGroupRestriction(ctx, "acme", groupID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.RestrictionResult{Applied: true, GroupID: groupID, Restricted: true}, res)
	restricted, ok := engine.Restriction(groupID)
	assert.True(t, ok)
	assert.True(t, restricted)

	_, err = mgr.SetGroupRestriction(ctx, "acme", "missing@g.us", true)
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestSendText_Mentions(t *testing.T) {
	mgr, engine, _ := readySession(t)
	ctx := context.Background()

	receipt, err := mgr.SendText(ctx, "acme", groupID, "hello", domain.MentionOptions{MentionPhones: []string{"+1 555-777-8888"}})
	require.NoError(t, err)
	assert.Equal(t, groupID, receipt.GroupID)
	assert.NotEmpty(t, receipt.MessageID)

	_, err = mgr.SendText(ctx, "acme", groupID, "everyone", domain.MentionOptions{MentionAll: true, MentionPhones: []string{"15551112222"}})
	require.NoError(t, err)

	texts := engine.Texts()
	require.Len(t, texts, 2)
	assert.Equal(t, []string{"15557778888@c.us"}, texts[0].Mentions)
	assert.Equal(t, []string{"15551112222@c.us", "15553334444@c.us"}, texts[1].Mentions)

	_, err = mgr.SendText(ctx, "acme", groupID, "   ", domain.MentionOptions{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSendText_Sanitized(t *testing.T) {
	mgr, engine, _ := readySession(t, session.WithMaxTextBytes(16))
	ctx := context.Background()

	_, err := mgr.SendText(ctx, "acme", groupID, "hi\x1b[2J there", domain.MentionOptions{})
	require.NoError(t, err)

	_, err = mgr.SendText(ctx, "acme", groupID, "this text is far too long", domain.MentionOptions{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = mgr.SendText(ctx, "acme", groupID, "\x00\x07", domain.MentionOptions{})
	assert.ErrorIs(t, err, domain.ErrValidation, "nothing left after stripping")

	texts := engine.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "hi[2J there", texts[0].Text)
}

func TestSendPoll_OptionBounds(t *testing.T) {
	mgr, engine, _ := readySession(t)
	ctx := context.Background()

	options := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("option %d", i+1)
		}
		return out
	}

	for _, n := range []int{1, 13} {
		_, err := mgr.SendPoll(ctx, "acme", groupID, domain.Poll{Question: "Pick", Options: options(n)}, domain.MentionOptions{})
		assert.ErrorIs(t, err, domain.ErrValidation, "%d options", n)
	}
	assert.Zero(t, engine.TotalCalls(), "validation must not contact the engine")

	for _, n := range []int{2, 12} {
		receipt, err := mgr.SendPoll(ctx, "acme", groupID, domain.Poll{Question: "Pick", Options: options(n), AllowMultiple: true}, domain.MentionOptions{})
		require.NoError(t, err, "%d options", n)
		assert.Equal(t, n, receipt.OptionCount)
	}
	assert.Len(t, engine.Polls(), 2)
}

func TestSendWelcome_ComposesMentions(t *testing.T) {
	mgr, engine, _ := readySession(t)

	receipt, err := mgr.SendWelcome(context.Background(), "acme", groupID, "Welcome!", []string{"1555000111"}, []string{"1555000222"})
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.JoinerMentionCount)
	assert.Equal(t, 1, receipt.ExtraMentionCount)
	assert.Equal(t, groupID, receipt.GroupID)

	texts := engine.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "@1555000111\n\nWelcome!\n\n@1555000222", texts[0].Text)
	assert.Equal(t, []string{"1555000111@c.us", "1555000222@c.us"}, texts[0].Mentions)

	_, err = mgr.SendWelcome(context.Background(), "acme", groupID, " ", nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSendMedia_RemovesFile(t *testing.T) {
	mgr, engine, _ := readySession(t)
	ctx := context.Background()

	write := func() string {
		path := filepath.Join(t.TempDir(), "photo.jpg")
		require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))
		return path
	}

	path := write()
	receipt, err := mgr.SendMedia(ctx, "acme", groupID, path, "caption", domain.MentionOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.MessageID)
	assert.NoFileExists(t, path)
	require.Len(t, engine.Media(), 1)
	assert.Equal(t, "photo.jpg", engine.Media()[0].FileName)

	path = write()
	_, err = mgr.SendMedia(ctx, "ghost", groupID, path, "", domain.MentionOptions{})
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.NoFileExists(t, path)

	path = write()
	_, err = mgr.SendMedia(ctx, "acme", "", path, "", domain.MentionOptions{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoFileExists(t, path)

	path = write()
	engine.SetSendErr(fmt.Errorf("upload: %w", domain.ErrTimeout))
	_, err = mgr.SendMedia(ctx, "acme", groupID, path, "", domain.MentionOptions{})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.NoFileExists(t, path)
}

func TestChannels(t *testing.T) {
	mgr, engine, _ := readySession(t)
	engine.SetChannels([]domain.Channel{{ID: "1203@newsletter", Name: "News", IsOwner: true}})
	ctx := context.Background()

	channels, err := mgr.ListChannels(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, channels, 1)

	_, err = mgr.SendChannelText(ctx, "acme", "1203@newsletter", "update")
	require.NoError(t, err)
	assert.Equal(t, "1203@newsletter", engine.Texts()[0].ChatID)
}

func TestReadCache_TTLAndStaleFallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr, engine, _ := readySession(t, session.WithClock(clock), session.WithCacheTTL(time.Minute))
	ctx := context.Background()

	first, err := mgr.ListGroups(ctx, "acme")
	require.NoError(t, err)
	second, err := mgr.ListGroups(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, engine.Calls("Groups"), "second read within TTL is served from cache")

	clock.Advance(61 * time.Second)
	engine.SetGroups(nil, fmt.Errorf("evaluate: %w", domain.ErrTimeout))

	stale, err := mgr.ListGroups(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, first, stale)
	assert.Equal(t, 2, engine.Calls("Groups"))
	assert.Equal(t, domain.StateReady, mgr.State("acme").State, "timeouts do not invalidate the session")
}

func TestReadCache_FailureWithoutValueIsEmpty(t *testing.T) {
	mgr, engine, _ := readySession(t)
	engine.SetGroups(nil, fmt.Errorf("evaluate: %w", domain.ErrTimeout))

	groups, err := mgr.ListGroups(context.Background(), "acme")
	assert.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSessionInvalidated_RecoversAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr, engine, sink := readySession(t, session.WithClock(clock), session.WithRecoveryDelay(10*time.Second))
	ctx := context.Background()

	cached, err := mgr.ListGroups(ctx, "acme")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	engine.SetGroups(nil, fmt.Errorf("detached frame: %w", domain.ErrSessionInvalidated))

	groups, err := mgr.ListGroups(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, cached, groups)
	assert.Equal(t, domain.StateDisconnected, mgr.State("acme").State)
	disc := sink.OfType(domain.EventDisconnected)
	require.Len(t, disc, 1)

	clock.Advance(10 * time.Second)
	assert.Eventually(t, func() bool {
		return mgr.State("acme").State == domain.StateReady
	}, time.Second, time.Millisecond)
	assert.True(t, engine.Closed(), "the invalidated handle is replaced")
}

func TestDestroySession_ResetsEverything(t *testing.T) {
	clock := clockwork.NewFakeClock()
	factory := testutils.NewFakeFactory()
	factory.OnOpen = testutils.QROnConnect("qr-1")
	mgr, sink := newManager(t, factory, session.WithClock(clock))
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, mgr.DestroySession(ctx, "acme"))

	assert.True(t, factory.Last("acme").Closed())
	_, ok := mgr.PendingCredential("acme")
	assert.False(t, ok)
	assert.Equal(t, domain.StateNotInitialized, mgr.State("acme").State)

	// The QR timer died with the session.
	clock.Advance(10 * time.Minute)
	require.NoError(t, mgr.Close(ctx))
	assert.Zero(t, sink.Count(domain.EventQRTimeout))
}

func TestDestroySession_RecreateStartsClean(t *testing.T) {
	factory := testutils.NewFakeFactory()
	mgr, _ := newManager(t, factory)
	ctx := context.Background()

	factory.OnOpen = func(e *testutils.FakeEngine) {
		testutils.ReadyOnConnect(botIdentity)(e)
		e.SetGroups([]domain.Group{{ID: "old@g.us"}}, nil)
	}
	_, err := mgr.CreateSession(ctx, "acme")
	require.NoError(t, err)
	groups, err := mgr.ListGroups(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "old@g.us", groups[0].ID)

	require.NoError(t, mgr.DestroySession(ctx, "acme"))

	factory.OnOpen = func(e *testutils.FakeEngine) {
		testutils.ReadyOnConnect(botIdentity)(e)
		e.SetGroups([]domain.Group{{ID: "new@g.us"}}, nil)
	}
	_, err = mgr.CreateSession(ctx, "acme")
	require.NoError(t, err)
	groups, err = mgr.ListGroups(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "new@g.us", groups[0].ID, "cache entries do not survive destroy")
	assert.Equal(t, 1, factory.Last("acme").Calls("Groups"))
}

func TestQRTimer(t *testing.T) {
	t.Run("authenticated within the window survives", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		factory := testutils.NewFakeFactory()
		factory.OnOpen = testutils.QROnConnect("qr-1")
		mgr, sink := newManager(t, factory, session.WithClock(clock), session.WithQRTimeout(5*time.Minute))
		ctx := context.Background()

		_, err := mgr.CreateSession(ctx, "acme")
		require.NoError(t, err)
		clock.Advance(4 * time.Minute)
		factory.Last("acme").EmitReady(botIdentity)

		clock.Advance(2 * time.Minute)
		require.NoError(t, mgr.Close(ctx))
		assert.Zero(t, sink.Count(domain.EventQRTimeout))
		assert.Equal(t, 1, sink.Count(domain.EventReady))
	})

	t.Run("expiry destroys and reports once", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		factory := testutils.NewFakeFactory()
		factory.OnOpen = testutils.QROnConnect("qr-1")
		mgr, sink := newManager(t, factory, session.WithClock(clock), session.WithQRTimeout(5*time.Minute))
		ctx := context.Background()

		_, err := mgr.CreateSession(ctx, "acme")
		require.NoError(t, err)

		// A refreshed QR does not re-arm the timer.
		clock.Advance(3 * time.Minute)
		factory.Last("acme").EmitQR("qr-2")
		qr, ok := mgr.PendingCredential("acme")
		require.True(t, ok)
		assert.Equal(t, "qr-2", qr)

		clock.Advance(2*time.Minute + time.Second)
		assert.Eventually(t, func() bool {
			return mgr.State("acme").State == domain.StateNotInitialized
		}, time.Second, time.Millisecond)

		clock.Advance(10 * time.Minute)
		require.NoError(t, mgr.Close(ctx))
		assert.Equal(t, 1, sink.Count(domain.EventQRTimeout))
		assert.True(t, factory.Last("acme").Closed())
		assert.Zero(t, mgr.Occupancy())
	})
}

func TestInboundMessages_AreNormalized(t *testing.T) {
	mgr, engine, sink := readySession(t)
	engine.SetContact(ports.Contact{ID: "15551112222@c.us", Number: "15551112222", Name: "Ann"})
	engine.SetContact(ports.Contact{ID: "7777@lid", Number: "15556667777", PushName: "Carl"})
	engine.SetContact(ports.Contact{ID: "98765432109876@lid", Name: "Dora"})

	engine.Emit(ports.EngineEvent{Kind: ports.EngineMessage, Message: &ports.RawMessage{
		ID: "dm-1", ChatID: "15551112222@c.us", From: "15551112222@c.us", Body: "private",
	}})
	engine.Emit(ports.EngineEvent{Kind: ports.EngineMessage, Message: &ports.RawMessage{
		ID:           "m-1",
		ChatID:       groupID,
		ChatName:     "Study Group",
		IsGroup:      true,
		Author:       "7777@lid",
		Body:         "hi @15551112222 and @15553334444, not @155511122229",
		Type:         "chat",
		MentionedIDs: []string{"15551112222@c.us", "15553334444@c.us"},
	}})
	engine.Emit(ports.EngineEvent{Kind: ports.EngineMessage, Message: &ports.RawMessage{
		ID: "m-2", ChatID: groupID, IsGroup: true, Author: "9999@lid", FromMe: true, Type: "ptt",
	}})
	engine.Emit(ports.EngineEvent{Kind: ports.EngineMessage, Message: &ports.RawMessage{
		ID:           "m-3",
		ChatID:       groupID,
		IsGroup:      true,
		Author:       "15551112222@c.us",
		Body:         "hey @98765432109876 and @1234567@lid",
		Type:         "chat",
		MentionedIDs: []string{"98765432109876@lid", "1234567@lid"},
	}})

	require.Eventually(t, func() bool {
		return sink.Count(domain.EventMessage) >= 3 && sink.Count(domain.EventCertificate) == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, mgr.Close(context.Background()))

	messages := sink.OfType(domain.EventMessage)
	require.Len(t, messages, 3, "direct messages are not forwarded")
	byID := map[string]*domain.InboundMessage{}
	for _, e := range messages {
		byID[e.Message.ID] = e.Message
	}

	m1 := byID["m-1"]
	require.NotNil(t, m1)
	assert.Equal(t, "Carl", m1.SenderName)
	assert.Equal(t, "15556667777", m1.SenderPhone)
	assert.Equal(t, "hi @Ann (15551112222) and @15553334444, not @155511122229", m1.Content)
	assert.Equal(t, []string{"15551112222", "15553334444"}, m1.MentionedPhones)

	m3 := byID["m-3"]
	require.NotNil(t, m3)
	assert.Equal(t, "hey @Dora and @1234567", m3.Content, "opaque ids without a number carry no phone")
	assert.Empty(t, m3.MentionedPhones)

	m2 := byID["m-2"]
	require.NotNil(t, m2)
	assert.Equal(t, botIdentity.PhoneNumber, m2.SenderPhone)
	assert.Equal(t, botIdentity.PushName, m2.SenderName)

	certs := sink.OfType(domain.EventCertificate)
	require.Len(t, certs, 1)
	assert.Equal(t, "9999@lid", certs[0].Participant.MemberID)
	assert.Equal(t, botIdentity.PhoneNumber, certs[0].Participant.MemberPhone)
}

func TestParticipants_OneEventEach(t *testing.T) {
	mgr, engine, sink := readySession(t)
	engine.SetContact(ports.Contact{ID: "15551112222@c.us", Name: "Ann"})

	engine.Emit(ports.EngineEvent{Kind: ports.EngineParticipants, Participants: &ports.RawParticipants{
		ChatID:       groupID,
		ChatName:     "Study Group",
		Action:       ports.ParticipantJoin,
		Participants: []string{"15551112222@c.us", "", "15553334444@c.us"},
	}})
	engine.Emit(ports.EngineEvent{Kind: ports.EngineParticipants, Participants: &ports.RawParticipants{
		ChatID:       groupID,
		Action:       ports.ParticipantLeave,
		Participants: []string{"15553334444@c.us"},
	}})
	require.Eventually(t, func() bool {
		return sink.Count(domain.EventMemberJoin) == 2 && sink.Count(domain.EventMemberLeave) == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, mgr.Close(context.Background()))

	joins := sink.OfType(domain.EventMemberJoin)
	require.Len(t, joins, 2)
	names := []string{joins[0].Participant.MemberName, joins[1].Participant.MemberName}
	assert.ElementsMatch(t, []string{"Ann", "15553334444"}, names)
	assert.Equal(t, 1, sink.Count(domain.EventMemberLeave))
}
