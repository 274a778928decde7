package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// SentText records one outgoing text sent through a FakeEngine.
type SentText struct {
	ChatID   string
	Text     string
	Mentions []string
}

// FakeEngine is an instrumented in-memory ports.Engine.
// It records call counts and the highest number of overlapping calls, so tests
// can assert that the session manager serializes access to it.
type FakeEngine struct {
	Tenant        domain.TenantID
	CredentialDir string

	handler ports.EventHandler

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       map[string]int
	closed      bool
	seq         int

	// ConnectFunc replaces the default Connect behavior (succeed, emit nothing).
	ConnectFunc func(ctx context.Context, e *FakeEngine) error
	// Delay is slept inside every instrumented call, to widen overlap windows.
	Delay time.Duration

	groups    []domain.Group
	groupsErr error
	members   map[string][]domain.Member
	contacts  map[string]ports.Contact
	channels  []domain.Channel
	sendErr   error
	restrict  map[string]bool
	texts     []SentText
	media     []ports.Media
	polls     []domain.Poll
}

// NewFakeEngine returns an engine with no groups and no contacts.
func NewFakeEngine(tenant domain.TenantID, dir string, handler ports.EventHandler) *FakeEngine {
	return &FakeEngine{
		Tenant:        tenant,
		CredentialDir: dir,
		handler:       handler,
		calls:         make(map[string]int),
		members:       make(map[string][]domain.Member),
		contacts:      make(map[string]ports.Contact),
		restrict:      make(map[string]bool),
	}
}

// Emit delivers an event to the handler registered at Open.
func (e *FakeEngine) Emit(ev ports.EngineEvent) {
	if e.handler != nil {
		e.handler(ev)
	}
}

// EmitQR emits a qr event.
func (e *FakeEngine) EmitQR(code string) {
	e.Emit(ports.EngineEvent{Kind: ports.EngineQR, QR: code})
}

// EmitReady emits authenticated followed by ready.
func (e *FakeEngine) EmitReady(identity domain.Identity) {
	e.Emit(ports.EngineEvent{Kind: ports.EngineAuthenticated})
	e.Emit(ports.EngineEvent{Kind: ports.EngineReady, Identity: identity})
}

func (e *FakeEngine) enter(name string) {
	e.mu.Lock()
	e.calls[name]++
	e.inFlight++
	if e.inFlight > e.maxInFlight {
		e.maxInFlight = e.inFlight
	}
	delay := e.Delay
	e.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (e *FakeEngine) exit() {
	e.mu.Lock()
	e.inFlight--
	e.mu.Unlock()
}

// MaxInFlight returns the highest number of calls observed running at once.
func (e *FakeEngine) MaxInFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxInFlight
}

// Calls returns how many times the named method was invoked.
func (e *FakeEngine) Calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

// TotalCalls returns the number of instrumented calls, Connect and Close excluded.
func (e *FakeEngine) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for name, c := range e.calls {
		if name != "Connect" && name != "Close" {
			n += c
		}
	}
	return n
}

// Closed reports whether Close was called.
func (e *FakeEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// SetGroups configures the Groups result.
func (e *FakeEngine) SetGroups(groups []domain.Group, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.groups = groups
	e.groupsErr = err
}

// SetMembers configures the GroupMembers result for a group.
func (e *FakeEngine) SetMembers(groupID string, members []domain.Member) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.members[groupID] = members
}

// SetContact registers a contact returned by Contact.
func (e *FakeEngine) SetContact(c ports.Contact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.contacts[c.ID] = c
}

// SetChannels configures the Channels result.
func (e *FakeEngine) SetChannels(channels []domain.Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channels = channels
}

// SetSendErr makes every send fail with err.
func (e *FakeEngine) SetSendErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendErr = err
}

// Texts returns the texts sent so far.
func (e *FakeEngine) Texts() []SentText {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SentText(nil), e.texts...)
}

// Media returns the media sent so far.
func (e *FakeEngine) Media() []ports.Media {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ports.Media(nil), e.media...)
}

// Polls returns the polls sent so far.
func (e *FakeEngine) Polls() []domain.Poll {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Poll(nil), e.polls...)
}

// Restriction returns the last admin-only flag applied to a group.
func (e *FakeEngine) Restriction(groupID string) (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.restrict[groupID]
	return v, ok
}

func (e *FakeEngine) Connect(ctx context.Context) error {
	e.enter("Connect")
	defer e.exit()
	if e.ConnectFunc != nil {
		return e.ConnectFunc(ctx, e)
	}
	return nil
}

func (e *FakeEngine) Close(ctx context.Context) error {
	e.enter("Close")
	defer e.exit()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *FakeEngine) Groups(ctx context.Context) ([]domain.Group, error) {
	e.enter("Groups")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.groupsErr != nil {
		return nil, e.groupsErr
	}
	return append([]domain.Group(nil), e.groups...), nil
}

func (e *FakeEngine) hasGroup(groupID string) bool {
	for _, g := range e.groups {
		if g.ID == groupID {
			return true
		}
	}
	_, ok := e.members[groupID]
	return ok
}

func (e *FakeEngine) GroupMembers(ctx context.Context, groupID string) ([]domain.Member, error) {
	e.enter("GroupMembers")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasGroup(groupID) {
		return nil, fmt.Errorf("%s: %w", groupID, domain.ErrGroupNotFound)
	}
	return append([]domain.Member(nil), e.members[groupID]...), nil
}

func (e *FakeEngine) SetMessagesAdminOnly(ctx context.Context, groupID string, adminOnly bool) error {
	e.enter("SetMessagesAdminOnly")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasGroup(groupID) {
		return fmt.Errorf("%s: %w", groupID, domain.ErrGroupNotFound)
	}
	e.restrict[groupID] = adminOnly
	return nil
}

func (e *FakeEngine) sent() (ports.SentMessage, error) {
	if e.sendErr != nil {
		return ports.SentMessage{}, e.sendErr
	}
	e.seq++
	return ports.SentMessage{ID: fmt.Sprintf("msg-%d", e.seq), Timestamp: time.Unix(1700000000, 0).UTC()}, nil
}

func (e *FakeEngine) SendText(ctx context.Context, chatID, text string, mentions []string) (ports.SentMessage, error) {
	e.enter("SendText")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, err := e.sent()
	if err == nil {
		e.texts = append(e.texts, SentText{ChatID: chatID, Text: text, Mentions: mentions})
	}
	return msg, err
}

func (e *FakeEngine) SendMedia(ctx context.Context, chatID string, media ports.Media, caption string, mentions []string) (ports.SentMessage, error) {
	e.enter("SendMedia")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, err := e.sent()
	if err == nil {
		e.media = append(e.media, media)
	}
	return msg, err
}

func (e *FakeEngine) SendPoll(ctx context.Context, chatID string, poll domain.Poll, mentions []string) (ports.SentMessage, error) {
	e.enter("SendPoll")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, err := e.sent()
	if err == nil {
		e.polls = append(e.polls, poll)
	}
	return msg, err
}

func (e *FakeEngine) Channels(ctx context.Context) ([]domain.Channel, error) {
	e.enter("Channels")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Channel(nil), e.channels...), nil
}

func (e *FakeEngine) SendChannelText(ctx context.Context, channelID, text string) (ports.SentMessage, error) {
	e.enter("SendChannelText")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, err := e.sent()
	if err == nil {
		e.texts = append(e.texts, SentText{ChatID: channelID, Text: text})
	}
	return msg, err
}

func (e *FakeEngine) Contact(ctx context.Context, id string) (ports.Contact, error) {
	e.enter("Contact")
	defer e.exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contacts[id]
	if !ok {
		return ports.Contact{}, fmt.Errorf("contact %s not found", id)
	}
	return c, nil
}

func (e *FakeEngine) ResolvePhone(ctx context.Context, phone string) (string, error) {
	e.enter("ResolvePhone")
	defer e.exit()
	return strings.TrimPrefix(phone, "+") + "@c.us", nil
}
