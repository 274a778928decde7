package ports

import (
	"context"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
)

// EngineEventKind identifies an event emitted by an Engine.
type EngineEventKind string

const (
	EngineQR            EngineEventKind = "qr"
	EngineAuthenticated EngineEventKind = "authenticated"
	EngineReady         EngineEventKind = "ready"
	EngineDisconnected  EngineEventKind = "disconnected"
	EngineAuthFailure   EngineEventKind = "auth_failure"
	EngineMessage       EngineEventKind = "message"
	EngineParticipants  EngineEventKind = "participants"
)

// ParticipantAction is the direction of a membership change.
type ParticipantAction string

const (
	ParticipantJoin  ParticipantAction = "join"
	ParticipantLeave ParticipantAction = "leave"
)

// RawMessage is an inbound chat message as reported by the engine.
type RawMessage struct {
	ID           string
	ChatID       string
	ChatName     string
	IsGroup      bool
	Author       string // Sender inside a group chat
	From         string
	FromMe       bool
	Body         string
	Type         string
	Timestamp    time.Time
	MentionedIDs []string
}

// RawParticipants is a membership change as reported by the engine.
type RawParticipants struct {
	ChatID       string
	ChatName     string
	Action       ParticipantAction
	Participants []string
	Timestamp    time.Time
}

// EngineEvent is a lifecycle or inbound event emitted by an Engine.
// Only the fields matching Kind are set.
type EngineEvent struct {
	Kind         EngineEventKind
	QR           string
	Identity     domain.Identity
	Reason       string
	Message      *RawMessage
	Participants *RawParticipants
}

// EventHandler receives the events of one engine handle.
// It is registered once, when the handle is opened.
type EventHandler func(EngineEvent)

// Contact is the engine's view of a user identifier.
type Contact struct {
	ID       string
	Number   string
	Name     string
	PushName string
	IsMe     bool
}

// Media is a local file sent as an attachment.
type Media struct {
	Path     string
	FileName string
}

// SentMessage is the engine acknowledgement of an outgoing message.
type SentMessage struct {
	ID        string
	Timestamp time.Time
}

// Engine is one live connection to the external session engine for a tenant.
// Implementations are not required to be safe for concurrent use: the session
// manager never invokes two methods of the same Engine at once.
type Engine interface {
	// Connect starts the engine. Lifecycle events may be emitted before it returns.
	// A start-up deadline must be reported as domain.ErrConnectTimeout.
	Connect(ctx context.Context) error

	// Close releases every resource held by the engine.
	Close(ctx context.Context) error

	Groups(ctx context.Context) ([]domain.Group, error)
	GroupMembers(ctx context.Context, groupID string) ([]domain.Member, error)
	SetMessagesAdminOnly(ctx context.Context, groupID string, adminOnly bool) error

	SendText(ctx context.Context, chatID, text string, mentions []string) (SentMessage, error)
	SendMedia(ctx context.Context, chatID string, media Media, caption string, mentions []string) (SentMessage, error)
	SendPoll(ctx context.Context, chatID string, poll domain.Poll, mentions []string) (SentMessage, error)

	Channels(ctx context.Context) ([]domain.Channel, error)
	SendChannelText(ctx context.Context, channelID, text string) (SentMessage, error)

	// Contact resolves a user identifier.
	Contact(ctx context.Context, id string) (Contact, error)

	// ResolvePhone maps a phone number to the identifier used in mentions.
	ResolvePhone(ctx context.Context, phone string) (string, error)
}

// EngineFactory opens engine handles.
type EngineFactory interface {
	// Open allocates an engine handle for the tenant without connecting it.
	// handler receives every event the handle emits.
	Open(tenant domain.TenantID, credentialDir string, handler EventHandler) (Engine, error)
}
