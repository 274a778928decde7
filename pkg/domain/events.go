package domain

import "time"

// EventType defines the category of the event.
type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventMessage       EventType = "message"
	EventCertificate   EventType = "certificate"
	EventMemberJoin    EventType = "member_join"
	EventMemberLeave   EventType = "member_leave"
	EventDisconnected  EventType = "disconnected"
	EventAuthFailure   EventType = "auth_failure"
	EventQRTimeout     EventType = "qr_timeout"
)

// Event is a normalized record published to event sinks.
// Only the payload field matching Type is set.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Tenant    TenantID  `json:"tenant"`
	Timestamp time.Time `json:"timestamp"`

	QR          string            `json:"qr,omitempty"`
	PhoneNumber string            `json:"phoneNumber,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Message     *InboundMessage   `json:"message,omitempty"`
	Participant *ParticipantEvent `json:"event,omitempty"`
}

// InboundMessage is a group message after sender and mention resolution.
type InboundMessage struct {
	ID              string    `json:"id"`
	GroupID         string    `json:"groupId"`
	GroupName       string    `json:"groupName"`
	SenderID        string    `json:"senderId"`
	SenderName      string    `json:"senderName"`
	SenderPhone     string    `json:"senderPhone"`
	Content         string    `json:"content"`
	MessageType     string    `json:"messageType"`
	Timestamp       time.Time `json:"timestamp"`
	FromMe          bool      `json:"fromMe,omitempty"`
	MentionedPhones []string  `json:"mentionedPhones,omitempty"`
}

// ParticipantEvent identifies a group participant affected by a membership change
// or credited with a voice message.
type ParticipantEvent struct {
	GroupID     string    `json:"groupId"`
	GroupName   string    `json:"groupName"`
	MemberID    string    `json:"memberId"`
	MemberName  string    `json:"memberName"`
	MemberPhone string    `json:"memberPhone"`
	Timestamp   time.Time `json:"timestamp"`
}
