package domain

import "time"

// Poll option bounds accepted by the engine.
const (
	MinPollOptions = 2
	MaxPollOptions = 12
)

// Group is a group chat visible to a tenant.
type Group struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ParticipantCount int    `json:"participantCount"`
}

// Member is a participant of a group.
type Member struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	IsAdmin bool   `json:"isAdmin"`
}

// Channel is a broadcast channel the tenant follows or owns.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsOwner bool   `json:"isOwner"`
}

// MentionOptions selects who is mentioned by an outgoing message.
type MentionOptions struct {
	MentionAll    bool     `json:"mentionAll,omitempty"`
	MentionPhones []string `json:"mentionPhones,omitempty"`
}

// Poll is an outgoing poll.
type Poll struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	AllowMultiple bool     `json:"allowMultiple,omitempty"`
}

// SendReceipt acknowledges a delivered message.
type SendReceipt struct {
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
	GroupID   string    `json:"groupId"`
}

// WelcomeReceipt acknowledges a welcome message.
type WelcomeReceipt struct {
	SendReceipt
	JoinerMentionCount int `json:"joinerMentionCount"`
	ExtraMentionCount  int `json:"extraMentionCount"`
}

// PollReceipt acknowledges a poll.
type PollReceipt struct {
	SendReceipt
	OptionCount int `json:"optionCount"`
}

// RestrictionResult acknowledges a group restriction change.
type RestrictionResult struct {
	Applied    bool   `json:"applied"`
	GroupID    string `json:"groupId"`
	Restricted bool   `json:"restricted"`
}
