package bridge

import (
	"fmt"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// frame is one message of the event stream.
type frame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type qrData struct {
	QR string `mapstructure:"qr"`
}

type identityData struct {
	ID          string `mapstructure:"id"`
	PhoneNumber string `mapstructure:"phoneNumber"`
	PushName    string `mapstructure:"pushName"`
}

type reasonData struct {
	Reason string `mapstructure:"reason"`
}

type messageData struct {
	ID           string   `mapstructure:"id"`
	ChatID       string   `mapstructure:"chatId"`
	ChatName     string   `mapstructure:"chatName"`
	IsGroup      bool     `mapstructure:"isGroup"`
	Author       string   `mapstructure:"author"`
	From         string   `mapstructure:"from"`
	FromMe       bool     `mapstructure:"fromMe"`
	Body         string   `mapstructure:"body"`
	Type         string   `mapstructure:"type"`
	Timestamp    int64    `mapstructure:"timestamp"`
	MentionedIDs []string `mapstructure:"mentionedIds"`
}

type participantsData struct {
	ChatID       string   `mapstructure:"chatId"`
	ChatName     string   `mapstructure:"chatName"`
	Participants []string `mapstructure:"participants"`
	Timestamp    int64    `mapstructure:"timestamp"`
}

// decode copies a loosely typed payload into out. Bridges built on dynamic
// runtimes send numbers and booleans as strings now and then.
func decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}

func decodeFrame(f frame) (ports.EngineEvent, error) {
	switch f.Type {
	case "qr":
		var d qrData
		if err := decode(f.Data, &d); err != nil {
			return ports.EngineEvent{}, err
		}
		if d.QR == "" {
			return ports.EngineEvent{}, fmt.Errorf("qr frame without code")
		}
		return ports.EngineEvent{Kind: ports.EngineQR, QR: d.QR}, nil

	case "authenticated":
		return ports.EngineEvent{Kind: ports.EngineAuthenticated}, nil

	case "ready":
		var d identityData
		if err := decode(f.Data, &d); err != nil {
			return ports.EngineEvent{}, err
		}
		return ports.EngineEvent{
			Kind:     ports.EngineReady,
			Identity: domain.Identity{ID: d.ID, PhoneNumber: d.PhoneNumber, PushName: d.PushName},
		}, nil

	case "disconnected", "auth_failure":
		var d reasonData
		if err := decode(f.Data, &d); err != nil {
			return ports.EngineEvent{}, err
		}
		kind := ports.EngineDisconnected
		if f.Type == "auth_failure" {
			kind = ports.EngineAuthFailure
		}
		return ports.EngineEvent{Kind: kind, Reason: d.Reason}, nil

	case "message":
		var d messageData
		if err := decode(f.Data, &d); err != nil {
			return ports.EngineEvent{}, err
		}
		return ports.EngineEvent{Kind: ports.EngineMessage, Message: &ports.RawMessage{
			ID:           d.ID,
			ChatID:       d.ChatID,
			ChatName:     d.ChatName,
			IsGroup:      d.IsGroup,
			Author:       d.Author,
			From:         d.From,
			FromMe:       d.FromMe,
			Body:         d.Body,
			Type:         d.Type,
			Timestamp:    unixTime(d.Timestamp),
			MentionedIDs: d.MentionedIDs,
		}}, nil

	case "group_join", "group_leave":
		var d participantsData
		if err := decode(f.Data, &d); err != nil {
			return ports.EngineEvent{}, err
		}
		action := ports.ParticipantJoin
		if f.Type == "group_leave" {
			action = ports.ParticipantLeave
		}
		return ports.EngineEvent{Kind: ports.EngineParticipants, Participants: &ports.RawParticipants{
			ChatID:       d.ChatID,
			ChatName:     d.ChatName,
			Action:       action,
			Participants: d.Participants,
			Timestamp:    unixTime(d.Timestamp),
		}}, nil
	}
	return ports.EngineEvent{}, fmt.Errorf("unknown frame type %q", f.Type)
}
