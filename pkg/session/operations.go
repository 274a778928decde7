package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// run executes fn against the tenant's engine inside its sequencer turn.
// It fails fast with domain.ErrNotReady and checks readiness again once the
// turn comes. fn's context ends at the operation timeout or on teardown.
func (m *Manager) run(ctx context.Context, tenant domain.TenantID, op string, fn func(context.Context, ports.Engine) error) error {
	m.mu.Lock()
	rec := m.lookup(tenant)
	ready := rec != nil && rec.state == domain.StateReady && rec.engine != nil
	m.mu.Unlock()
	if !ready {
		return fmt.Errorf("%s %s: %w", op, tenant, domain.ErrNotReady)
	}

	start := m.clock.Now()
	err := m.seq.Do(ctx, tenant, func(ctx context.Context) error {
		m.mu.Lock()
		if m.lookup(tenant) != rec || rec.state != domain.StateReady || rec.engine == nil {
			m.mu.Unlock()
			return fmt.Errorf("%s %s: %w", op, tenant, domain.ErrNotReady)
		}
		engine, opCtx := rec.engine, rec.opCtx
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
		defer cancel()
		stop := context.AfterFunc(opCtx, cancel)
		defer stop()

		err := fn(ctx, engine)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return err
	})
	if errors.Is(err, domain.ErrSessionInvalidated) {
		m.invalidate(rec, err)
	}
	m.metrics.observe(op, err, m.clock.Since(start))
	return err
}

// ListGroups returns the tenant's groups. A session that is not ready yields an empty list.
func (m *Manager) ListGroups(ctx context.Context, tenant domain.TenantID) ([]domain.Group, error) {
	groups, err := cachedRead(ctx, m, tenant, keyGroups, func(ctx context.Context, e ports.Engine) ([]domain.Group, error) {
		return e.Groups(ctx)
	})
	if errors.Is(err, domain.ErrNotReady) {
		return []domain.Group{}, nil
	}
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	return groups, nil
}

// ListGroupMembers returns the participants of a group.
func (m *Manager) ListGroupMembers(ctx context.Context, tenant domain.TenantID, groupID string) ([]domain.Member, error) {
	if err := validateTarget(groupID); err != nil {
		return nil, err
	}
	members, err := cachedRead(ctx, m, tenant, membersKey(groupID), func(ctx context.Context, e ports.Engine) ([]domain.Member, error) {
		return e.GroupMembers(ctx, groupID)
	})
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []domain.Member{}
	}
	return members, nil
}

// SetGroupRestriction toggles whether only admins may post in a group.
func (m *Manager) SetGroupRestriction(ctx context.Context, tenant domain.TenantID, groupID string, restricted bool) (domain.RestrictionResult, error) {
	if err := validateTarget(groupID); err != nil {
		return domain.RestrictionResult{}, err
	}
	err := m.run(ctx, tenant, "set_restriction", func(ctx context.Context, e ports.Engine) error {
		return e.SetMessagesAdminOnly(ctx, groupID, restricted)
	})
	if err != nil {
		return domain.RestrictionResult{}, err
	}
	return domain.RestrictionResult{Applied: true, GroupID: groupID, Restricted: restricted}, nil
}

// mentions resolves the identifiers mentioned by an outgoing message.
// Runs inside the caller's sequencer turn.
func (m *Manager) mentions(ctx context.Context, e ports.Engine, groupID string, opts domain.MentionOptions) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if opts.MentionAll {
		members, err := e.GroupMembers(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("mention all: %w", err)
		}
		for _, member := range members {
			add(member.ID)
		}
	}
	for _, phone := range normalizePhones(opts.MentionPhones) {
		add(m.resolvePhone(ctx, e, phone))
	}
	return ids, nil
}

// resolvePhone maps a phone to a mention identifier, falling back to the
// plain user identifier when the engine cannot resolve it.
func (m *Manager) resolvePhone(ctx context.Context, e ports.Engine, phone string) string {
	id, err := e.ResolvePhone(ctx, phone)
	if err != nil || id == "" {
		m.logger.Debug("Phone not resolved", "phone", phone, "err", err)
		return phone + "@c.us"
	}
	return id
}

func (m *Manager) receipt(groupID string, sent ports.SentMessage) domain.SendReceipt {
	at := sent.Timestamp
	if at.IsZero() {
		at = m.clock.Now().UTC()
	}
	return domain.SendReceipt{MessageID: sent.ID, SentAt: at, GroupID: groupID}
}

// SendText posts a text message to a group.
func (m *Manager) SendText(ctx context.Context, tenant domain.TenantID, groupID, text string, opts domain.MentionOptions) (domain.SendReceipt, error) {
	if err := validateTarget(groupID); err != nil {
		return domain.SendReceipt{}, err
	}
	text, err := sanitizeText("text", text, m.maxText)
	if err != nil {
		return domain.SendReceipt{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.SendReceipt{}, domain.NewValidationError("text", "must not be empty")
	}
	var sent ports.SentMessage
	err = m.run(ctx, tenant, "send_text", func(ctx context.Context, e ports.Engine) error {
		ids, err := m.mentions(ctx, e, groupID, opts)
		if err != nil {
			return err
		}
		sent, err = e.SendText(ctx, groupID, text, ids)
		return err
	})
	if err != nil {
		return domain.SendReceipt{}, err
	}
	return m.receipt(groupID, sent), nil
}

// SendMedia posts a local file to a group. The file is removed whatever the outcome.
func (m *Manager) SendMedia(ctx context.Context, tenant domain.TenantID, groupID, filePath, caption string, opts domain.MentionOptions) (domain.SendReceipt, error) {
	defer func() {
		if filePath == "" {
			return
		}
		if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("Failed to remove media file", "tenant", tenant, "path", filePath, "err", err)
		}
	}()

	if err := validateTarget(groupID); err != nil {
		return domain.SendReceipt{}, err
	}
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return domain.SendReceipt{}, domain.NewValidationError("file", "must be an existing regular file")
	}
	if caption, err = sanitizeText("caption", caption, m.maxText); err != nil {
		return domain.SendReceipt{}, err
	}

	media := ports.Media{Path: filePath, FileName: filepath.Base(filePath)}
	var sent ports.SentMessage
	err = m.run(ctx, tenant, "send_media", func(ctx context.Context, e ports.Engine) error {
		ids, err := m.mentions(ctx, e, groupID, opts)
		if err != nil {
			return err
		}
		sent, err = e.SendMedia(ctx, groupID, media, caption, ids)
		return err
	})
	if err != nil {
		return domain.SendReceipt{}, err
	}
	return m.receipt(groupID, sent), nil
}

// SendWelcome greets new members: joiner mentions, then text, then extra mentions.
func (m *Manager) SendWelcome(ctx context.Context, tenant domain.TenantID, groupID, text string, joinerPhones, extraPhones []string) (domain.WelcomeReceipt, error) {
	if err := validateTarget(groupID); err != nil {
		return domain.WelcomeReceipt{}, err
	}
	text, err := sanitizeText("text", text, m.maxText)
	if err != nil {
		return domain.WelcomeReceipt{}, err
	}
	body, joiners, extras := composeWelcome(text, joinerPhones, extraPhones)
	if body == "" {
		return domain.WelcomeReceipt{}, domain.NewValidationError("text", "welcome message is empty")
	}

	var sent ports.SentMessage
	err = m.run(ctx, tenant, "send_welcome", func(ctx context.Context, e ports.Engine) error {
		ids := make([]string, 0, len(joiners)+len(extras))
		for _, phone := range append(append([]string(nil), joiners...), extras...) {
			ids = append(ids, m.resolvePhone(ctx, e, phone))
		}
		var err error
		sent, err = e.SendText(ctx, groupID, body, ids)
		return err
	})
	if err != nil {
		return domain.WelcomeReceipt{}, err
	}
	return domain.WelcomeReceipt{
		SendReceipt:        m.receipt(groupID, sent),
		JoinerMentionCount: len(joiners),
		ExtraMentionCount:  len(extras),
	}, nil
}

// SendPoll posts a poll. Option counts outside [2, 12] are rejected before any engine contact.
func (m *Manager) SendPoll(ctx context.Context, tenant domain.TenantID, groupID string, poll domain.Poll, opts domain.MentionOptions) (domain.PollReceipt, error) {
	poll, err := sanitizePoll(poll, m.maxText)
	if err != nil {
		return domain.PollReceipt{}, err
	}
	if err := validatePoll(poll); err != nil {
		return domain.PollReceipt{}, err
	}
	if err := validateTarget(groupID); err != nil {
		return domain.PollReceipt{}, err
	}

	var sent ports.SentMessage
	err = m.run(ctx, tenant, "send_poll", func(ctx context.Context, e ports.Engine) error {
		ids, err := m.mentions(ctx, e, groupID, opts)
		if err != nil {
			return err
		}
		sent, err = e.SendPoll(ctx, groupID, poll, ids)
		return err
	})
	if err != nil {
		return domain.PollReceipt{}, err
	}
	return domain.PollReceipt{SendReceipt: m.receipt(groupID, sent), OptionCount: len(poll.Options)}, nil
}

// ListChannels returns the broadcast channels of the tenant.
func (m *Manager) ListChannels(ctx context.Context, tenant domain.TenantID) ([]domain.Channel, error) {
	channels, err := cachedRead(ctx, m, tenant, keyChannels, func(ctx context.Context, e ports.Engine) ([]domain.Channel, error) {
		return e.Channels(ctx)
	})
	if err != nil {
		return nil, err
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return channels, nil
}

// SendChannelText posts a text update to a channel.
func (m *Manager) SendChannelText(ctx context.Context, tenant domain.TenantID, channelID, text string) (domain.SendReceipt, error) {
	if strings.TrimSpace(channelID) == "" {
		return domain.SendReceipt{}, domain.NewValidationError("channelId", "must not be empty")
	}
	text, err := sanitizeText("text", text, m.maxText)
	if err != nil {
		return domain.SendReceipt{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.SendReceipt{}, domain.NewValidationError("text", "must not be empty")
	}
	var sent ports.SentMessage
	err = m.run(ctx, tenant, "send_channel_text", func(ctx context.Context, e ports.Engine) error {
		var err error
		sent, err = e.SendChannelText(ctx, channelID, text)
		return err
	})
	if err != nil {
		return domain.SendReceipt{}, err
	}
	return m.receipt(channelID, sent), nil
}
