package session

import (
	"context"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// identityFor returns the own identity of the handle generation, or false when
// the handle is no longer current.
func (m *Manager) identityFor(tenant domain.TenantID, gen uint64) (domain.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.lookup(tenant)
	if rec == nil || rec.gen != gen {
		return domain.Identity{}, false
	}
	return rec.identity, true
}

// contact looks a user identifier up through the cache. Failures yield false.
func (m *Manager) contact(ctx context.Context, tenant domain.TenantID, id string) (ports.Contact, bool) {
	c, err := cachedRead(ctx, m, tenant, contactKey(id), func(ctx context.Context, e ports.Engine) (ports.Contact, error) {
		return e.Contact(ctx, id)
	})
	if err != nil {
		m.logger.Debug("Contact lookup failed", "tenant", tenant, "id", id, "err", err)
		return ports.Contact{}, false
	}
	if c == (ports.Contact{}) {
		return c, false
	}
	return c, true
}

// userPart returns the user portion of an identifier ("1555:3@c.us" -> "1555").
func userPart(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	return id
}

// opaque reports whether an identifier hides the phone number.
func opaque(id string) bool {
	return strings.HasSuffix(id, "@lid")
}

// resolvePerson derives phone and display name for an identifier.
func resolvePerson(id string, c ports.Contact, found, fromMe bool, own domain.Identity) (phone, name string) {
	switch {
	case found && c.Number != "":
		phone = normalizePhone(c.Number)
	case !opaque(id) && userPart(id) != "":
		phone = userPart(id)
	case fromMe || (found && c.IsMe):
		phone = own.PhoneNumber
	default:
		phone = userPart(id)
	}

	switch {
	case found && c.Name != "":
		name = c.Name
	case found && c.PushName != "":
		name = c.PushName
	case (fromMe || (found && c.IsMe)) && own.PushName != "":
		name = own.PushName
	default:
		name = phone
	}
	return phone, name
}

func isWordByte(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// replaceToken replaces token occurrences not followed by an alphanumeric byte,
// so "@1555" never matches inside "@15551".
func replaceToken(s, token, repl string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, token)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := i + len(token)
		if end < len(s) && isWordByte(s[end]) {
			b.WriteString(s[:end])
		} else {
			b.WriteString(s[:i])
			b.WriteString(repl)
		}
		s = s[end:]
	}
}

// rewriteMentions turns "@<id>" tokens into "@Name (phone)" and returns the
// phones of the mentioned users.
func (m *Manager) rewriteMentions(ctx context.Context, tenant domain.TenantID, body string, ids []string, own domain.Identity) (string, []string) {
	var phones []string
	for _, id := range ids {
		c, found := m.contact(ctx, tenant, id)
		phone, name := resolvePerson(id, c, found, false, own)
		if opaque(id) && !(found && (c.Number != "" || c.IsMe)) {
			// No number behind an opaque handle: mention by name only.
			if !found || name == phone {
				name = userPart(id)
			}
			phone = ""
		}

		repl := "@" + name
		if phone != "" && name != phone {
			repl += " (" + phone + ")"
		}
		body = replaceToken(body, "@"+id, repl)
		if up := userPart(id); up != "" && up != id {
			body = replaceToken(body, "@"+up, repl)
		}
		if phone != "" {
			phones = append(phones, phone)
		}
	}
	return body, phones
}

// normalizeMessage converts an inbound group message into message and, for
// voice notes, certificate events.
func (m *Manager) normalizeMessage(tenant domain.TenantID, gen uint64, raw ports.RawMessage) {
	if !raw.IsGroup {
		return
	}
	own, ok := m.identityFor(tenant, gen)
	if !ok {
		return
	}
	ctx := context.Background()

	senderID := raw.Author
	if senderID == "" {
		senderID = raw.From
	}
	c, found := m.contact(ctx, tenant, senderID)
	phone, name := resolvePerson(senderID, c, found, raw.FromMe, own)
	content, mentioned := m.rewriteMentions(ctx, tenant, raw.Body, raw.MentionedIDs, own)

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = m.clock.Now().UTC()
	}
	m.publish(ctx, domain.Event{
		Type:   domain.EventMessage,
		Tenant: tenant,
		Message: &domain.InboundMessage{
			ID:              raw.ID,
			GroupID:         raw.ChatID,
			GroupName:       raw.ChatName,
			SenderID:        senderID,
			SenderName:      name,
			SenderPhone:     phone,
			Content:         content,
			MessageType:     raw.Type,
			Timestamp:       ts,
			FromMe:          raw.FromMe,
			MentionedPhones: mentioned,
		},
	})

	if raw.Type == "ptt" || raw.Type == "audio" {
		m.publish(ctx, domain.Event{
			Type:   domain.EventCertificate,
			Tenant: tenant,
			Participant: &domain.ParticipantEvent{
				GroupID:     raw.ChatID,
				GroupName:   raw.ChatName,
				MemberID:    senderID,
				MemberName:  name,
				MemberPhone: phone,
				Timestamp:   ts,
			},
		})
	}
}

// normalizeParticipants emits one membership event per affected participant.
func (m *Manager) normalizeParticipants(tenant domain.TenantID, gen uint64, change ports.RawParticipants) {
	own, ok := m.identityFor(tenant, gen)
	if !ok {
		return
	}
	var kind domain.EventType
	switch change.Action {
	case ports.ParticipantJoin:
		kind = domain.EventMemberJoin
	case ports.ParticipantLeave:
		kind = domain.EventMemberLeave
	default:
		m.logger.Debug("Ignoring participant action", "tenant", tenant, "action", change.Action)
		return
	}
	ts := change.Timestamp
	if ts.IsZero() {
		ts = m.clock.Now().UTC()
	}

	ctx := context.Background()
	for _, id := range change.Participants {
		if strings.TrimSpace(id) == "" {
			m.logger.Warn("Skipping participant without identifier", "tenant", tenant, "group", change.ChatID)
			continue
		}
		c, found := m.contact(ctx, tenant, id)
		phone, name := resolvePerson(id, c, found, false, own)
		m.publish(ctx, domain.Event{
			Type:   kind,
			Tenant: tenant,
			Participant: &domain.ParticipantEvent{
				GroupID:     change.ChatID,
				GroupName:   change.ChatName,
				MemberID:    id,
				MemberName:  name,
				MemberPhone: phone,
				Timestamp:   ts,
			},
		})
	}
}
