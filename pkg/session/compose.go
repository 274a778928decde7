package session

import (
	"fmt"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
)

// normalizePhone keeps only the digits of a phone number.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizePhones normalizes and deduplicates phones, dropping empty ones.
func normalizePhones(phones []string) []string {
	seen := make(map[string]bool, len(phones))
	out := make([]string, 0, len(phones))
	for _, p := range phones {
		n := normalizePhone(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func mentionLine(phones []string) string {
	tokens := make([]string, len(phones))
	for i, p := range phones {
		tokens[i] = "@" + p
	}
	return strings.Join(tokens, " ")
}

// composeWelcome builds "<joiner mentions>\n\n<text>\n\n<extra mentions>", omitting
// empty parts. It returns the body and the normalized phones of both groups.
func composeWelcome(text string, joinerPhones, extraPhones []string) (string, []string, []string) {
	joiners := normalizePhones(joinerPhones)
	extras := normalizePhones(extraPhones)

	parts := make([]string, 0, 3)
	if len(joiners) > 0 {
		parts = append(parts, mentionLine(joiners))
	}
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, t)
	}
	if len(extras) > 0 {
		parts = append(parts, mentionLine(extras))
	}
	return strings.Join(parts, "\n\n"), joiners, extras
}

func validatePoll(p domain.Poll) error {
	if strings.TrimSpace(p.Question) == "" {
		return domain.NewValidationError("question", "must not be empty")
	}
	if n := len(p.Options); n < domain.MinPollOptions || n > domain.MaxPollOptions {
		return domain.NewValidationError("options", fmt.Sprintf("need between %d and %d options, got %d", domain.MinPollOptions, domain.MaxPollOptions, n))
	}
	for i, o := range p.Options {
		if strings.TrimSpace(o) == "" {
			return domain.NewValidationError("options", fmt.Sprintf("option %d is empty", i+1))
		}
	}
	return nil
}

func validateTarget(groupID string) error {
	if strings.TrimSpace(groupID) == "" {
		return domain.NewValidationError("groupId", "must not be empty")
	}
	return nil
}
