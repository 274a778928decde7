package session

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/switchboard/pkg/domain"
)

// sanitizeText rejects oversized or invalid UTF-8 input and strips control
// characters other than newline, tab and carriage return.
func sanitizeText(field, input string, limit int) (string, error) {
	if limit > 0 && len(input) > limit {
		return "", domain.NewValidationError(field, fmt.Sprintf("exceeds %d bytes", limit))
	}
	if !utf8.ValidString(input) {
		return "", domain.NewValidationError(field, "contains invalid UTF-8")
	}

	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

// sanitizePoll returns a copy of p with every text field sanitized.
func sanitizePoll(p domain.Poll, limit int) (domain.Poll, error) {
	q, err := sanitizeText("question", p.Question, limit)
	if err != nil {
		return domain.Poll{}, err
	}
	out := domain.Poll{Question: q, AllowMultiple: p.AllowMultiple, Options: make([]string, len(p.Options))}
	for i, o := range p.Options {
		if out.Options[i], err = sanitizeText("options", o, limit); err != nil {
			return domain.Poll{}, err
		}
	}
	return out, nil
}
