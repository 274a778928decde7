package middleware

import (
	"context"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

type piiMiddleware struct {
	next ports.SessionJournal
	keep int
}

// NewPIIMiddleware masks saved phone numbers, leaving only the last keep digits visible.
// Masking is one-way: loaded entries carry the masked value.
func NewPIIMiddleware(keep int) Middleware {
	if keep < 0 {
		keep = 0
	}
	return func(next ports.SessionJournal) ports.SessionJournal {
		return &piiMiddleware{next: next, keep: keep}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, entry domain.JournalEntry) error {
	entry.PhoneNumber = maskPhone(entry.PhoneNumber, m.keep)
	return m.next.Save(ctx, entry)
}

func (m *piiMiddleware) Load(ctx context.Context, tenant domain.TenantID) (domain.JournalEntry, error) {
	return m.next.Load(ctx, tenant)
}

func (m *piiMiddleware) Delete(ctx context.Context, tenant domain.TenantID) error {
	return m.next.Delete(ctx, tenant)
}

func (m *piiMiddleware) List(ctx context.Context) ([]domain.TenantID, error) {
	return m.next.List(ctx)
}

func maskPhone(phone string, keep int) string {
	if phone == "" {
		return ""
	}
	if keep >= len(phone) {
		return phone
	}
	return strings.Repeat("*", len(phone)-keep) + phone[len(phone)-keep:]
}
