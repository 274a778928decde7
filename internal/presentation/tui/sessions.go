package tui

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
)

var stateColors = map[domain.SessionState]string{
	domain.StateReady:         "#22c55e",
	domain.StateAuthenticated: "#84cc16",
	domain.StateQRReady:       "#eab308",
	domain.StateInitializing:  "#38bdf8",
	domain.StateDisconnected:  "#f97316",
	domain.StateFailed:        "#ef4444",
}

// SessionRow is one line of the sessions table.
type SessionRow struct {
	Tenant        domain.TenantID
	State         domain.SessionState
	PhoneNumber   string
	HasCredential bool
	UpdatedAt     time.Time
}

// RowsFromJournal converts journal entries; hasCredential marks tenants with stored credentials.
func RowsFromJournal(entries []domain.JournalEntry, hasCredential func(domain.TenantID) bool) []SessionRow {
	rows := make([]SessionRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, SessionRow{
			Tenant:        e.Tenant,
			State:         e.State,
			PhoneNumber:   e.PhoneNumber,
			HasCredential: hasCredential != nil && hasCredential(e.Tenant),
			UpdatedAt:     e.UpdatedAt,
		})
	}
	return rows
}

// RenderSessions writes rows as an aligned table sorted by tenant.
func RenderSessions(w io.Writer, rows []SessionRow, color bool) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	sorted := append([]SessionRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tenant < sorted[j].Tenant })

	width := len("TENANT")
	for _, r := range sorted {
		if n := len(r.Tenant); n > width {
			width = n
		}
	}

	p := profile(color)
	header := fmt.Sprintf("%-*s  %-16s  %-16s  %-5s  %s", width, "TENANT", "STATE", "PHONE", "CREDS", "UPDATED")
	fmt.Fprintln(w, p.String(header).Bold())
	for _, r := range sorted {
		state := p.String(fmt.Sprintf("%-16s", r.State))
		if c, ok := stateColors[r.State]; ok {
			state = state.Foreground(p.Color(c))
		}
		fmt.Fprintf(w, "%-*s  %s  %-16s  %-5s  %s\n",
			width, r.Tenant, state, dash(r.PhoneNumber), yesNo(r.HasCredential), when(r.UpdatedAt))
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
