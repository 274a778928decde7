// Package middleware decorates a SessionJournal with at-rest protection of
// the personal data a journal entry carries.
package middleware

import "github.com/aretw0/switchboard/pkg/ports"

// Middleware allows wrapping a SessionJournal to add behavior.
type Middleware func(ports.SessionJournal) ports.SessionJournal

// Chain applies mws so that the first one is the outermost.
func Chain(j ports.SessionJournal, mws ...Middleware) ports.SessionJournal {
	for i := len(mws) - 1; i >= 0; i-- {
		j = mws[i](j)
	}
	return j
}
