package tui

import (
	"os"

	"golang.org/x/term"
)

// ColorEnabled reports whether f is an interactive terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
