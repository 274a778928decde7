package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`  ___        _ _      _    _                      _ `, "#34d399"},
	{` / __|_ __ _(_) |_ __| |_ | |__  ___  __ _ _ _ __| |`, "#2dd4bf"},
	{` \__ \ V  V / |  _/ _| ' \| '_ \/ _ \/ _' | '_/ _' |`, "#22d3ee"},
	{` |___/\_/\_/|_|\__\__|_||_|_.__/\___/\__,_|_| \__,_|`, "#38bdf8"},
}

// PrintBanner writes the switchboard banner followed by the version line.
// Colors are dropped when color is false.
func PrintBanner(w io.Writer, version string, color bool) {
	p := profile(color)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  v"+version).Faint())
	fmt.Fprintln(w)
}

func profile(color bool) termenv.Profile {
	if !color {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
