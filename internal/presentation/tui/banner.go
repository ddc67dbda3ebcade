package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	"        _       _   _ _       _    ",
	"  _ __ | | ___ | |_| (_)_ __ | | __",
	" | '_ \\| |/ _ \\| __| | | '_ \\| |/ /",
	" | |_) | | (_) | |_| | | | | |   < ",
	" | .__/|_|\\___/ \\__|_|_|_| |_|_|\\_\\",
	" |_|                               ",
}

// Teal to blue.
var bannerColors = []string{"#2dd4bf", "#22d3ee", "#38bdf8", "#60a5fa", "#818cf8", "#a78bfa"}

// PrintBanner writes the plotlink banner and version to w.
func PrintBanner(w io.Writer, version string, opts ...termenv.OutputOption) {
	out := termenv.NewOutput(w, opts...)

	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, out.String(line).Foreground(out.Color(bannerColors[i])))
	}
	fmt.Fprintln(w, out.String("  "+version).Faint())
	fmt.Fprintln(w)
}
