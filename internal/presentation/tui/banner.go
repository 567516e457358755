package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the moments banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{" _ __ ___   ___  _ __ ___   ___ _ __ | |_ ___", "#818cf8"},
		{"| '_ ` _ \\ / _ \\| '_ ` _ \\ / _ \\ '_ \\| __/ __|", "#a78bfa"},
		{"| | | | | | (_) | | | | | |  __/ | | | |_\\__ \\", "#e879f9"},
		{"|_| |_| |_|\\___/|_| |_| |_|\\___|_| |_|\\__|___/", "#fb7185"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	fmt.Fprintln(w)
}

// Status colors a status word for terminals that support it.
func Status(s string, ok bool) string {
	p := termenv.ColorProfile()
	color := "#22c55e"
	if !ok {
		color = "#ef4444"
	}
	return termenv.String(s).Foreground(p.Color(color)).String()
}
