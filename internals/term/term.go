// Package term answers questions about the terminal the CLI writes to.
package term

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// hyperlinkEnv lists variables set by terminals known to render OSC 8 links.
var hyperlinkEnv = []string{
	"WT_SESSION",
	"VTE_VERSION",
	"KONSOLE_VERSION",
	"KITTY_WINDOW_ID",
	"WEZTERM_EXECUTABLE",
	"TERM_PROGRAM",
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ColorEnabled honours NO_COLOR and only colours terminals.
func ColorEnabled(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return IsTerminal(w)
}

func SupportsHyperlinks() bool {
	switch os.Getenv("TERM") {
	case "", "dumb", "alacritty":
		return false
	}
	for _, key := range hyperlinkEnv {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func ClickableLink(label string, url string) string {
	if url == "" {
		return label
	}
	if label == "" {
		label = url
	}
	if !SupportsHyperlinks() {
		return label
	}
	return "\x1b]8;;" + url + "\x1b\\" + label + "\x1b]8;;\x1b\\"
}
