package ui

import (
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var (
	colorOnce    sync.Once
	colorEnabled bool
	colorForced  bool
)

// colorActive reports whether renderers should emit ANSI codes. Detection
// runs once per process and every Render* helper consults it, so tables and
// help output agree on whether color is on.
func colorActive() bool {
	if colorForced {
		return false
	}
	colorOnce.Do(func() {
		colorEnabled = detectColor(os.Stdout)
	})
	return colorEnabled
}

// detectColor applies the conventional precedence: NO_COLOR (any non-empty
// value, per https://no-color.org) disables, CLICOLOR_FORCE=1 forces color
// even without a TTY, CLICOLOR=0 disables, and otherwise color is on exactly
// when out is a terminal.
func detectColor(out *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(out.Fd()))
}

// ShouldUseColor reports whether ANSI colors should be used on stdout.
func ShouldUseColor() bool {
	return colorActive()
}

// ForceNoColor disables color output regardless of environment, for plain
// output modes like --json.
func ForceNoColor() {
	colorForced = true
}
