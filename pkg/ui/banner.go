package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/muesli/termenv"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
)

// Overridable at build time:
// go build -ldflags "-X github.com/cmsprobe/cmsprobe/pkg/ui.Commit=abc123"
var (
	BuildDate = "unknown"
	Commit    = "dev"
)

var (
	silentMode  bool
	noColorMode bool
	uiMu        sync.RWMutex
)

// SetSilent suppresses the banner and notices.
func SetSilent(silent bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	silentMode = silent
}

// IsSilent returns whether silent mode is enabled.
func IsSilent() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return silentMode
}

// SetNoColor disables colour in lipgloss styles and fatih/color notices.
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	color.NoColor = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether colour is disabled.
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

const bannerArt = `
  ___ _ __ ___  ___ _ __  _ __ ___ | |__   ___
 / __| '_ ' _ \/ __| '_ \| '__/ _ \| '_ \ / _ \
| (__| | | | | \__ \ |_) | | | (_) | |_) |  __/
 \___|_| |_| |_|___/ .__/|_|  \___/|_.__/ \___|
                   |_|
`

// PrintBanner writes the banner and version line to w.
func PrintBanner(w io.Writer) {
	if IsSilent() {
		return
	}
	for _, line := range strings.Split(bannerArt, "\n") {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "%30s\n\n", "v"+VersionStyle.Render(defaults.Version))
}

// VersionLine is printed by the version command.
func VersionLine() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", defaults.ToolName, defaults.Version, Commit, BuildDate)
}
