package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// MajorVersion is the highest known version of one tracked major.
type MajorVersion struct {
	Major   string
	Highest string
}

// StatsRow describes one profile in the stats table.
type StatsRow struct {
	CMS          string
	Capabilities map[string]bool
	Versions     int
	Majors       []MajorVersion
	Plugins      int
	Themes       int
}

var capabilityOrder = []string{"version", "plugins", "themes", "interesting"}

// RenderStats writes a table of profiles, their capabilities, database
// sizes and wordlist sizes.
func RenderStats(w io.Writer, rows []StatsRow) {
	header := []string{"CMS", "Capabilities", "Versions", "Highest per major", "Plugins", "Themes"}
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			r.CMS,
			capabilities(r.Capabilities),
			strconv.Itoa(r.Versions),
			majors(r.Majors),
			count(r.Plugins),
			count(r.Themes),
		}
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i, c := range row {
			for _, line := range strings.Split(c, "\n") {
				widths[i] = max(widths[i], lipgloss.Width(line))
			}
		}
	}

	var out []string
	out = append(out, renderRow(header, widths, HeaderStyle))
	for _, row := range cells {
		out = append(out, renderRow(row, widths, CellStyle))
	}
	fmt.Fprintln(w, SanitizeString(lipgloss.JoinVertical(lipgloss.Left, out...)))
}

func renderRow(cols []string, widths []int, style lipgloss.Style) string {
	rendered := make([]string, len(cols))
	for i, c := range cols {
		// padding is part of the style width
		rendered[i] = style.Width(widths[i] + 2).Render(c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func capabilities(caps map[string]bool) string {
	parts := make([]string, 0, len(capabilityOrder))
	for _, c := range capabilityOrder {
		if caps[c] {
			parts = append(parts, CapabilityOnStyle.Render(c))
		} else {
			parts = append(parts, CapabilityOffStyle.Render("-"))
		}
	}
	return strings.Join(parts, " ")
}

func majors(ms []MajorVersion) string {
	if len(ms) == 0 {
		return "-"
	}
	lines := make([]string, len(ms))
	for i, m := range ms {
		h := m.Highest
		if h == "" {
			h = "-"
		}
		lines[i] = fmt.Sprintf("%s: %s", m.Major, h)
	}
	return strings.Join(lines, "\n")
}

// count renders a missing wordlist (negative size) as "-".
func count(n int) string {
	if n < 0 {
		return "-"
	}
	return strconv.Itoa(n)
}
