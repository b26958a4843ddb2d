package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Primary   = lipgloss.Color("#7D56F4")
	Secondary = lipgloss.Color("#00D4AA")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
	Bright  = lipgloss.Color("#FAFAFA")
)

// Pre-configured styles
var (
	BannerStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	VersionStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	// "[+] Plugins found:" headers
	SectionStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Bold(true)

	MarkerStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	NameStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Bold(true)

	URLStyle = lipgloss.NewStyle().
			Foreground(Secondary)

	DescriptionStyle = lipgloss.NewStyle().
				Foreground(Muted)

	// Resolved version candidates
	CandidateStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	HintStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	// Stats table
	HeaderStyle = lipgloss.NewStyle().
			Foreground(Bright).
			Background(Primary).
			Bold(true).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	CapabilityOnStyle = lipgloss.NewStyle().
				Foreground(Success)

	CapabilityOffStyle = lipgloss.NewStyle().
				Foreground(Muted)
)
