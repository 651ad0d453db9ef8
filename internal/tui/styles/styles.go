// Package styles holds the lipgloss palette shared by the browser and viewer.
package styles

import "github.com/charmbracelet/lipgloss"

// Darkroom palette: neutral grays with an amber safelight accent
var (
	Amber      = lipgloss.Color("#F2A93B")
	Ink        = lipgloss.Color("#14161A")
	SlateLight = lipgloss.Color("#3A3F47")
	DimGray    = lipgloss.Color("#6E7681")
	LightGray  = lipgloss.Color("#A8B0BA")
	White      = lipgloss.Color("#F4F5F7")
	Red        = lipgloss.Color("#E5534B")
)

// Pane borders; the focused pane gets the accent
var (
	ActiveBorder   = pane(Amber)
	InactiveBorder = pane(DimGray)
)

func pane(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c)
}

var (
	TitleStyle    = lipgloss.NewStyle().Foreground(White).Bold(true)
	SubtitleStyle = lipgloss.NewStyle().Foreground(LightGray)
	DimStyle      = lipgloss.NewStyle().Foreground(DimGray)
	AccentStyle   = lipgloss.NewStyle().Foreground(Amber)
	ErrorStyle    = lipgloss.NewStyle().Foreground(Red)
)

// Sidebar rows
var (
	SelectedItemStyle = lipgloss.NewStyle().Foreground(White).Background(SlateLight).Padding(0, 1)
	NormalItemStyle   = lipgloss.NewStyle().Foreground(LightGray).Padding(0, 1)

	// MatchStyle marks the characters a filter query matched
	MatchStyle = lipgloss.NewStyle().Foreground(Amber).Underline(true)
)

// Album visibility checkboxes
const (
	CheckedBox   = "[x]"
	UncheckedBox = "[ ]"
)

// Footer help
var (
	HelpKeyStyle  = AccentStyle
	HelpDescStyle = DimStyle
)

// Grid cell badges for video duration and live photos
var (
	BadgeStyle    = lipgloss.NewStyle().Foreground(Ink).Background(Amber).Padding(0, 1)
	DimBadgeStyle = lipgloss.NewStyle().Foreground(LightGray).Background(SlateLight).Padding(0, 1)
)

// Full-screen viewer
var (
	ViewerFrameStyle = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				BorderForeground(Amber).
				Padding(1, 2)

	// CanvasStyle fills the area the scaled media occupies
	CanvasStyle = lipgloss.NewStyle().Foreground(SlateLight).Background(Ink)
)

var StatusBarStyle = lipgloss.NewStyle().Foreground(LightGray).Padding(0, 1)
