package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme represents a color theme.
type Theme struct {
	Name      string
	Primary   lipgloss.AdaptiveColor
	Text      lipgloss.AdaptiveColor
	TextDim   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Success   lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
}

// DefaultTheme is the stock theme.
var DefaultTheme = Theme{
	Name:      "default",
	Primary:   lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7B68EE"},
	Text:      lipgloss.AdaptiveColor{Light: "#1E1E1E", Dark: "#E0E0E0"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"},
	Border:    lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#404040"},
	Success:   lipgloss.AdaptiveColor{Light: "#4CAF50", Dark: "#66BB6A"},
	Error:     lipgloss.AdaptiveColor{Light: "#F44336", Dark: "#EF5350"},
	Highlight: lipgloss.AdaptiveColor{Light: "#2196F3", Dark: "#42A5F5"},
}

// Styles holds the rendered styles for the application.
type Styles struct {
	Theme Theme

	Header    lipgloss.Style
	Footer    lipgloss.Style
	Help      lipgloss.Style
	UserLabel lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Dim       lipgloss.Style
}

// New creates the styles for a theme.
func New(theme Theme) *Styles {
	return &Styles{
		Theme:     theme,
		Header:    lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Footer:    lipgloss.NewStyle().Foreground(theme.TextDim),
		Help:      lipgloss.NewStyle().Foreground(theme.TextDim).Italic(true),
		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(theme.Highlight),
		Assistant: lipgloss.NewStyle().Foreground(theme.Text),
		System:    lipgloss.NewStyle().Foreground(theme.TextDim).Italic(true),
		Error:     lipgloss.NewStyle().Foreground(theme.Error),
		Success:   lipgloss.NewStyle().Foreground(theme.Success),
		Dim:       lipgloss.NewStyle().Foreground(theme.TextDim),
	}
}
