package cli

import "github.com/charmbracelet/lipgloss"

// Dusk colour palette, shared by the help printer and the TUI
var (
	// Core dusk colours (light to deep)
	DuskGold   = lipgloss.Color("#F8B31D") // Late sun
	DuskCoral  = lipgloss.Color("#F26B51") // Horizon
	DuskViolet = lipgloss.Color("#8E5FD3") // Upper sky
	DuskNavy   = lipgloss.Color("#2E3A87") // Night

	// Accent colours
	Haze = lipgloss.Color("#9A94B8") // Muted lavender for subtle text
)
