package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor   = DuskViolet
	successColor   = lipgloss.Color("#00AA00") // Green
	mutedColor     = lipgloss.Color("#888888") // Gray
	highlightColor = lipgloss.Color("#FFFF00") // Yellow
	textColor      = lipgloss.Color("#FFFFFF") // White
)

// Styles
var (
	// Title style
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// Subtitle style - muted gray
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	// Success message style
	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Highlight style for important values
	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	// Box style for framed content
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

// Name and Tagline head the banner, help and TUI.
const (
	Name    = "Lapse ⏱"
	Tagline = "Record your screen as a timelapse video, one frame every few seconds."
)

// PrintBanner prints the application banner
func PrintBanner() {
	fmt.Println(TitleStyle.Render(Name))
	fmt.Println(SubtitleStyle.Render(Tagline))
	fmt.Println()
}

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render(Name))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("%s %s\n", HighlightStyle.Render("Warning:"), message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render("✓"), message)
}

// PrintInfo prints an informational message
func PrintInfo(key, value string) {
	fmt.Printf("%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(value))
}

// FormatDuration formats a duration nicely
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Summary is what a finished recording reports to the user.
type Summary struct {
	Output    string
	Frames    int
	Playback  time.Duration // Frames / framerate
	Decoded   time.Duration // duration read back from the file, zero when unknown
	Elapsed   time.Duration // wall-clock recording time
	Size      int64
	Truncated bool
	Cancelled bool
}

// RenderSummary formats s as the boxed completion report.
func RenderSummary(s Summary) string {
	var b strings.Builder

	switch {
	case s.Truncated:
		b.WriteString(ErrorStyle.Render("✗ Recording truncated"))
	case s.Cancelled:
		b.WriteString(SuccessStyle.Render("✓ Recording stopped"))
	default:
		b.WriteString(SuccessStyle.Render("✓ Recording complete"))
	}
	b.WriteString("\n\n")

	b.WriteString(KeyStyle.Render("Output:    "))
	b.WriteString(ValueStyle.Render(s.Output))
	b.WriteString("\n")

	b.WriteString(KeyStyle.Render("Frames:    "))
	b.WriteString(ValueStyle.Render(fmt.Sprintf("%d", s.Frames)))
	b.WriteString("\n")

	b.WriteString(KeyStyle.Render("Duration:  "))
	b.WriteString(ValueStyle.Render(fmt.Sprintf("%s of video from %s of screen time",
		FormatDuration(s.Playback), FormatDuration(s.Elapsed))))
	b.WriteString("\n")

	if s.Decoded > 0 {
		b.WriteString(KeyStyle.Render("Decoded:   "))
		b.WriteString(ValueStyle.Render(FormatDuration(s.Decoded) + " read back from the file"))
		b.WriteString("\n")
	}

	b.WriteString(KeyStyle.Render("File Size: "))
	b.WriteString(ValueStyle.Render(FormatBytes(s.Size)))

	if s.Truncated {
		b.WriteString("\n\n")
		b.WriteString(HighlightStyle.Render("The encoder could not finish; the file has no end marker and may not play to the end."))
	}

	return BoxStyle.Render(b.String())
}

// PrintSummary prints the completion report
func PrintSummary(s Summary) {
	fmt.Println(RenderSummary(s))
}
