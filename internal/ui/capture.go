// Package ui is the bubbletea interface shown while a recording runs.
package ui

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/lapse/internal/cli"
	"github.com/linuxmatters/lapse/internal/recorder"
)

// Info describes the recording before the first frame arrives.
type Info struct {
	Output    string
	Display   string
	Codec     string // e.g. "libx264 1920×1080"
	Framerate int
	Delay     time.Duration
	Limit     int // zero when unbounded
}

// FrameUpdate is sent after every encoded frame.
type FrameUpdate struct {
	Progress recorder.Progress
	Codec    string      // replaces Info.Codec when set
	Preview  *image.RGBA // optional, last frame at preview scale
}

// Complete signals the recording has been finalized.
type Complete struct {
	Summary cli.Summary
	Err     error
}

// tickMsg refreshes the next-capture countdown between frames.
type tickMsg time.Time

// quitTimerMsg is sent when it's time to quit after showing completion
type quitTimerMsg struct{}

const tickInterval = 250 * time.Millisecond

// captureModel implements the Bubbletea model for a recording
type captureModel struct {
	progress        progress.Model
	info            Info
	lastUpdate      FrameUpdate
	haveUpdate      bool
	complete        *Complete
	cancel          func()
	stopping        bool // ctrl+c seen, waiting for finalization
	startTime       time.Time
	now             time.Time
	width           int
	minDisplayTime  time.Duration // Minimum time to show UI
	completionDelay time.Duration // Time to show completion screen
	cachedPreview   string        // Cached rendered preview string
	cachedFrameNum  int           // Frame number of cached preview
	noPreview       bool
}

// NewCaptureModel creates the recording UI. cancel is called on ctrl+c; the
// model keeps running until Complete arrives so finalization is visible.
func NewCaptureModel(info Info, cancel func(), noPreview bool) tea.Model {
	p := progress.New(
		progress.WithGradient(string(cli.DuskCoral), string(cli.DuskViolet)),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	now := time.Now()
	return &captureModel{
		progress:        p,
		info:            info,
		cancel:          cancel,
		startTime:       now,
		now:             now,
		minDisplayTime:  500 * time.Millisecond,
		completionDelay: 2 * time.Second,
		cachedFrameNum:  -1,
		noPreview:       noPreview,
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the countdown ticker
func (m *captureModel) Init() tea.Cmd {
	return tick()
}

// Update handles messages
func (m *captureModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(min(msg.Width-30, 50), 10)
		return m, nil

	case tickMsg:
		if m.complete != nil {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, tick()

	case FrameUpdate:
		m.lastUpdate = msg
		m.haveUpdate = true
		if msg.Codec != "" {
			m.info.Codec = msg.Codec
		}
		return m, nil

	case Complete:
		m.complete = &msg

		delay := m.completionDelay
		if elapsed := time.Since(m.startTime); elapsed < m.minDisplayTime {
			delay += m.minDisplayTime - elapsed
		}
		return m, tea.Tick(delay, func(time.Time) tea.Msg {
			return quitTimerMsg{}
		})

	case quitTimerMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		// Any key skips the completion screen delay
		if m.complete != nil {
			return m, tea.Quit
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.stopping {
				// Second request: leave the UI, the recorder still finalizes.
				return m, tea.Quit
			}
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	}

	return m, nil
}

// View renders the UI
func (m *captureModel) View() string {
	if m.complete != nil {
		return m.renderComplete()
	}
	return m.renderProgress()
}

func (m *captureModel) renderProgress() string {
	var s strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(cli.DuskViolet).
		Render(cli.Name)

	subtitle := lipgloss.NewStyle().
		Faint(true).
		Render(fmt.Sprintf("Recording %s every %s to %s", m.info.Display, m.info.Delay, m.info.Output))

	s.WriteString(title)
	s.WriteString("\n")
	s.WriteString(subtitle)
	s.WriteString("\n\n")

	p := m.lastUpdate.Progress
	if m.info.Limit > 0 {
		percent := float64(p.Frames) / float64(m.info.Limit)
		s.WriteString("Progress: ")
		s.WriteString(m.progress.ViewAs(percent))
		s.WriteString(fmt.Sprintf("  %d%%  ", int(percent*100)))
		s.WriteString(lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf("frame %d of %d", p.Frames, m.info.Limit)))
	} else {
		s.WriteString("Frames:   ")
		s.WriteString(lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", p.Frames)))
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("  until stopped"))
	}
	s.WriteString("\n\n")

	elapsed := p.Elapsed
	if elapsed == 0 {
		elapsed = m.now.Sub(m.startTime)
	}
	timingInfo := fmt.Sprintf("Time: %s  │  Video: %s  │  Next capture: %s",
		formatDuration(elapsed),
		formatDuration(playback(p.Frames, m.info.Framerate)),
		m.countdown())
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(timingInfo))
	s.WriteString("\n")

	if m.haveUpdate {
		labelStyle := lipgloss.NewStyle().Faint(true)
		valueStyle := lipgloss.NewStyle().Bold(true)

		s.WriteString("\n")
		s.WriteString(labelStyle.Render("File:  "))
		s.WriteString(valueStyle.Render(cli.FormatBytes(p.Bytes)))
		s.WriteString("\n")
		if m.info.Codec != "" {
			s.WriteString(labelStyle.Render("Video: "))
			s.WriteString(valueStyle.Render(m.info.Codec))
			s.WriteString("\n")
		}
		s.WriteString(labelStyle.Render("Cycle: "))
		s.WriteString(valueStyle.Render(fmt.Sprintf("capture %s, encode %s",
			formatDuration(p.CaptureTime), formatDuration(p.EncodeTime))))
		s.WriteString("\n")
	}

	if !m.noPreview {
		// Regenerate only for a new frame; reuse the cached string otherwise
		if m.lastUpdate.Preview != nil && p.Frames != m.cachedFrameNum {
			preview := DownsampleFrame(m.lastUpdate.Preview, PreviewFor(m.lastUpdate.Preview, m.width))
			m.cachedPreview = RenderPreview(preview)
			m.cachedFrameNum = p.Frames
		}
		if m.cachedPreview != "" {
			s.WriteString("\n")
			s.WriteString(m.cachedPreview)
		}
	}

	if m.stopping {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Italic(true).Foreground(cli.DuskGold).Render("Stopping, finalizing output..."))
	} else {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Faint(true).Italic(true).Render("ctrl+c to stop"))
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(cli.DuskViolet).
		Padding(1, 2).
		Render(s.String())
}

// countdown is the time left until the next capture, as of the last tick.
func (m *captureModel) countdown() string {
	if m.stopping {
		return "-"
	}
	next := m.lastUpdate.Progress.NextCapture
	if !m.haveUpdate {
		// The first capture waits one delay from the start.
		next = m.startTime.Add(m.info.Delay)
	}
	if next.IsZero() {
		return "-"
	}
	left := next.Sub(m.now)
	if left < 0 {
		return "now"
	}
	return formatDuration(left.Round(100 * time.Millisecond))
}

func (m *captureModel) renderComplete() string {
	out := cli.RenderSummary(m.complete.Summary)
	if m.complete.Err != nil {
		out += "\n" + cli.ErrorStyle.Render("Error: ") + m.complete.Err.Error()
	}
	return out + "\n"
}

// Helper functions

func playback(frames, framerate int) time.Duration {
	if framerate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(framerate)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}
