package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/kbinani/screenshot"

	"github.com/linuxmatters/lapse/internal/config"
	apperrors "github.com/linuxmatters/lapse/internal/errors"
)

// Display identifies the screen to record.
type Display struct {
	Name  string // X display name such as ":0", empty when not on X11
	Index int    // screen index as enumerated by screenshot
}

func (d Display) String() string {
	switch {
	case d.Name == "":
		return strconv.Itoa(d.Index)
	case d.Index == 0:
		return d.Name
	default:
		return fmt.Sprintf("%s@%d", d.Name, d.Index)
	}
}

// ParseDisplay accepts an X display name (":0", ":1.0", "host:0"), a screen
// index ("0", "1") or both (":0@1").
func ParseDisplay(id string) (Display, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Display{}, fmt.Errorf("empty display identifier")
	}

	name, index := id, ""
	if at := strings.LastIndexByte(id, '@'); at >= 0 {
		name, index = id[:at], id[at+1:]
		if index == "" {
			return Display{}, fmt.Errorf("invalid display identifier %q: missing screen index", id)
		}
	} else if !strings.Contains(id, ":") {
		name, index = "", id
	}

	d := Display{Name: name}
	if index != "" {
		n, err := strconv.Atoi(index)
		if err != nil || n < 0 {
			return Display{}, fmt.Errorf("invalid display identifier %q: bad screen index %q", id, index)
		}
		d.Index = n
	}
	if d.Name != "" && !strings.Contains(d.Name, ":") {
		return Display{}, fmt.Errorf("invalid display identifier %q: X display names look like :0", id)
	}
	return d, nil
}

// grabFunc matches screenshot.CaptureRect.
type grabFunc func(image.Rectangle) (*image.RGBA, error)

// ScreenSource captures a display through kbinani/screenshot.
type ScreenSource struct {
	display Display
	rect    image.Rectangle
	grab    grabFunc

	mu     sync.Mutex
	closed bool
}

// xDisplayMu serialises DISPLAY changes; screenshot reads it on every grab.
var xDisplayMu sync.Mutex

// NewScreenSource opens the display identified by id. The capture rectangle
// is the display bounds rounded down to the codec alignment, so frames come
// out at the encode resolution.
func NewScreenSource(id string) (*ScreenSource, error) {
	d, err := ParseDisplay(id)
	if err != nil {
		return nil, apperrors.Configuration(err)
	}

	if d.Name != "" && usesX11() {
		xDisplayMu.Lock()
		err := os.Setenv("DISPLAY", d.Name)
		xDisplayMu.Unlock()
		if err != nil {
			return nil, apperrors.Resource("capture setup", fmt.Errorf("failed to select X display %s: %w", d.Name, err))
		}
	}

	total := screenshot.NumActiveDisplays()
	if total <= 0 {
		return nil, apperrors.Resource("capture setup", fmt.Errorf("%w: no active displays on %s", ErrNoDisplay, d))
	}
	if d.Index >= total {
		return nil, apperrors.Resource("capture setup", fmt.Errorf("%w: screen index %d out of range (have %d)", ErrNoDisplay, d.Index, total))
	}

	rect, err := alignedRect(screenshot.GetDisplayBounds(d.Index))
	if err != nil {
		return nil, apperrors.Resource("capture setup", fmt.Errorf("%w: %s: %v", ErrNoDisplay, d, err))
	}

	return &ScreenSource{
		display: d,
		rect:    rect,
		grab:    screenshot.CaptureRect,
	}, nil
}

// alignedRect trims bounds so both dimensions are codec aligned.
func alignedRect(bounds image.Rectangle) (image.Rectangle, error) {
	w, h := config.AlignDown(bounds.Dx()), config.AlignDown(bounds.Dy())
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("display has unusable bounds %v", bounds)
	}
	return image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+w, bounds.Min.Y+h), nil
}

// Display returns the parsed display identifier.
func (s *ScreenSource) Display() Display {
	return s.display
}

// Size implements Source.
func (s *ScreenSource) Size() (int, int) {
	return s.rect.Dx(), s.rect.Dy()
}

// Capture implements Source.
func (s *ScreenSource) Capture(ctx context.Context) (*RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("capture from %s: source closed", s.display)
	}

	img, err := s.grab(s.rect)
	if err != nil {
		return nil, fmt.Errorf("capture from %s: %w", s.display, err)
	}

	if b := img.Bounds(); b.Dx() != s.rect.Dx() || b.Dy() != s.rect.Dy() {
		return nil, fmt.Errorf("capture from %s: got %dx%d, expected %dx%d (display resized?)",
			s.display, b.Dx(), b.Dy(), s.rect.Dx(), s.rect.Dy())
	}

	return FromRGBA(img, nil), nil
}

// Close implements Source.
func (s *ScreenSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func usesX11() bool {
	switch runtime.GOOS {
	case "windows", "darwin":
		return false
	default:
		return true
	}
}
