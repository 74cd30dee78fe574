package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/linuxmatters/lapse/internal/capture"
	"github.com/linuxmatters/lapse/internal/config"
)

// Thumbnail geometry
const (
	ThumbnailWidth    = config.ThumbnailWidth
	thumbnailCaption  = 14.0 // points
	thumbnailStripPad = 8
)

var (
	captionText  = color.RGBA{R: 248, G: 179, B: 29, A: 255} // #F8B31D
	captionStrip = color.RGBA{R: 24, G: 24, B: 24, A: 255}
)

// Snapshot keeps an RGBA copy of the most recent frame. Keep runs on the
// encoding goroutine; the readers may run anywhere.
type Snapshot struct {
	mu    sync.Mutex
	img   *image.RGBA
	index int
}

// Keep copies raw. The signature matches recorder.FrameHook.
func (s *Snapshot) Keep(raw *capture.RawFrame, index int) {
	if raw == nil || raw.Released() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r := image.Rect(0, 0, raw.Width, raw.Height)
	if s.img == nil || s.img.Rect != r {
		s.img = image.NewRGBA(r)
	}
	readPatch(raw, r, s.img)
	s.index = index
}

// Index is the presentation index of the kept frame, -1 before the first.
func (s *Snapshot) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return -1
	}
	return s.index
}

// Scaled returns the kept frame resized to width, preserving the aspect
// ratio, or nil before the first frame.
func (s *Snapshot) Scaled(width int) *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil || width <= 0 {
		return nil
	}
	return scaleToWidth(s.img, width)
}

func scaleToWidth(src image.Image, width int) *image.RGBA {
	b := src.Bounds()
	height := max(b.Dy()*width/b.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// ThumbnailPath swaps the extension of the video output for .png.
func ThumbnailPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".png"
}

// Caption describes a finished recording for the thumbnail strip.
func Caption(frames, framerate int, elapsed time.Duration) string {
	playback := time.Duration(0)
	if framerate > 0 {
		playback = time.Duration(frames) * time.Second / time.Duration(framerate)
	}
	return fmt.Sprintf("%d frames | %s at %d fps | recorded over %s",
		frames, playback.Round(time.Millisecond), framerate, elapsed.Round(time.Second))
}

// WriteThumbnail scales the kept frame to ThumbnailWidth, adds a caption
// strip underneath and saves it as PNG.
func (s *Snapshot) WriteThumbnail(path, caption string) error {
	img := s.Scaled(ThumbnailWidth)
	if img == nil {
		return fmt.Errorf("no frame captured")
	}
	return writeCaptioned(path, img, caption)
}

func writeCaptioned(path string, img *image.RGBA, caption string) error {
	face, err := NewFace(thumbnailCaption)
	if err != nil {
		return err
	}
	defer face.Close()

	_, bounds := measureText(face, caption)
	textHeight := (bounds.Max.Y - bounds.Min.Y).Ceil()
	stripHeight := textHeight + 2*thumbnailStripPad

	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()+stripHeight))
	draw.Draw(out, b, img, b.Min, draw.Src)
	strip := image.Rect(0, b.Dy(), b.Dx(), out.Rect.Max.Y)
	draw.Draw(out, strip, image.NewUniform(captionStrip), image.Point{}, draw.Src)

	drawCenteredLine(out, face, caption, strip)

	if err := saveThumbnail(out, path); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return nil
}

// drawCenteredLine centres text horizontally and vertically inside r.
func drawCenteredLine(img *image.RGBA, face font.Face, text string, r image.Rectangle) {
	if text == "" {
		return
	}
	width, bounds := measureText(face, text)
	height := (bounds.Max.Y - bounds.Min.Y).Ceil()
	x := r.Min.X + (r.Dx()-width)/2
	y := r.Min.Y + (r.Dy()-height)/2
	drawText(img, face, captionText, text, max(x, r.Min.X), y)
}

// saveThumbnail saves the thumbnail image to a PNG file
func saveThumbnail(img *image.RGBA, outputPath string) error {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := png.Encode(outFile, img); err != nil {
		outFile.Close()
		return err
	}
	return outFile.Close()
}
