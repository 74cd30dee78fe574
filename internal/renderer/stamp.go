package renderer

import (
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/linuxmatters/lapse/internal/capture"
)

// StampLayout formats the capture time burned into each frame.
const StampLayout = "2006-01-02 15:04:05"

// Stamp appearance
const (
	DefaultStampSize = 18.0
	stampMargin      = 12 // from the frame edges
	stampPadding     = 6  // inside the backing box
)

var (
	stampText = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	stampBox  = color.RGBA{A: 160}
)

// Stamper burns the capture wall-clock time into the bottom-right corner of
// raw frames. It is not safe for concurrent use.
type Stamper struct {
	face  font.Face
	patch *image.RGBA
}

// NewStamper loads the stamp font at size points.
func NewStamper(size float64) (*Stamper, error) {
	face, err := NewFace(size)
	if err != nil {
		return nil, err
	}
	return &Stamper{face: face}, nil
}

// Label is the text drawn for a frame captured at t.
func (s *Stamper) Label(t time.Time) string {
	return t.Format(StampLayout)
}

// Stamp draws the label onto raw in place. Frames too small to hold the
// label are left untouched. The signature matches recorder.FrameHook.
func (s *Stamper) Stamp(raw *capture.RawFrame, index int) {
	if raw == nil || raw.Released() {
		return
	}
	label := s.Label(raw.Captured)
	width, bounds := measureText(s.face, label)
	height := (bounds.Max.Y - bounds.Min.Y).Ceil()

	box := image.Rect(0, 0, width+2*stampPadding, height+2*stampPadding)
	x0 := raw.Width - box.Dx() - stampMargin
	y0 := raw.Height - box.Dy() - stampMargin
	if x0 < 0 || y0 < 0 {
		return
	}
	at := box.Add(image.Pt(x0, y0))

	if s.patch == nil || s.patch.Rect != box {
		s.patch = image.NewRGBA(box)
	}
	readPatch(raw, at, s.patch)
	draw.Draw(s.patch, box, image.NewUniform(stampBox), image.Point{}, draw.Over)
	drawText(s.patch, s.face, stampText, label, stampPadding, stampPadding)
	writePatch(raw, at, s.patch)
}

// Close releases the font face.
func (s *Stamper) Close() error {
	return s.face.Close()
}

// readPatch copies the pixels of raw under r into patch as opaque RGBA.
func readPatch(raw *capture.RawFrame, r image.Rectangle, patch *image.RGBA) {
	bpp := raw.Format.BytesPerPixel()
	for y := 0; y < r.Dy(); y++ {
		src := raw.Pix[(r.Min.Y+y)*raw.Stride+r.Min.X*bpp:]
		dst := patch.Pix[y*patch.Stride:]
		for x := 0; x < r.Dx(); x++ {
			dst[x*4+0] = src[x*bpp+0]
			dst[x*4+1] = src[x*bpp+1]
			dst[x*4+2] = src[x*bpp+2]
			dst[x*4+3] = 255
		}
	}
}

// writePatch copies patch back over raw under r.
func writePatch(raw *capture.RawFrame, r image.Rectangle, patch *image.RGBA) {
	bpp := raw.Format.BytesPerPixel()
	for y := 0; y < r.Dy(); y++ {
		dst := raw.Pix[(r.Min.Y+y)*raw.Stride+r.Min.X*bpp:]
		src := patch.Pix[y*patch.Stride:]
		for x := 0; x < r.Dx(); x++ {
			copy(dst[x*bpp:x*bpp+3], src[x*4:x*4+3])
		}
	}
}
