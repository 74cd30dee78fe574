// Package renderer draws on captured frames: the wall-clock stamp burned
// into each frame and the poster thumbnail written after a run.
package renderer

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

var regularFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

// NewFace returns a Go Regular face at size points.
func NewFace(size float64) (font.Face, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid font size %v", size)
	}
	f, err := regularFont()
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}

// measureText returns the width and bounds of rendered text. Min.Y is
// negative (ascent), Max.Y positive (descent).
func measureText(face font.Face, text string) (int, fixed.Rectangle26_6) {
	d := &font.Drawer{Face: face}
	bounds, _ := d.BoundString(text)
	width := (bounds.Max.X - bounds.Min.X).Ceil()
	return width, bounds
}

// drawText draws text with its visual top-left corner at (x, y).
func drawText(img *image.RGBA, face font.Face, c color.Color, text string, x, y int) {
	_, bounds := measureText(face, text)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
	}
	d.Dot = freetype.Pt(x-bounds.Min.X.Floor(), y-bounds.Min.Y.Floor())
	d.DrawString(text)
}
