package capture

import (
	"fmt"
	"image"
	"time"
)

// PixelFormat is the memory layout of a RawFrame.
type PixelFormat int

const (
	// RGBA is packed R, G, B, A (4 bytes/pixel), as screen grabs arrive.
	RGBA PixelFormat = iota
	// RGB24 is packed R, G, B (3 bytes/pixel).
	RGB24
)

// BytesPerPixel returns the packed pixel size of f.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGBA:
		return 4
	case RGB24:
		return 3
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case RGBA:
		return "rgba"
	case RGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// RawFrame is one captured picture. It is owned by whoever asked the Source
// for it and must be released once converted.
type RawFrame struct {
	Width    int
	Height   int
	Stride   int // bytes per row
	Format   PixelFormat
	Pix      []byte
	Captured time.Time

	release func()
}

// NewRawFrame wraps pix as a frame. release, if non-nil, runs once on Release.
func NewRawFrame(width, height, stride int, format PixelFormat, pix []byte, release func()) *RawFrame {
	return &RawFrame{
		Width:    width,
		Height:   height,
		Stride:   stride,
		Format:   format,
		Pix:      pix,
		Captured: time.Now(),
		release:  release,
	}
}

// FromRGBA wraps an *image.RGBA without copying.
func FromRGBA(img *image.RGBA, release func()) *RawFrame {
	b := img.Bounds()
	return NewRawFrame(b.Dx(), b.Dy(), img.Stride, RGBA, img.Pix, release)
}

// RGBA returns an *image.RGBA sharing the frame's pixels, or nil when the
// frame is not RGBA or already released.
func (f *RawFrame) RGBA() *image.RGBA {
	if f.Format != RGBA || f.Pix == nil {
		return nil
	}
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Validate checks that Pix can hold Width x Height pixels at Stride.
func (f *RawFrame) Validate() error {
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("unknown pixel format %v", f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions: %dx%d", f.Width, f.Height)
	}
	if f.Stride < f.Width*bpp {
		return fmt.Errorf("stride %d too small for %d %v pixels", f.Stride, f.Width, f.Format)
	}
	if need := f.Stride*(f.Height-1) + f.Width*bpp; len(f.Pix) < need {
		return fmt.Errorf("pixel buffer too small: got %d bytes, need %d", len(f.Pix), need)
	}
	return nil
}

// Released reports whether Release has been called.
func (f *RawFrame) Released() bool {
	return f.Pix == nil
}

// Release ends the frame's lifetime. Calling it more than once is a no-op.
func (f *RawFrame) Release() {
	if f.Pix == nil {
		return
	}
	f.Pix = nil
	if f.release != nil {
		f.release()
		f.release = nil
	}
}
