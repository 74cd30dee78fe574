// Package media holds the codec-independent picture and packet types that
// flow between the capture loop and the encoder.
package media

import "fmt"

// Frame is a YUV 4:2:0 planar picture. Plane 0 is luma, planes 1 and 2 are
// the Cb and Cr planes at half resolution in both directions.
type Frame struct {
	Width  int
	Height int
	PTS    int64

	Planes  [3][]byte
	Strides [3]int
}

// NewFrame allocates a frame backed by Go memory with tight strides.
func NewFrame(width, height int) *Frame {
	cw, ch := ChromaSize(width, height)
	f := &Frame{
		Width:   width,
		Height:  height,
		Strides: [3]int{width, cw, cw},
	}
	f.Planes[0] = make([]byte, width*height)
	f.Planes[1] = make([]byte, cw*ch)
	f.Planes[2] = make([]byte, cw*ch)
	return f
}

// ChromaSize returns the dimensions of the subsampled chroma planes.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// Validate checks that every plane can hold the picture at its stride.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions: %dx%d", f.Width, f.Height)
	}
	cw, ch := ChromaSize(f.Width, f.Height)
	dims := [3][2]int{{f.Width, f.Height}, {cw, ch}, {cw, ch}}
	for i, d := range dims {
		if f.Strides[i] < d[0] {
			return fmt.Errorf("plane %d stride %d is narrower than %d", i, f.Strides[i], d[0])
		}
		if need := f.Strides[i]*(d[1]-1) + d[0]; len(f.Planes[i]) < need {
			return fmt.Errorf("plane %d holds %d bytes, need %d", i, len(f.Planes[i]), need)
		}
	}
	return nil
}

// Row returns row y of plane p.
func (f *Frame) Row(p, y int) []byte {
	off := y * f.Strides[p]
	w := f.Width
	if p > 0 {
		w, _ = ChromaSize(f.Width, f.Height)
	}
	return f.Planes[p][off : off+w]
}
