package media

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/linuxmatters/lapse/internal/capture"
	apperrors "github.com/linuxmatters/lapse/internal/errors"
)

var (
	// ErrUnsupportedFormat is returned for a source layout a converter cannot read.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrFrameSize is returned when a raw frame is larger than the frame buffer.
	ErrFrameSize = errors.New("raw frame larger than frame buffer")
)

// Converter turns a raw capture into a YUV 4:2:0 frame buffer.
type Converter interface {
	Convert(raw *capture.RawFrame, dst *Frame) error
	Close() error
}

// ITU-R BT.601 full-range coefficients, 16.16 fixed point, matching the
// conversion in image/color.
const (
	yR  = 19595
	yG  = 38470
	yB  = 7471
	cbR = -11056
	cbG = -21712
	cbB = 32768
	crR = 32768
	crG = -27440
	crB = -5328
)

// GoConverter converts on the CPU, splitting the picture into row bands
// across goroutines.
type GoConverter struct {
	Workers int // zero means runtime.NumCPU()
}

// NewGoConverter returns a converter using every CPU.
func NewGoConverter() *GoConverter {
	return &GoConverter{}
}

// Convert writes raw into dst. A raw frame smaller than dst is padded by
// repeating its last column and row, so the picture is never scaled.
func (c *GoConverter) Convert(raw *capture.RawFrame, dst *Frame) error {
	if raw.Format != capture.RGBA && raw.Format != capture.RGB24 {
		return apperrors.Configuration(fmt.Errorf("%w: %v to yuv420p", ErrUnsupportedFormat, raw.Format))
	}
	if err := raw.Validate(); err != nil {
		return err
	}
	if err := dst.Validate(); err != nil {
		return err
	}
	if raw.Width > dst.Width || raw.Height > dst.Height {
		return fmt.Errorf("%w: %dx%d into %dx%d", ErrFrameSize, raw.Width, raw.Height, dst.Width, dst.Height)
	}

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	rowsPerWorker := dst.Height / workers
	if rowsPerWorker < 1 {
		rowsPerWorker = 1
		workers = dst.Height
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for worker := 0; worker < workers; worker++ {
		startY := worker * rowsPerWorker
		endY := startY + rowsPerWorker
		if worker == workers-1 {
			endY = dst.Height
		}
		go func(startY, endY int) {
			defer wg.Done()
			convertRows(raw, dst, startY, endY)
		}(startY, endY)
	}
	wg.Wait()
	return nil
}

// convertRows fills luma rows [startY, endY) and the chroma rows sampled from
// the even rows in that band.
func convertRows(raw *capture.RawFrame, dst *Frame, startY, endY int) {
	bpp := raw.Format.BytesPerPixel()
	lastX := raw.Width - 1
	lastY := raw.Height - 1

	for y := startY; y < endY; y++ {
		sy := min(y, lastY)
		src := raw.Pix[sy*raw.Stride : sy*raw.Stride+raw.Width*bpp]
		yRow := dst.Planes[0][y*dst.Strides[0]:]

		var uRow, vRow []byte
		chroma := y&1 == 0
		if chroma {
			uRow = dst.Planes[1][(y>>1)*dst.Strides[1]:]
			vRow = dst.Planes[2][(y>>1)*dst.Strides[2]:]
		}

		for x := 0; x < dst.Width; x++ {
			i := min(x, lastX) * bpp
			r := int32(src[i])
			g := int32(src[i+1])
			b := int32(src[i+2])

			yRow[x] = uint8((yR*r + yG*g + yB*b + 1<<15) >> 16)

			if chroma && x&1 == 0 {
				uRow[x>>1] = clampChroma(cbR*r + cbG*g + cbB*b + 257<<15)
				vRow[x>>1] = clampChroma(crR*r + crG*g + crB*b + 257<<15)
			}
		}
	}
}

func clampChroma(v int32) uint8 {
	if uint32(v)&0xff000000 == 0 {
		return uint8(v >> 16)
	}
	return uint8(^(v >> 31))
}

// Close implements Converter.
func (c *GoConverter) Close() error {
	return nil
}
