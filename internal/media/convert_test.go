package media

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/lapse/internal/capture"
	apperrors "github.com/linuxmatters/lapse/internal/errors"
)

func solidRGB24(w, h int, r, g, b uint8) *capture.RawFrame {
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return capture.NewRawFrame(w, h, w*3, capture.RGB24, pix, nil)
}

func solidRGBA(w, h, stride int, r, g, b uint8) *capture.RawFrame {
	pix := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*stride + x*4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
		}
	}
	return capture.NewRawFrame(w, h, stride, capture.RGBA, pix, nil)
}

func assertSolid(t *testing.T, f *Frame, r, g, b uint8) {
	t.Helper()
	wantY, wantCb, wantCr := color.RGBToYCbCr(r, g, b)
	cw, ch := ChromaSize(f.Width, f.Height)

	for y := 0; y < f.Height; y++ {
		for x, v := range f.Row(0, y) {
			if v != wantY {
				t.Fatalf("Y(%d,%d) = %d, want %d", x, y, v, wantY)
			}
		}
	}
	for y := 0; y < ch; y++ {
		u, v := f.Row(1, y), f.Row(2, y)
		for x := 0; x < cw; x++ {
			if u[x] != wantCb || v[x] != wantCr {
				t.Fatalf("CbCr(%d,%d) = %d,%d, want %d,%d", x, y, u[x], v[x], wantCb, wantCr)
			}
		}
	}
}

func TestGoConverter_SolidColours(t *testing.T) {
	colours := []struct {
		name    string
		r, g, b uint8
	}{
		{"black", 0, 0, 0},
		{"white", 255, 255, 255},
		{"red", 255, 0, 0},
		{"green", 0, 255, 0},
		{"blue", 0, 0, 255},
		{"amber", 0xff, 0xbf, 0x00},
	}

	conv := NewGoConverter()
	for _, c := range colours {
		t.Run(c.name, func(t *testing.T) {
			dst := NewFrame(64, 36)
			require.NoError(t, conv.Convert(solidRGB24(64, 36, c.r, c.g, c.b), dst))
			assertSolid(t, dst, c.r, c.g, c.b)

			dst = NewFrame(64, 36)
			require.NoError(t, conv.Convert(solidRGBA(64, 36, 64*4+16, c.r, c.g, c.b), dst))
			assertSolid(t, dst, c.r, c.g, c.b)
		})
	}
}

func TestGoConverter_WorkerCounts(t *testing.T) {
	src := solidRGB24(16, 10, 10, 200, 30)
	for _, workers := range []int{1, 3, 7, 64} {
		dst := NewFrame(16, 10)
		conv := &GoConverter{Workers: workers}
		require.NoError(t, conv.Convert(src, dst))
		assertSolid(t, dst, 10, 200, 30)
	}
}

func TestGoConverter_PadsSmallerFrames(t *testing.T) {
	// 3x3 source into a 4x4 buffer: the right column and bottom row repeat.
	pix := make([]byte, 3*3*3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			v := uint8(20 * (y*3 + x))
			i := (y*3 + x) * 3
			pix[i], pix[i+1], pix[i+2] = v, v, v
		}
	}
	raw := capture.NewRawFrame(3, 3, 9, capture.RGB24, pix, nil)
	dst := NewFrame(4, 4)
	require.NoError(t, NewGoConverter().Convert(raw, dst))

	luma := func(v uint8) uint8 {
		y, _, _ := color.RGBToYCbCr(v, v, v)
		return y
	}
	assert.Equal(t, luma(40), dst.Row(0, 0)[3], "right edge repeats")
	assert.Equal(t, luma(140), dst.Row(0, 3)[1], "bottom edge repeats")
	assert.Equal(t, luma(160), dst.Row(0, 3)[3], "corner repeats")
}

func TestGoConverter_Errors(t *testing.T) {
	conv := NewGoConverter()

	err := conv.Convert(solidRGB24(8, 8, 0, 0, 0), NewFrame(4, 4))
	assert.ErrorIs(t, err, ErrFrameSize)

	odd := capture.NewRawFrame(4, 4, 8, capture.PixelFormat(42), make([]byte, 32), nil)
	err = conv.Convert(odd, NewFrame(4, 4))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.True(t, apperrors.IsConfiguration(err))

	released := solidRGB24(4, 4, 0, 0, 0)
	released.Release()
	assert.Error(t, conv.Convert(released, NewFrame(4, 4)))
}

func BenchmarkGoConverter(b *testing.B) {
	const w, h = 1920, 1080
	raw := solidRGBA(w, h, w*4, 12, 34, 56)
	dst := NewFrame(w, h)
	conv := NewGoConverter()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := conv.Convert(raw, dst); err != nil {
			b.Fatal(err)
		}
	}
}
