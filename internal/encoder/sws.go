package encoder

import (
	"errors"
	"fmt"
	"unsafe"

	ffmpeg "github.com/linuxmatters/ffmpeg-statigo"

	"github.com/linuxmatters/lapse/internal/capture"
	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/media"
)

// SwsConverter converts through libswscale. Unlike media.GoConverter it is
// single threaded and only accepts frames of the size it was built for.
type SwsConverter struct {
	width  int
	height int
	format capture.PixelFormat

	swsCtx   *ffmpeg.SwsContext
	srcFrame *ffmpeg.AVFrame
	dstFrame *ffmpeg.AVFrame
}

func avPixFmt(f capture.PixelFormat) (ffmpeg.AVPixelFormat, error) {
	switch f {
	case capture.RGBA:
		return ffmpeg.AVPixFmtRgba, nil
	case capture.RGB24:
		return ffmpeg.AVPixFmtRgb24, nil
	default:
		return 0, apperrors.Configuration(fmt.Errorf("%w: %v to yuv420p", media.ErrUnsupportedFormat, f))
	}
}

// NewSwsConverter builds a scaler for width x height frames in format.
func NewSwsConverter(width, height int, format capture.PixelFormat) (*SwsConverter, error) {
	srcFmt, err := avPixFmt(format)
	if err != nil {
		return nil, err
	}

	c := &SwsConverter{width: width, height: height, format: format}

	c.swsCtx = ffmpeg.SwsAllocContext()
	if c.swsCtx == nil {
		return nil, apperrors.Resource("converter", errors.New("failed to allocate swscale context"))
	}
	c.swsCtx.SetSrcW(width)
	c.swsCtx.SetSrcH(height)
	c.swsCtx.SetSrcFormat(int(srcFmt))
	c.swsCtx.SetDstW(width)
	c.swsCtx.SetDstH(height)
	c.swsCtx.SetDstFormat(int(ffmpeg.AVPixFmtYuv420P))
	c.swsCtx.SetFlags(uint(ffmpeg.SwsBilinear))

	ret, err := ffmpeg.SwsInitContext(c.swsCtx, nil, nil)
	if err != nil || ret < 0 {
		c.Close()
		return nil, apperrors.Resource("converter", fmt.Errorf("failed to initialise swscale: %d %v", ret, err))
	}

	c.srcFrame, err = allocFrame(width, height, srcFmt)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.dstFrame, err = allocFrame(width, height, ffmpeg.AVPixFmtYuv420P)
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func allocFrame(width, height int, pixFmt ffmpeg.AVPixelFormat) (*ffmpeg.AVFrame, error) {
	frame := ffmpeg.AVFrameAlloc()
	if frame == nil {
		return nil, apperrors.Resource("converter", errors.New("failed to allocate frame"))
	}
	frame.SetWidth(width)
	frame.SetHeight(height)
	frame.SetFormat(int(pixFmt))

	if ret, err := ffmpeg.AVFrameGetBuffer(frame, 0); err != nil || ret < 0 {
		ffmpeg.AVFrameFree(&frame)
		return nil, apperrors.Resource("converter", fmt.Errorf("failed to allocate frame buffer: %d %v", ret, err))
	}
	return frame, nil
}

// plane returns plane i of frame as a Go slice covering rows rows.
func plane(frame *ffmpeg.AVFrame, i, rows int) ([]byte, int) {
	stride := int(frame.Linesize().Get(uintptr(i)))
	data := (*byte)(unsafe.Pointer(frame.Data().Get(uintptr(i))))
	return unsafe.Slice(data, stride*rows), stride
}

// Convert implements media.Converter.
func (c *SwsConverter) Convert(raw *capture.RawFrame, dst *media.Frame) error {
	if raw.Format != c.format {
		return apperrors.Configuration(fmt.Errorf("%w: converter built for %v, got %v", media.ErrUnsupportedFormat, c.format, raw.Format))
	}
	if err := raw.Validate(); err != nil {
		return err
	}
	if raw.Width != c.width || raw.Height != c.height || dst.Width != c.width || dst.Height != c.height {
		return fmt.Errorf("%w: swscale converter is fixed at %dx%d", media.ErrFrameSize, c.width, c.height)
	}

	src, srcStride := plane(c.srcFrame, 0, c.height)
	rowBytes := c.width * raw.Format.BytesPerPixel()
	for y := 0; y < c.height; y++ {
		copy(src[y*srcStride:y*srcStride+rowBytes], raw.Pix[y*raw.Stride:y*raw.Stride+rowBytes])
	}

	if _, err := ffmpeg.SwsScaleFrame(c.swsCtx, c.dstFrame, c.srcFrame); err != nil {
		return apperrors.Encode("convert", apperrors.NoFrame, fmt.Errorf("swscale failed: %w", err))
	}

	cw, ch := media.ChromaSize(c.width, c.height)
	rows := [3]int{c.height, ch, ch}
	widths := [3]int{c.width, cw, cw}
	for p := 0; p < 3; p++ {
		out, stride := plane(c.dstFrame, p, rows[p])
		for y := 0; y < rows[p]; y++ {
			copy(dst.Row(p, y), out[y*stride:y*stride+widths[p]])
		}
	}
	return nil
}

// Close implements media.Converter.
func (c *SwsConverter) Close() error {
	if c.srcFrame != nil {
		ffmpeg.AVFrameFree(&c.srcFrame)
	}
	if c.dstFrame != nil {
		ffmpeg.AVFrameFree(&c.dstFrame)
	}
	if c.swsCtx != nil {
		ffmpeg.SwsFreecontext(c.swsCtx)
		c.swsCtx = nil
	}
	return nil
}
