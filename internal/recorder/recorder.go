// Package recorder drives the capture loop: wait, capture, convert, encode,
// write, and always finalize.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/linuxmatters/lapse/internal/capture"
	"github.com/linuxmatters/lapse/internal/config"
	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/media"
)

// Session is the encoder side of one recording.
type Session interface {
	Frame() (*media.Frame, error)
	Feed(f *media.Frame) ([]*media.Packet, error)
	Drain() ([]*media.Packet, error)
	Close() error
}

// Writer appends packets to the output and terminates it.
type Writer interface {
	WritePacket(p *media.Packet) error
	Finalize() error
	Abort() error
}

// Backend opens the encode side once the capture size is known.
type Backend interface {
	OpenSession(width, height int) (Session, error)
	OpenWriter(s Session) (Writer, error)
	NewConverter(width, height int, format capture.PixelFormat) (media.Converter, error)
}

// FrameHook sees each raw frame before it is released. index is the frame's
// presentation timestamp.
type FrameHook func(raw *capture.RawFrame, index int)

// Progress is reported after every completed cycle.
type Progress struct {
	Frames      int // frames encoded so far
	Limit       int // zero when unbounded
	Packets     int
	Bytes       int64
	Width       int
	Height      int
	Elapsed     time.Duration
	CaptureTime time.Duration // time spent in the last capture call
	EncodeTime  time.Duration // convert, feed and write for the last frame
	NextCapture time.Time
}

// Result summarises a finished run.
type Result struct {
	Frames    int
	Packets   int
	Bytes     int64
	Width     int
	Height    int
	Cancelled bool // stopped by the context rather than the frame limit
	Truncated bool // output closed without a valid end marker
	Elapsed   time.Duration
}

// Recorder records Source into the Backend. Run owns Source and closes it.
type Recorder struct {
	Config  config.CaptureConfig
	Source  capture.Source
	Backend Backend
	Log     logrus.FieldLogger

	// Pipeline captures the next frame while the current one encodes.
	Pipeline bool

	// Overlay may draw on the raw frame before conversion.
	Overlay FrameHook
	// Inspect reads the raw frame after conversion, before release.
	Inspect FrameHook
	// OnProgress runs on the encoding goroutine after each cycle.
	OnProgress func(Progress)
}

// run holds the per-run state shared by the loop helpers.
type run struct {
	*Recorder
	log     logrus.FieldLogger
	start   time.Time
	session Session
	writer  Writer
	conv    media.Converter
	res     Result

	writerBroken bool
}

// Run records until the frame limit is reached, the context is cancelled or
// a stage fails. The output is finalized on every path that still has a
// working encoder; the frame count is returned alongside any error.
// Cancellation is not an error.
func (r *Recorder) Run(ctx context.Context) (res Result, err error) {
	rn := &run{Recorder: r, log: r.Log, start: time.Now()}
	if rn.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		rn.log = l
	}
	defer func() {
		rn.res.Elapsed = time.Since(rn.start)
		res = rn.res
	}()

	// Acquired in order: source (by the caller), session, writer, converter.
	// Released in reverse on every path.
	var teardown []error
	defer func() {
		if rn.conv != nil {
			teardown = append(teardown, rn.conv.Close())
		}
		if rn.session != nil {
			teardown = append(teardown, rn.session.Close())
		}
		teardown = append(teardown, r.Source.Close())
		err = combine(err, teardown...)
	}()

	if err := r.Config.Validate(); err != nil {
		return rn.res, err
	}

	w, h := r.Source.Size()
	w, h = config.AlignDown(w), config.AlignDown(h)
	if w <= 0 || h <= 0 {
		return rn.res, apperrors.Resource("capture setup", fmt.Errorf("%w: source reports %dx%d", capture.ErrNoDisplay, w, h))
	}
	rn.res.Width, rn.res.Height = w, h

	rn.session, err = r.Backend.OpenSession(w, h)
	if err != nil {
		return rn.res, err
	}
	rn.writer, err = r.Backend.OpenWriter(rn.session)
	if err != nil {
		return rn.res, err
	}

	rn.log.WithFields(logrus.Fields{
		"width":     w,
		"height":    h,
		"frames":    r.Config.FrameLimit,
		"delay":     r.Config.Delay,
		"framerate": r.Config.Framerate,
		"output":    r.Config.OutputPath,
	}).Info("Recording started")

	loopErr := rn.loop(ctx)
	if loopErr == nil && ctx.Err() != nil {
		rn.res.Cancelled = true
	}

	finishErr := rn.finish()
	if loopErr == nil {
		return rn.res, finishErr
	}
	return rn.res, combine(loopErr, finishErr)
}

// loop runs capture cycles until the limit, cancellation or a failure.
func (rn *run) loop(ctx context.Context) error {
	next, stop := rn.frames(ctx)
	defer stop()

	for {
		// Checked before taking the next frame: a frame handed over before
		// the cancellation is still encoded, one held ahead is released by stop.
		if ctx.Err() != nil {
			return nil
		}
		c, ok := next()
		if !ok {
			return nil
		}
		if c.err != nil {
			rn.log.WithFields(logrus.Fields{"frame": c.index, "stage": "capture"}).WithError(c.err).Error("Capture failed")
			return apperrors.Capture(c.index, c.err)
		}
		if err := rn.encode(c); err != nil {
			return err
		}
	}
}

// encode converts, feeds and writes one captured frame.
func (rn *run) encode(c captured) error {
	began := time.Now()
	index := c.index
	raw := c.raw
	defer raw.Release()

	if rn.conv == nil {
		conv, err := rn.Backend.NewConverter(rn.res.Width, rn.res.Height, raw.Format)
		if err != nil {
			return atFrame(err, index, "convert")
		}
		rn.conv = conv
	}

	frame, err := rn.session.Frame()
	if err != nil {
		return atFrame(err, index, "frame buffer")
	}

	if rn.Overlay != nil {
		rn.Overlay(raw, index)
	}
	if err := rn.conv.Convert(raw, frame); err != nil {
		return atFrame(err, index, "convert")
	}
	if rn.Inspect != nil {
		rn.Inspect(raw, index)
	}
	raw.Release()

	frame.PTS = int64(index)
	packets, err := rn.session.Feed(frame)
	if err != nil {
		return atFrame(err, index, "encode")
	}
	if err := rn.write(packets, index); err != nil {
		return err
	}

	rn.res.Frames++
	if rn.OnProgress != nil {
		p := Progress{
			Frames:      rn.res.Frames,
			Limit:       rn.Config.FrameLimit,
			Packets:     rn.res.Packets,
			Bytes:       rn.res.Bytes,
			Width:       rn.res.Width,
			Height:      rn.res.Height,
			Elapsed:     time.Since(rn.start),
			CaptureTime: c.took,
			EncodeTime:  time.Since(began),
		}
		if rn.Config.Unbounded() || rn.res.Frames < rn.Config.FrameLimit {
			p.NextCapture = time.Now().Add(rn.Config.Delay)
		}
		rn.OnProgress(p)
	}

	rn.log.WithFields(logrus.Fields{
		"frame":   index,
		"packets": len(packets),
		"bytes":   rn.res.Bytes,
	}).Debug("Frame encoded")
	return nil
}

// write hands packets to the writer in emission order and releases every
// one of them, including those after a failed write.
func (rn *run) write(packets []*media.Packet, index int) error {
	var err error
	for _, p := range packets {
		if err == nil {
			size := p.Size()
			if err = rn.writer.WritePacket(p); err == nil {
				rn.res.Packets++
				rn.res.Bytes += int64(size)
			}
		}
		p.Release()
	}
	if err != nil {
		rn.writerBroken = true
		rn.log.WithFields(logrus.Fields{"frame": index, "stage": "write"}).WithError(err).Error("Write failed")
		return atFrame(err, index, "write")
	}
	return nil
}

// finish drains the session and terminates the output. When the encoder or
// the writer cannot finish, the file is closed without its end marker and
// the result is marked truncated.
func (rn *run) finish() error {
	if rn.writerBroken {
		rn.res.Truncated = true
		return rn.writer.Abort()
	}

	packets, err := rn.session.Drain()
	if err != nil {
		rn.res.Truncated = true
		rn.log.WithField("stage", "drain").WithError(err).Error("Encoder could not be drained, output may be truncated")
		return combine(err, rn.writer.Abort())
	}
	if err := rn.write(packets, apperrors.NoFrame); err != nil {
		rn.res.Truncated = true
		return combine(err, rn.writer.Abort())
	}

	if err := rn.writer.Finalize(); err != nil {
		rn.res.Truncated = true
		return err
	}

	rn.log.WithFields(logrus.Fields{
		"frames":  rn.res.Frames,
		"packets": rn.res.Packets,
		"bytes":   rn.res.Bytes,
	}).Info("Recording finalized")
	return nil
}

// atFrame stamps err with the frame index, keeping its kind when it
// already has one.
func atFrame(err error, index int, stage string) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		if appErr.Frame == apperrors.NoFrame {
			return appErr.AtFrame(index)
		}
		return err
	}
	return apperrors.Encode(stage, index, err)
}

// combine attaches teardown failures to primary without hiding it.
func combine(primary error, teardown ...error) error {
	var rest *multierror.Error
	rest = multierror.Append(rest, teardown...)
	if rest.ErrorOrNil() == nil {
		return primary
	}
	if primary == nil {
		if len(rest.Errors) == 1 {
			return rest.Errors[0]
		}
		return rest
	}
	return multierror.Append(primary, rest.Errors...)
}
