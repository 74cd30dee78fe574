package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/linuxmatters/lapse/internal/capture"
	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/media"
)

var (
	errDisplayGone = errors.New("display gone")
	errDiskFull    = errors.New("no space left on device")
	errCodec       = errors.New("codec exploded")
)

// fakeSource hands out small RGB24 frames and counts releases.
type fakeSource struct {
	mu       sync.Mutex
	width    int
	height   int
	captures int
	released int
	closed   int

	failAt    int // 1-based capture call that fails, 0 never
	onCapture func(n int)
}

func newFakeSource() *fakeSource {
	return &fakeSource{width: 8, height: 6}
}

func (s *fakeSource) Size() (int, int) { return s.width, s.height }

func (s *fakeSource) Capture(ctx context.Context) (*capture.RawFrame, error) {
	s.mu.Lock()
	s.captures++
	n := s.captures
	s.mu.Unlock()

	if s.onCapture != nil {
		s.onCapture(n)
	}
	if s.failAt > 0 && n == s.failAt {
		return nil, errDisplayGone
	}

	pix := make([]byte, s.width*s.height*3)
	for i := range pix {
		pix[i] = byte(n)
	}
	return capture.NewRawFrame(s.width, s.height, s.width*3, capture.RGB24, pix, func() {
		s.mu.Lock()
		s.released++
		s.mu.Unlock()
	}), nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) counts() (captures, released, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures, s.released, s.closed
}

// fakeSession emits the packet for frame i only after frame i+delay has
// been fed, like an encoder holding frames for reordering.
type fakeSession struct {
	width, height int
	delay         int

	buf     *media.Frame
	pts     []int64
	pending []int64
	drains  int
	drained bool
	closed  int

	failFeedAt  int64 // PTS whose Feed fails, -1 never
	failDrain   bool
	outstanding int // packets handed out and not yet released
}

func newFakeSession(w, h, delay int) *fakeSession {
	return &fakeSession{width: w, height: h, delay: delay, buf: media.NewFrame(w, h), failFeedAt: -1}
}

func (s *fakeSession) Frame() (*media.Frame, error) {
	if s.drained {
		return nil, errors.New("frame after drain")
	}
	return s.buf, nil
}

func (s *fakeSession) packet(pts int64) *media.Packet {
	s.outstanding++
	data := []byte(fmt.Sprintf("frame-%d;", pts))
	return media.NewPacket(data, pts, pts, pts == 0, func() { s.outstanding-- })
}

func (s *fakeSession) Feed(f *media.Frame) ([]*media.Packet, error) {
	if s.drained {
		return nil, errors.New("feed after drain")
	}
	if len(s.pts) > 0 && f.PTS <= s.pts[len(s.pts)-1] {
		panic("non-increasing pts")
	}
	if f.PTS == s.failFeedAt {
		return nil, errCodec
	}
	s.pts = append(s.pts, f.PTS)
	s.pending = append(s.pending, f.PTS)

	var out []*media.Packet
	for len(s.pending) > s.delay {
		out = append(out, s.packet(s.pending[0]))
		s.pending = s.pending[1:]
	}
	return out, nil
}

func (s *fakeSession) Drain() ([]*media.Packet, error) {
	s.drains++
	if s.drained {
		return nil, nil
	}
	if s.failDrain {
		return nil, errCodec
	}
	s.drained = true
	var out []*media.Packet
	for _, pts := range s.pending {
		out = append(out, s.packet(pts))
	}
	s.pending = nil
	return out, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

// fakeWriter records payloads in arrival order.
type fakeWriter struct {
	data      []byte
	packets   int
	finalized int
	aborted   int

	failAt int // 1-based packet that fails, 0 never
}

const endMarker = "END"

func (w *fakeWriter) WritePacket(p *media.Packet) error {
	if w.finalized > 0 || w.aborted > 0 {
		return errors.New("write after close")
	}
	if w.failAt > 0 && w.packets+1 == w.failAt {
		return errDiskFull
	}
	w.packets++
	w.data = append(w.data, p.Bytes()...)
	return nil
}

func (w *fakeWriter) Finalize() error {
	w.finalized++
	w.data = append(w.data, endMarker...)
	return nil
}

func (w *fakeWriter) Abort() error {
	w.aborted++
	return nil
}

// fakeBackend wires the fakes together and records the open order.
type fakeBackend struct {
	session *fakeSession
	writer  *fakeWriter
	conv    *countingConverter

	sessionErr error
	writerErr  error
	order      []string
}

func newFakeBackend(delay int) *fakeBackend {
	return &fakeBackend{
		session: newFakeSession(8, 6, delay),
		writer:  &fakeWriter{},
		conv:    &countingConverter{Converter: media.NewGoConverter()},
	}
}

func (b *fakeBackend) OpenSession(width, height int) (Session, error) {
	b.order = append(b.order, "session")
	if b.sessionErr != nil {
		return nil, b.sessionErr
	}
	b.session.width, b.session.height = width, height
	return b.session, nil
}

func (b *fakeBackend) OpenWriter(s Session) (Writer, error) {
	b.order = append(b.order, "writer")
	if b.writerErr != nil {
		return nil, b.writerErr
	}
	return b.writer, nil
}

func (b *fakeBackend) NewConverter(width, height int, format capture.PixelFormat) (media.Converter, error) {
	b.order = append(b.order, "converter")
	return b.conv, nil
}

type countingConverter struct {
	media.Converter
	converts int
	closed   int

	failAt int // 1-based convert call that fails, 0 never
}

// Convert fails like the swscale converter: an encode error with no frame
// index, left for the recorder to stamp.
func (c *countingConverter) Convert(raw *capture.RawFrame, dst *media.Frame) error {
	c.converts++
	if c.failAt > 0 && c.converts == c.failAt {
		return apperrors.Encode("convert", apperrors.NoFrame, errCodec)
	}
	return c.Converter.Convert(raw, dst)
}

func (c *countingConverter) Close() error {
	c.closed++
	return nil
}
