package encoder

import (
	"errors"
	"fmt"
	"strconv"
	"unsafe"

	ffmpeg "github.com/linuxmatters/ffmpeg-statigo"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/media"
)

// Tuning holds the encoder parameters that stay fixed for a session.
type Tuning struct {
	Preset     string // x264 preset
	CRF        int    // x264 constant rate factor
	GOPSize    int    // frames between keyframes
	MaxBFrames int    // reordering depth
	Bitrate    int64  // bits per second, used by codecs without CRF
}

// DefaultTuning favours quality over encode speed; a timelapse has plenty of
// time between frames.
func DefaultTuning() Tuning {
	return Tuning{
		Preset:     "slow",
		CRF:        20,
		GOPSize:    10,
		MaxBFrames: 1,
		Bitrate:    4_000_000,
	}
}

// Settings configures Open.
type Settings struct {
	Width     int
	Height    int
	Framerate int
	Tuning    Tuning
	Format    Format
}

// Session owns one codec instance from open until close. It is not safe for
// concurrent use.
type Session struct {
	settings Settings
	codec    *ffmpeg.AVCodec
	codecCtx *ffmpeg.AVCodecContext

	frame *ffmpeg.AVFrame
	buf   *media.Frame

	state   state
	fed     bool
	lastPTS int64
}

// Open locates the encoder for settings.Format and opens it with the given
// resolution, framerate and tuning.
func Open(settings Settings) (*Session, error) {
	if settings.Width <= 0 || settings.Height <= 0 {
		return nil, apperrors.Configurationf("invalid dimensions: %dx%d", settings.Width, settings.Height)
	}
	if settings.Width%2 != 0 || settings.Height%2 != 0 {
		return nil, apperrors.Configurationf("dimensions must be even for yuv420p: %dx%d", settings.Width, settings.Height)
	}
	if settings.Framerate <= 0 {
		return nil, apperrors.Configurationf("invalid framerate: %d", settings.Framerate)
	}

	s := &Session{settings: settings}
	if err := s.open(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	cfg := s.settings

	s.codec = ffmpeg.AVCodecFindEncoder(cfg.Format.Codec)
	if s.codec == nil {
		return apperrors.Resource("encoder open", fmt.Errorf("no encoder for %s", cfg.Format.Name))
	}

	s.codecCtx = ffmpeg.AVCodecAllocContext3(s.codec)
	if s.codecCtx == nil {
		return apperrors.Resource("encoder open", errors.New("failed to allocate codec context"))
	}

	s.codecCtx.SetWidth(cfg.Width)
	s.codecCtx.SetHeight(cfg.Height)
	s.codecCtx.SetPixFmt(ffmpeg.AVPixFmtYuv420P)
	s.codecCtx.SetTimeBase(ffmpeg.AVMakeQ(1, cfg.Framerate))
	s.codecCtx.SetFramerate(ffmpeg.AVMakeQ(cfg.Framerate, 1))
	s.codecCtx.SetGopSize(cfg.Tuning.GOPSize)
	s.codecCtx.SetMaxBFrames(cfg.Tuning.MaxBFrames)

	// Containers carry SPS/PPS out of band; raw streams need them inline.
	if cfg.Format.Muxed {
		s.codecCtx.SetFlags(s.codecCtx.Flags() | ffmpeg.AVCodecFlagGlobalHeader)
	}

	opts, err := s.codecOptions()
	if err != nil {
		return err
	}
	defer ffmpeg.AVDictFree(&opts)

	ret, err := ffmpeg.AVCodecOpen2(s.codecCtx, s.codec, &opts)
	if err != nil {
		return apperrors.Resource("encoder open", fmt.Errorf("failed to open codec: %w", err))
	}
	if ret < 0 {
		return apperrors.Resource("encoder open", fmt.Errorf("failed to open codec: %d", ret))
	}

	s.frame = ffmpeg.AVFrameAlloc()
	if s.frame == nil {
		return apperrors.Resource("encoder open", errors.New("failed to allocate frame"))
	}
	s.frame.SetWidth(cfg.Width)
	s.frame.SetHeight(cfg.Height)
	s.frame.SetFormat(int(ffmpeg.AVPixFmtYuv420P))

	ret, err = ffmpeg.AVFrameGetBuffer(s.frame, 0)
	if err != nil {
		return apperrors.Resource("encoder open", fmt.Errorf("failed to allocate frame buffer: %w", err))
	}
	if ret < 0 {
		return apperrors.Resource("encoder open", fmt.Errorf("failed to allocate frame buffer: %d", ret))
	}

	s.buf = &media.Frame{Width: cfg.Width, Height: cfg.Height}
	s.refreshPlanes()

	return s.state.to(stateOpen)
}

// codecOptions builds the private options passed to avcodec_open2. Entries
// the chosen codec does not know are left unused.
func (s *Session) codecOptions() (*ffmpeg.AVDictionary, error) {
	t := s.settings.Tuning
	var opts *ffmpeg.AVDictionary

	set := func(key, value string) error {
		k := ffmpeg.ToCStr(key)
		defer k.Free()
		v := ffmpeg.ToCStr(value)
		defer v.Free()
		if _, err := ffmpeg.AVDictSet(&opts, k, v, 0); err != nil {
			return apperrors.Resource("encoder open", fmt.Errorf("failed to set %s=%s: %w", key, value, err))
		}
		return nil
	}

	switch s.settings.Format.Codec {
	case ffmpeg.AVCodecIdH264:
		if t.Preset != "" {
			if err := set("preset", t.Preset); err != nil {
				return opts, err
			}
		}
		if err := set("crf", strconv.Itoa(t.CRF)); err != nil {
			return opts, err
		}
	case ffmpeg.AVCodecIdMpeg1Video:
		s.codecCtx.SetBitRate(t.Bitrate)
		// Framerates such as 15 are outside the MPEG-1 table.
		if err := set("strict", "unofficial"); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// refreshPlanes points the Go frame view at the AVFrame's current buffers.
func (s *Session) refreshPlanes() {
	_, ch := media.ChromaSize(s.settings.Width, s.settings.Height)
	rows := [3]int{s.settings.Height, ch, ch}
	for i := 0; i < 3; i++ {
		s.buf.Planes[i], s.buf.Strides[i] = plane(s.frame, i, rows[i])
	}
}

// Settings returns the parameters the session was opened with.
func (s *Session) Settings() Settings {
	return s.settings
}

// CodecName returns the libavcodec encoder name, such as "libx264".
func (s *Session) CodecName() string {
	if s.codec == nil {
		return ""
	}
	return s.codec.Name().String()
}

// Frame returns the session's reusable frame buffer, writable until the
// next Feed. The plane slices may move between calls.
func (s *Session) Frame() (*media.Frame, error) {
	if err := s.state.require(stateOpen, "frame"); err != nil {
		return nil, err
	}
	if err := s.makeWritable(); err != nil {
		return nil, err
	}
	return s.buf, nil
}

func (s *Session) makeWritable() error {
	ret, err := ffmpeg.AVFrameMakeWritable(s.frame)
	if err != nil {
		return apperrors.Encode("frame buffer", apperrors.NoFrame, fmt.Errorf("failed to make frame writable: %w", err))
	}
	if ret < 0 {
		return apperrors.Encode("frame buffer", apperrors.NoFrame, fmt.Errorf("failed to make frame writable: %d", ret))
	}
	s.refreshPlanes()
	return nil
}

// Feed encodes f and returns the packets the codec emitted, possibly none.
// f is normally the buffer from Frame; any other frame is copied in.
// Timestamps must strictly increase; a repeat or regression panics.
func (s *Session) Feed(f *media.Frame) ([]*media.Packet, error) {
	if err := s.state.require(stateOpen, "feed"); err != nil {
		return nil, err
	}
	if s.fed && f.PTS <= s.lastPTS {
		panic(fmt.Sprintf("encoder: presentation timestamp %d after %d", f.PTS, s.lastPTS))
	}
	if f.Width != s.settings.Width || f.Height != s.settings.Height {
		return nil, apperrors.Encode("encode", int(f.PTS), fmt.Errorf("%w: %dx%d frame for %dx%d session",
			media.ErrFrameSize, f.Width, f.Height, s.settings.Width, s.settings.Height))
	}

	if f != s.buf {
		if err := s.makeWritable(); err != nil {
			return nil, err
		}
		copyFrame(s.buf, f)
	}

	s.frame.SetPts(f.PTS)
	s.fed = true
	s.lastPTS = f.PTS

	ret, err := ffmpeg.AVCodecSendFrame(s.codecCtx, s.frame)
	if err != nil {
		return nil, apperrors.Encode("encode", int(f.PTS), fmt.Errorf("failed to send frame to encoder: %w", err))
	}
	if ret < 0 {
		return nil, apperrors.Encode("encode", int(f.PTS), fmt.Errorf("failed to send frame to encoder: %d", ret))
	}

	packets, _, err := s.receive()
	if err != nil {
		return nil, apperrors.Encode("encode", int(f.PTS), err)
	}
	return packets, nil
}

// Drain flushes the codec and returns every packet it was still holding.
// The session is closed to new frames afterwards; a second Drain returns
// nothing.
func (s *Session) Drain() ([]*media.Packet, error) {
	if s.state == stateClosed {
		return nil, nil
	}
	if err := s.state.to(stateDraining); err != nil {
		return nil, err
	}

	// A nil frame enters draining mode.
	ret, err := ffmpeg.AVCodecSendFrame(s.codecCtx, nil)
	if err != nil {
		return nil, apperrors.Encode("drain", apperrors.NoFrame, fmt.Errorf("failed to flush encoder: %w", err))
	}
	if ret < 0 {
		return nil, apperrors.Encode("drain", apperrors.NoFrame, fmt.Errorf("failed to flush encoder: %d", ret))
	}

	var all []*media.Packet
	for {
		packets, eof, err := s.receive()
		all = append(all, packets...)
		if err != nil {
			releaseAll(all)
			return nil, apperrors.Encode("drain", apperrors.NoFrame, err)
		}
		if eof {
			break
		}
	}

	if err := s.state.to(stateClosed); err != nil {
		releaseAll(all)
		return nil, err
	}
	return all, nil
}

// receive pulls packets until the codec wants more input or reports EOF.
func (s *Session) receive() ([]*media.Packet, bool, error) {
	var packets []*media.Packet
	for {
		pkt := ffmpeg.AVPacketAlloc()
		if pkt == nil {
			releaseAll(packets)
			return nil, false, errors.New("failed to allocate packet")
		}

		_, err := ffmpeg.AVCodecReceivePacket(s.codecCtx, pkt)
		if errors.Is(err, ffmpeg.EAgain) {
			ffmpeg.AVPacketFree(&pkt)
			return packets, false, nil
		}
		if errors.Is(err, ffmpeg.AVErrorEOF) {
			ffmpeg.AVPacketFree(&pkt)
			return packets, true, nil
		}
		if err != nil {
			ffmpeg.AVPacketFree(&pkt)
			releaseAll(packets)
			return nil, false, fmt.Errorf("failed to receive packet: %w", err)
		}

		packets = append(packets, wrapPacket(pkt))
	}
}

func packetBytes(pkt *ffmpeg.AVPacket) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(pkt.Data())), pkt.Size())
}

func wrapPacket(pkt *ffmpeg.AVPacket) *media.Packet {
	data := packetBytes(pkt)
	key := pkt.Flags()&ffmpeg.AVPktFlagKey != 0
	p := media.NewPacket(data, pkt.Pts(), pkt.Dts(), key, func() {
		ffmpeg.AVPacketFree(&pkt)
	})
	p.Handle = pkt
	return p
}

func releaseAll(packets []*media.Packet) {
	for _, p := range packets {
		p.Release()
	}
}

func copyFrame(dst, src *media.Frame) {
	cw, ch := media.ChromaSize(dst.Width, dst.Height)
	rows := [3]int{dst.Height, ch, ch}
	widths := [3]int{dst.Width, cw, cw}
	for p := 0; p < 3; p++ {
		for y := 0; y < rows[p]; y++ {
			d := dst.Planes[p][y*dst.Strides[p]:]
			s := src.Planes[p][y*src.Strides[p]:]
			copy(d[:widths[p]], s[:widths[p]])
		}
	}
}

// Close releases the codec. It is safe to call more than once, and on a
// session that was never drained.
func (s *Session) Close() error {
	if s.state != stateClosed {
		_ = s.state.to(stateClosed)
	}
	if s.frame != nil {
		ffmpeg.AVFrameFree(&s.frame)
		s.frame = nil
	}
	if s.codecCtx != nil {
		ffmpeg.AVCodecFreeContext(&s.codecCtx)
		s.codecCtx = nil
	}
	s.buf = nil
	return nil
}
