package encoder

import (
	"errors"
	"fmt"
	"sync"

	ffmpeg "github.com/linuxmatters/ffmpeg-statigo"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/media"
)

// MuxWriter writes packets into a container through libavformat. The
// container is chosen from the file name.
type MuxWriter struct {
	path      string
	formatCtx *ffmpeg.AVFormatContext
	stream    *ffmpeg.AVStream
	framerate int

	once sync.Once
}

// NewMuxWriter creates path and writes the container header for session s.
func NewMuxWriter(path string, s *Session) (*MuxWriter, error) {
	w := &MuxWriter{path: path, framerate: s.settings.Framerate}
	if err := w.open(s); err != nil {
		w.free()
		return nil, apperrors.Resource("open output", err)
	}
	return w, nil
}

func (w *MuxWriter) open(s *Session) error {
	outputPath := ffmpeg.ToCStr(w.path)
	defer outputPath.Free()

	ret, err := ffmpeg.AVFormatAllocOutputContext2(&w.formatCtx, nil, nil, outputPath)
	if err != nil {
		return fmt.Errorf("failed to allocate output context: %w", err)
	}
	if ret < 0 {
		return fmt.Errorf("failed to allocate output context: %d", ret)
	}

	w.stream = ffmpeg.AVFormatNewStream(w.formatCtx, nil)
	if w.stream == nil {
		return errors.New("failed to create video stream")
	}
	w.stream.SetId(0)
	w.stream.SetTimeBase(ffmpeg.AVMakeQ(1, w.framerate))

	ret, err = ffmpeg.AVCodecParametersFromContext(w.stream.Codecpar(), s.codecCtx)
	if err != nil {
		return fmt.Errorf("failed to copy codec parameters: %w", err)
	}
	if ret < 0 {
		return fmt.Errorf("failed to copy codec parameters: %d", ret)
	}

	var pb *ffmpeg.AVIOContext
	ret, err = ffmpeg.AVIOOpen(&pb, outputPath, ffmpeg.AVIOFlagWrite)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	if ret < 0 {
		return fmt.Errorf("failed to open output file: %d", ret)
	}
	w.formatCtx.SetPb(pb)

	// The muxer may replace the stream time base here.
	ret, err = ffmpeg.AVFormatWriteHeader(w.formatCtx, nil)
	if err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if ret < 0 {
		return fmt.Errorf("failed to write header: %d", ret)
	}
	return nil
}

// WritePacket implements Writer. Packets from Go memory are copied into a
// libav packet first.
func (w *MuxWriter) WritePacket(p *media.Packet) error {
	pkt, owned, err := w.avPacket(p)
	if err != nil {
		return apperrors.Encode("write", int(p.PTS), err)
	}
	if owned {
		defer ffmpeg.AVPacketFree(&pkt)
	}

	pkt.SetStreamIndex(w.stream.Index())
	ffmpeg.AVPacketRescaleTs(pkt, ffmpeg.AVMakeQ(1, w.framerate), w.stream.TimeBase())

	// The muxer takes the packet's buffer reference.
	ret, err := ffmpeg.AVInterleavedWriteFrame(w.formatCtx, pkt)
	p.Forget()
	if err != nil {
		return apperrors.Encode("write", int(p.PTS), fmt.Errorf("failed to write packet: %w", err))
	}
	if ret < 0 {
		return apperrors.Encode("write", int(p.PTS), fmt.Errorf("failed to write packet: %d", ret))
	}
	return nil
}

func (w *MuxWriter) avPacket(p *media.Packet) (*ffmpeg.AVPacket, bool, error) {
	if pkt, ok := p.Handle.(*ffmpeg.AVPacket); ok && pkt != nil {
		return pkt, false, nil
	}

	pkt := ffmpeg.AVPacketAlloc()
	if pkt == nil {
		return nil, false, errors.New("failed to allocate packet")
	}
	data := p.Bytes()
	if ret, err := ffmpeg.AVNewPacket(pkt, len(data)); err != nil || ret < 0 {
		ffmpeg.AVPacketFree(&pkt)
		return nil, false, fmt.Errorf("failed to allocate packet payload: %d %v", ret, err)
	}
	copy(packetBytes(pkt), data)
	pkt.SetPts(p.PTS)
	pkt.SetDts(p.DTS)
	if p.Key {
		pkt.SetFlags(pkt.Flags() | ffmpeg.AVPktFlagKey)
	}
	return pkt, true, nil
}

// Finalize implements Writer. It writes the container trailer.
func (w *MuxWriter) Finalize() error {
	err := fmt.Errorf("%w: output already closed", ErrSessionState)
	w.once.Do(func() {
		err = nil
		if _, terr := ffmpeg.AVWriteTrailer(w.formatCtx); terr != nil {
			err = apperrors.Encode("finalize", apperrors.NoFrame, fmt.Errorf("failed to write trailer: %w", terr))
		}
		w.free()
	})
	return err
}

// Abort implements Writer.
func (w *MuxWriter) Abort() error {
	err := fmt.Errorf("%w: output already closed", ErrSessionState)
	w.once.Do(func() {
		err = nil
		w.free()
	})
	return err
}

func (w *MuxWriter) free() {
	if w.formatCtx == nil {
		return
	}
	if w.formatCtx.Pb() != nil {
		ffmpeg.AVIOClose(w.formatCtx.Pb())
	}
	ffmpeg.AVFormatFreeContext(w.formatCtx)
	w.formatCtx = nil
}
