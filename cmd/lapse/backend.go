package main

import (
	"fmt"

	"github.com/linuxmatters/lapse/internal/capture"
	"github.com/linuxmatters/lapse/internal/encoder"
	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/media"
	"github.com/linuxmatters/lapse/internal/recorder"
)

// Converter names accepted by --converter
const (
	converterGo  = "go"
	converterSws = "swscale"
)

// ffmpegBackend opens libavcodec sessions and the matching writer.
type ffmpegBackend struct {
	output    string
	framerate int
	tuning    encoder.Tuning
	format    encoder.Format
	converter string

	// session is kept so the codec name can be reported once open.
	session *encoder.Session
}

func (b *ffmpegBackend) OpenSession(width, height int) (recorder.Session, error) {
	s, err := encoder.Open(encoder.Settings{
		Width:     width,
		Height:    height,
		Framerate: b.framerate,
		Tuning:    b.tuning,
		Format:    b.format,
	})
	if err != nil {
		return nil, err
	}
	b.session = s
	return s, nil
}

func (b *ffmpegBackend) OpenWriter(s recorder.Session) (recorder.Writer, error) {
	es, ok := s.(*encoder.Session)
	if !ok {
		return nil, apperrors.Resource("open output", fmt.Errorf("unexpected session type %T", s))
	}
	return encoder.NewWriter(b.output, es)
}

func (b *ffmpegBackend) NewConverter(width, height int, format capture.PixelFormat) (media.Converter, error) {
	switch b.converter {
	case converterSws:
		c, err := encoder.NewSwsConverter(width, height, format)
		if err != nil {
			return nil, err
		}
		return c, nil
	case converterGo, "":
		return media.NewGoConverter(), nil
	default:
		return nil, apperrors.Configurationf("unknown converter %q: use %s or %s", b.converter, converterGo, converterSws)
	}
}

// codecLine describes the open session for the TUI, e.g. "libx264 1920×1080 @ 15 fps".
func (b *ffmpegBackend) codecLine() string {
	if b.session == nil {
		return b.format.Name
	}
	st := b.session.Settings()
	return fmt.Sprintf("%s %d×%d @ %d fps", b.session.CodecName(), st.Width, st.Height, st.Framerate)
}
