package encoder

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/media"
)

// RawWriter writes an elementary stream: packet payloads back to back, then
// an end marker.
type RawWriter struct {
	path   string
	marker []byte

	file *os.File
	w    *bufio.Writer

	once sync.Once
}

// NewRawWriter creates path, truncating any existing file.
func NewRawWriter(path string, marker []byte) (*RawWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, apperrors.Resource("open output", err)
	}
	return &RawWriter{
		path:   path,
		marker: marker,
		file:   f,
		w:      bufio.NewWriterSize(f, 1<<20),
	}, nil
}

// WritePacket implements Writer.
func (w *RawWriter) WritePacket(p *media.Packet) error {
	if _, err := w.w.Write(p.Bytes()); err != nil {
		return apperrors.Encode("write", int(p.PTS), fmt.Errorf("write %s: %w", w.path, err))
	}
	return nil
}

// Finalize implements Writer.
func (w *RawWriter) Finalize() error {
	return w.close(true)
}

// Abort implements Writer.
func (w *RawWriter) Abort() error {
	return w.close(false)
}

func (w *RawWriter) close(marker bool) error {
	err := fmt.Errorf("%w: output already closed", ErrSessionState)
	w.once.Do(func() {
		err = nil
		if marker && len(w.marker) > 0 {
			if _, werr := w.w.Write(w.marker); werr != nil {
				err = werr
			}
		}
		if ferr := w.w.Flush(); ferr != nil && err == nil {
			err = ferr
		}
		if cerr := w.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			err = apperrors.Encode("finalize", apperrors.NoFrame, fmt.Errorf("close %s: %w", w.path, err))
		}
	})
	return err
}
