package encoder

import (
	"github.com/linuxmatters/lapse/internal/media"
)

// Writer appends encoded packets to the output file in the order it
// receives them. Writers never retain a packet past WritePacket.
type Writer interface {
	WritePacket(p *media.Packet) error
	// Finalize writes the end marker and closes the file.
	Finalize() error
	// Abort closes the file without an end marker. The partial file stays.
	Abort() error
}

// NewWriter opens path for the session's format. The file is created
// immediately so an unwritable path fails before capture starts.
func NewWriter(path string, s *Session) (Writer, error) {
	format := s.Settings().Format
	if format.Muxed {
		return NewMuxWriter(path, s)
	}
	return NewRawWriter(path, format.EndMarker)
}
