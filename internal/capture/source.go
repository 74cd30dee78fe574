package capture

import (
	"context"
	"errors"
)

// ErrNoDisplay is returned when the requested display cannot be found.
var ErrNoDisplay = errors.New("display not available")

// Source produces raw frames on demand.
//
// Capture is safe to call repeatedly at arbitrary intervals. A failure means
// the display or session is gone and is not worth retrying.
type Source interface {
	// Size is the resolution every captured frame will have.
	Size() (width, height int)
	Capture(ctx context.Context) (*RawFrame, error)
	Close() error
}
