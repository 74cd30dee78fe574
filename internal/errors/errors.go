package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindConfiguration covers bad CLI values and unsupported format pairs.
	// Nothing is recorded.
	KindConfiguration Kind = "configuration error"
	// KindResource covers a display, codec context or output file that cannot
	// be acquired during setup.
	KindResource Kind = "resource unavailable"
	// KindCapture is a mid-run Frame Source failure. The output is finalized
	// up to the last good frame.
	KindCapture Kind = "capture failure"
	// KindEncode is a mid-run codec or write failure.
	KindEncode Kind = "encode failure"
)

// NoFrame marks an error that is not tied to a capture cycle.
const NoFrame = -1

// Error is a pipeline error with enough context to report precisely where it
// happened.
type Error struct {
	Kind  Kind
	Stage string // e.g. "capture", "convert", "feed", "drain", "write"
	Frame int    // capture cycle index, or NoFrame
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg += " during " + e.Stage
	}
	if e.Frame != NoFrame {
		msg += fmt.Sprintf(" at frame %d", e.Frame)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// AtFrame returns a copy of e tagged with a capture cycle index.
func (e *Error) AtFrame(frame int) *Error {
	c := *e
	c.Frame = frame
	return &c
}

// New creates an Error of the given kind.
func New(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Frame: NoFrame, Err: err}
}

// Configuration wraps err as a configuration error.
func Configuration(err error) *Error {
	return New(KindConfiguration, "", err)
}

// Configurationf formats a configuration error.
func Configurationf(format string, args ...any) *Error {
	return Configuration(fmt.Errorf(format, args...))
}

// Resource wraps err as a setup failure for stage.
func Resource(stage string, err error) *Error {
	return New(KindResource, stage, err)
}

// Capture wraps err as a capture failure at frame.
func Capture(frame int, err error) *Error {
	return New(KindCapture, "capture", err).AtFrame(frame)
}

// Encode wraps err as an encode failure for stage at frame.
func Encode(stage string, frame int, err error) *Error {
	return New(KindEncode, stage, err).AtFrame(frame)
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return Is(err, KindConfiguration) }

// IsCapture reports whether err is a capture failure.
func IsCapture(err error) bool { return Is(err, KindCapture) }

// IsEncode reports whether err is an encode failure.
func IsEncode(err error) bool { return Is(err, KindEncode) }
