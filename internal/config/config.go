package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
)

// Capture defaults
const (
	DefaultFrames    = 0 // 0 means record until interrupted
	DefaultDelay     = time.Second
	DefaultFramerate = 15
)

// Output naming
const (
	DefaultOutputBase = "timelapse"
	DefaultOutputExt  = ".mp4"

	// MaxNameAttempts bounds the search for a free default output name
	MaxNameAttempts = 10000
)

// Alignment is the dimension multiple the YUV420P codecs require
const Alignment = 2

// Encoder tuning defaults, as used by the original tl recorder
const (
	DefaultPreset     = "slow"
	DefaultCRF        = 20
	DefaultGOPSize    = 10 // one intra frame every ten frames
	DefaultMaxBFrames = 1
	DefaultBitrate    = 4_000_000 // bits/s, MPEG-1 only
)

// Thumbnail width in pixels
const ThumbnailWidth = 640

// DefaultConfigFile is read when present and --config is not given
const DefaultConfigFile = "~/.config/lapse/config.yaml"

// CaptureConfig is the immutable per-run configuration.
type CaptureConfig struct {
	FrameLimit int           // 0 = unbounded
	Delay      time.Duration // wall-clock delay between captures
	Framerate  int           // playback rate of the encoded video
	OutputPath string
	Display    string
}

// maxDelaySeconds is the longest delay a time.Duration can hold.
const maxDelaySeconds = float64(math.MaxInt64) / float64(time.Second)

// New builds a validated CaptureConfig. delaySeconds is converted to a
// duration; NaN, infinities and delays past the time.Duration range are
// rejected.
func New(frames int, delaySeconds float64, framerate int, output, display string) (CaptureConfig, error) {
	if math.IsNaN(delaySeconds) || math.IsInf(delaySeconds, 0) || delaySeconds >= maxDelaySeconds {
		return CaptureConfig{}, apperrors.Configurationf("'%v' is not a valid delay interval", delaySeconds)
	}

	cfg := CaptureConfig{
		FrameLimit: frames,
		Delay:      time.Duration(delaySeconds * float64(time.Second)),
		Framerate:  framerate,
		OutputPath: output,
		Display:    display,
	}
	if err := cfg.Validate(); err != nil {
		return CaptureConfig{}, err
	}
	return cfg, nil
}

// Validate checks the invariants of a CaptureConfig.
func (c CaptureConfig) Validate() error {
	var errs []error
	if c.FrameLimit < 0 {
		errs = append(errs, fmt.Errorf("'%d' is not a valid number of frames", c.FrameLimit))
	}
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("'%v' is not a valid delay interval", c.Delay))
	}
	if c.Framerate <= 0 {
		errs = append(errs, fmt.Errorf("'%d' is not a valid framerate", c.Framerate))
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("output path cannot be empty"))
	}
	if c.Display == "" {
		errs = append(errs, errors.New("display cannot be empty"))
	}
	if len(errs) > 0 {
		return apperrors.Configuration(errors.Join(errs...))
	}
	return nil
}

// Unbounded reports whether the run only stops on cancellation.
func (c CaptureConfig) Unbounded() bool {
	return c.FrameLimit == 0
}

// PlaybackDuration is the length of a video holding frames frames.
func (c CaptureConfig) PlaybackDuration(frames int) time.Duration {
	if c.Framerate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(c.Framerate)
}

// AlignDown rounds n down to the codec alignment.
func AlignDown(n int) int {
	return n &^ (Alignment - 1)
}

// DefaultDisplay returns the platform's primary display identifier.
// On X11 systems that is $DISPLAY (falling back to ":0"); elsewhere the
// first screen index.
func DefaultDisplay() string {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		if d := os.Getenv("DISPLAY"); d != "" {
			return d
		}
		return ":0"
	default:
		return "0"
	}
}
