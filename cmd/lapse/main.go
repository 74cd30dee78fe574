package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/linuxmatters/lapse/internal/capture"
	"github.com/linuxmatters/lapse/internal/cli"
	"github.com/linuxmatters/lapse/internal/config"
	"github.com/linuxmatters/lapse/internal/encoder"
	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/logging"
	"github.com/linuxmatters/lapse/internal/metrics"
	"github.com/linuxmatters/lapse/internal/recorder"
	"github.com/linuxmatters/lapse/internal/renderer"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "v0.1.0")
var version = "dev"

// Exit codes
const (
	exitOK            = 0
	exitFailure       = 1 // capture or encode failed mid-run
	exitConfiguration = 2
	exitResource      = 3
)

// CLI is the command line. Every flag can also come from LAPSE_<NAME> or
// the YAML config file.
type CLI struct {
	Frames    int     `short:"f" help:"Frames to capture, 0 records until interrupted" default:"${frames}" env:"LAPSE_FRAMES" group:"capture"`
	Delay     float64 `short:"d" help:"Seconds between captures" default:"${delay}" env:"LAPSE_DELAY" group:"capture"`
	Framerate int     `short:"r" help:"Playback framerate of the video" default:"${framerate}" env:"LAPSE_FRAMERATE" group:"capture"`
	Output    string  `short:"o" help:"Output file, the extension picks the format (.mp4 .mov .mkv .mpg .h264)" placeholder:"FILE" env:"LAPSE_OUTPUT" group:"capture"`
	Display   string  `short:"D" help:"Display to capture: an X display (:0), a screen index (1) or both (:0@1)" placeholder:"ID" env:"LAPSE_DISPLAY" group:"capture"`

	Config kong.ConfigFlag `help:"YAML config file" placeholder:"FILE" env:"LAPSE_CONFIG"`

	Preset     string `help:"x264 preset" default:"${preset}" env:"LAPSE_PRESET" group:"encoding"`
	CRF        int    `name:"crf" help:"x264 constant rate factor, 0 to 51" default:"${crf}" env:"LAPSE_CRF" group:"encoding"`
	GOP        int    `name:"gop" help:"Frames between keyframes" default:"${gop}" env:"LAPSE_GOP" group:"encoding"`
	MaxBFrames int    `name:"max-b-frames" help:"Maximum consecutive B-frames" default:"${bframes}" env:"LAPSE_MAX_B_FRAMES" group:"encoding"`
	Bitrate    int64  `help:"MPEG-1 bitrate in bits/s" default:"${bitrate}" env:"LAPSE_BITRATE" group:"encoding"`
	Converter  string `help:"Colour converter: go or swscale" enum:"go,swscale" default:"go" env:"LAPSE_CONVERTER" group:"encoding"`
	Pipeline   bool   `help:"Capture the next frame while the current one encodes" env:"LAPSE_PIPELINE" group:"encoding"`

	Stamp     bool `help:"Burn the capture time into each frame" env:"LAPSE_STAMP" group:"output"`
	Thumbnail bool `help:"Write a PNG poster of the last frame next to the video" env:"LAPSE_THUMBNAIL" group:"output"`

	NoTUI       bool   `name:"no-tui" help:"Plain log output instead of the terminal UI" env:"LAPSE_NO_TUI" group:"output"`
	NoPreview   bool   `help:"Disable the frame preview in the terminal UI" env:"LAPSE_NO_PREVIEW" group:"output"`
	LogLevel    string `help:"Log level: debug, info, warn or error" enum:"debug,info,warn,error" default:"info" env:"LAPSE_LOG_LEVEL" group:"logging"`
	LogFormat   string `help:"Log format: text or json" enum:"text,json" default:"text" env:"LAPSE_LOG_FORMAT" group:"logging"`
	LogFile     string `help:"Write logs to a rotated file" placeholder:"FILE" env:"LAPSE_LOG_FILE" group:"logging"`
	MetricsAddr string `help:"Serve /metrics and /status on this address" placeholder:"HOST:PORT" env:"LAPSE_METRICS_ADDR" group:"output"`

	Version bool `help:"Show version information"`
}

// defaults feeds the built-in defaults into the struct tags.
func defaults() kong.Vars {
	return kong.Vars{
		"version":   version,
		"frames":    strconv.Itoa(config.DefaultFrames),
		"delay":     strconv.FormatFloat(config.DefaultDelay.Seconds(), 'f', -1, 64),
		"framerate": strconv.Itoa(config.DefaultFramerate),
		"preset":    config.DefaultPreset,
		"crf":       strconv.Itoa(config.DefaultCRF),
		"gop":       strconv.Itoa(config.DefaultGOPSize),
		"bframes":   strconv.Itoa(config.DefaultMaxBFrames),
		"bitrate":   strconv.Itoa(config.DefaultBitrate),
	}
}

func newParser(c *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("lapse"),
		kong.Description(cli.Tagline),
		defaults(),
		kong.Configuration(config.FileLoader, config.DefaultConfigFile),
		kong.ExplicitGroups([]kong.Group{
			{Key: "capture", Title: "Capture"},
			{Key: "encoding", Title: "Encoding"},
			{Key: "output", Title: "Output"},
			{Key: "logging", Title: "Logging"},
		}),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	}, options...)
	return kong.New(c, options...)
}

func main() {
	var c CLI
	parser, err := newParser(&c)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(exitFailure)
	}
	// Help exits 0 from inside Parse; bad values exit 1 with usage.
	_, err = parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if c.Version {
		cli.PrintVersion(version)
		os.Exit(exitOK)
	}

	os.Exit(execute(&c))
}

// tuning validates the encoder flags.
func (c *CLI) tuning() (encoder.Tuning, error) {
	var errs []error
	if c.CRF < 0 || c.CRF > 51 {
		errs = append(errs, fmt.Errorf("'%d' is not a valid crf, use 0 to 51", c.CRF))
	}
	if c.GOP <= 0 {
		errs = append(errs, fmt.Errorf("'%d' is not a valid keyframe interval", c.GOP))
	}
	if c.MaxBFrames < 0 {
		errs = append(errs, fmt.Errorf("'%d' is not a valid B-frame count", c.MaxBFrames))
	}
	if c.Bitrate <= 0 {
		errs = append(errs, fmt.Errorf("'%d' is not a valid bitrate", c.Bitrate))
	}
	if c.Preset == "" {
		errs = append(errs, errors.New("preset cannot be empty"))
	}
	if len(errs) > 0 {
		return encoder.Tuning{}, apperrors.Configuration(errors.Join(errs...))
	}
	return encoder.Tuning{
		Preset:     c.Preset,
		CRF:        c.CRF,
		GOPSize:    c.GOP,
		MaxBFrames: c.MaxBFrames,
		Bitrate:    c.Bitrate,
	}, nil
}

// plan is everything resolved from the flags before any resource is opened.
type plan struct {
	cfg    config.CaptureConfig
	format encoder.Format
	tuning encoder.Tuning
}

func (c *CLI) plan() (plan, error) {
	output := c.Output
	if output == "" {
		var err error
		if output, err = config.DefaultOutputPath("."); err != nil {
			return plan{}, err
		}
	}
	display := c.Display
	if display == "" {
		display = config.DefaultDisplay()
	}

	// Reject an unsupported extension before touching the display.
	format, err := encoder.FormatForPath(output)
	if err != nil {
		return plan{}, err
	}
	cfg, err := config.New(c.Frames, c.Delay, c.Framerate, output, display)
	if err != nil {
		return plan{}, err
	}
	tuning, err := c.tuning()
	if err != nil {
		return plan{}, err
	}
	return plan{cfg: cfg, format: format, tuning: tuning}, nil
}

func (c *CLI) useTUI() bool {
	return !c.NoTUI
}

// execute runs one recording and returns the process exit code.
func execute(c *CLI) int {
	logger, err := logging.New(logging.Options{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		File:   c.LogFile,
		TUI:    c.useTUI(),
	})
	if err != nil {
		cli.PrintError(err.Error())
		return exitConfiguration
	}
	defer logging.Close(logger)
	encoder.SetLogLevel(logger.GetLevel(), c.useTUI())

	p, err := c.plan()
	if err != nil {
		return report(logger, err)
	}

	src, err := capture.NewScreenSource(p.cfg.Display)
	if err != nil {
		return report(logger, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	if c.MetricsAddr != "" {
		srv := metrics.NewServer(m, logging.WithComponent(logger, "metrics"))
		if err := srv.Start(c.MetricsAddr); err != nil {
			src.Close()
			return report(logger, apperrors.Resource("metrics", err))
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Metrics server did not shut down cleanly")
			}
		}()
	}

	backend := &ffmpegBackend{
		output:    p.cfg.OutputPath,
		framerate: p.cfg.Framerate,
		tuning:    p.tuning,
		format:    p.format,
		converter: c.Converter,
	}
	rec := &recorder.Recorder{
		Config:     p.cfg,
		Source:     src,
		Backend:    backend,
		Log:        logging.WithComponent(logger, "recorder"),
		Pipeline:   c.Pipeline,
		OnProgress: m.Observe,
	}

	if c.Stamp {
		stamper, err := renderer.NewStamper(renderer.DefaultStampSize)
		if err != nil {
			src.Close()
			return report(logger, apperrors.Resource("stamp", err))
		}
		defer stamper.Close()
		rec.Overlay = stamper.Stamp
	}

	var snapshot *renderer.Snapshot
	if c.Thumbnail || (c.useTUI() && !c.NoPreview) {
		snapshot = &renderer.Snapshot{}
		rec.Inspect = snapshot.Keep
	}

	m.Start(p.cfg.OutputPath, p.cfg.FrameLimit)
	var res recorder.Result
	if c.useTUI() {
		res, err = runTUI(ctx, cancel, rec, backend, snapshot, c.NoPreview)
	} else {
		printPlan(p)
		res, err = runPlain(ctx, rec, logger)
	}
	m.Finish(res, err)

	if c.Thumbnail && err == nil && !res.Truncated && res.Frames > 0 {
		path := renderer.ThumbnailPath(p.cfg.OutputPath)
		caption := renderer.Caption(res.Frames, p.cfg.Framerate, res.Elapsed)
		if thumbErr := snapshot.WriteThumbnail(path, caption); thumbErr != nil {
			logger.WithError(thumbErr).Warn("Failed to write thumbnail")
			cli.PrintWarning(fmt.Sprintf("thumbnail not written: %v", thumbErr))
		} else {
			logger.WithField("path", path).Info("Thumbnail written")
			cli.PrintSuccess("thumbnail written to " + path)
		}
	}

	if !c.useTUI() {
		cli.PrintSummary(summary(p.cfg, res, encoder.Probe))
	}
	return report(logger, err)
}

// printPlan shows what is about to be recorded when there is no TUI.
func printPlan(p plan) {
	cli.PrintBanner()
	cli.PrintInfo("Output", fmt.Sprintf("%s (%s)", p.cfg.OutputPath, p.format.Name))
	cli.PrintInfo("Display", p.cfg.Display)
	frames := "until interrupted"
	if !p.cfg.Unbounded() {
		frames = strconv.Itoa(p.cfg.FrameLimit)
	}
	cli.PrintInfo("Frames", frames)
	cli.PrintInfo("Cadence", fmt.Sprintf("one frame every %s, played back at %d fps", p.cfg.Delay, p.cfg.Framerate))
	fmt.Println()
}

// prober reads a finished recording back; encoder.Probe outside tests.
type prober func(path string) (encoder.StreamInfo, error)

// summary describes res for the completion screen. A complete file is
// probed for its decoded duration; a probe failure leaves it unknown.
func summary(cfg config.CaptureConfig, res recorder.Result, probe prober) cli.Summary {
	size := res.Bytes
	if info, err := os.Stat(cfg.OutputPath); err == nil {
		size = info.Size()
	}
	s := cli.Summary{
		Output:    cfg.OutputPath,
		Frames:    res.Frames,
		Playback:  cfg.PlaybackDuration(res.Frames),
		Elapsed:   res.Elapsed,
		Size:      size,
		Truncated: res.Truncated,
		Cancelled: res.Cancelled,
	}
	if probe != nil && res.Frames > 0 && !res.Truncated {
		if info, err := probe(cfg.OutputPath); err == nil {
			s.Decoded = info.Duration
		}
	}
	return s
}

// report logs and prints err and maps it to an exit code.
func report(logger logrus.FieldLogger, err error) int {
	if err == nil {
		return exitOK
	}
	logger.WithError(err).Error("Recording failed")
	cli.PrintError(err.Error())
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	// Teardown failures are appended after the error that ended the run.
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		err = merr.Errors[0]
	}
	kind, _ := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindConfiguration:
		return exitConfiguration
	case apperrors.KindResource:
		return exitResource
	default:
		return exitFailure
	}
}
