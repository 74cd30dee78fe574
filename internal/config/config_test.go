package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
)

// TestNew_Valid covers the accepted edges: unbounded frames and zero delay.
func TestNew_Valid(t *testing.T) {
	testCases := []struct {
		name      string
		frames    int
		delay     float64
		framerate int
		wantDelay time.Duration
	}{
		{name: "defaults", frames: 0, delay: 1.0, framerate: 15, wantDelay: time.Second},
		{name: "zero delay back-to-back", frames: 3, delay: 0, framerate: 15, wantDelay: 0},
		{name: "fractional delay", frames: 10, delay: 0.25, framerate: 30, wantDelay: 250 * time.Millisecond},
		{name: "framerate one", frames: 1, delay: 60, framerate: 1, wantDelay: time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := New(tc.frames, tc.delay, tc.framerate, "out.mp4", ":0")
			require.NoError(t, err)
			assert.Equal(t, tc.frames, cfg.FrameLimit)
			assert.Equal(t, tc.wantDelay, cfg.Delay)
			assert.Equal(t, tc.framerate, cfg.Framerate)
			assert.Equal(t, tc.frames == 0, cfg.Unbounded())
		})
	}
}

// TestNew_Invalid verifies every rejected value is a configuration error
// raised before anything is captured.
func TestNew_Invalid(t *testing.T) {
	testCases := []struct {
		name      string
		frames    int
		delay     float64
		framerate int
		output    string
		display   string
		wantMsg   string
	}{
		{name: "framerate zero", framerate: 0, delay: 1, output: "o.mp4", display: ":0", wantMsg: "'0' is not a valid framerate"},
		{name: "framerate negative", framerate: -1, delay: 1, output: "o.mp4", display: ":0", wantMsg: "'-1' is not a valid framerate"},
		{name: "negative frames", frames: -5, framerate: 15, delay: 1, output: "o.mp4", display: ":0", wantMsg: "'-5' is not a valid number of frames"},
		{name: "negative delay", framerate: 15, delay: -0.5, output: "o.mp4", display: ":0", wantMsg: "not a valid delay interval"},
		{name: "delay past duration range", framerate: 15, delay: 1e11, output: "o.mp4", display: ":0", wantMsg: "'1e+11' is not a valid delay interval"},
		{name: "NaN delay", framerate: 15, delay: math.NaN(), output: "o.mp4", display: ":0", wantMsg: "not a valid delay interval"},
		{name: "empty output", framerate: 15, delay: 1, display: ":0", wantMsg: "output path cannot be empty"},
		{name: "empty display", framerate: 15, delay: 1, output: "o.mp4", wantMsg: "display cannot be empty"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.frames, tc.delay, tc.framerate, tc.output, tc.display)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfiguration(err), "want configuration error, got %v", err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestPlaybackDuration(t *testing.T) {
	cfg := CaptureConfig{Framerate: 15}
	assert.Equal(t, 2*time.Second, cfg.PlaybackDuration(30))
	assert.Equal(t, time.Duration(0), cfg.PlaybackDuration(0))

	cfg.Framerate = 4
	assert.Equal(t, 2500*time.Millisecond, cfg.PlaybackDuration(10))
}

func TestAlignDown(t *testing.T) {
	assert.Equal(t, 1920, AlignDown(1920))
	assert.Equal(t, 1366, AlignDown(1367))
	assert.Equal(t, 0, AlignDown(1))
}

func TestDefaultOutputPath_NoCollision(t *testing.T) {
	dir := t.TempDir()

	path, err := DefaultOutputPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "timelapse.mp4"), path)
}

// TestDefaultOutputPath_Collision checks that an existing timelapse.mp4 is
// never overwritten and the next free suffix is picked.
func TestDefaultOutputPath_Collision(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "timelapse.mp4"))

	path, err := DefaultOutputPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "timelapse_1.mp4"), path)

	touch(t, filepath.Join(dir, "timelapse_1.mp4"))
	touch(t, filepath.Join(dir, "timelapse_2.mp4"))

	path, err = DefaultOutputPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "timelapse_3.mp4"), path)
}

func TestDefaultOutputPath_GapIsReused(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "timelapse.mp4"))
	touch(t, filepath.Join(dir, "timelapse_2.mp4"))

	path, err := DefaultOutputPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "timelapse_1.mp4"), path)
}

func TestDefaultOutputPath_DanglingSymlinkIsTaken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "timelapse.mp4")))

	path, err := DefaultOutputPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "timelapse_1.mp4"), path)
}

func TestNextFreeName_Exhausted(t *testing.T) {
	if testing.Short() {
		t.Skip("creates MaxNameAttempts files")
	}
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "clip.mpg"))
	for i := 1; i <= MaxNameAttempts; i++ {
		touch(t, filepath.Join(dir, "clip_"+strconv.Itoa(i)+".mpg"))
	}

	_, err := NextFreeName(dir, "clip", ".mpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFreeName)
	assert.True(t, apperrors.IsConfiguration(err))
}

// TestFileLoader feeds a YAML file through the kong resolver and checks that
// explicit flags still win.
func TestFileLoader(t *testing.T) {
	var cli struct {
		Frames    int     `default:"0"`
		Delay     float64 `default:"1.0"`
		Framerate int     `default:"15"`
		LogLevel  string  `default:"info"`
		Stamp     bool
	}

	yaml := strings.Join([]string{
		"frames: 12",
		"delay: 0.5",
		"log_level: debug",
		"stamp: true",
	}, "\n")

	resolver, err := FileLoader(strings.NewReader(yaml))
	require.NoError(t, err)

	parser, err := kong.New(&cli, kong.Resolvers(resolver))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"--delay=2"})
	require.NoError(t, err)

	assert.Equal(t, 12, cli.Frames)
	assert.Equal(t, 2.0, cli.Delay)
	assert.Equal(t, 15, cli.Framerate)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.True(t, cli.Stamp)
}

func TestFileLoader_BadYAML(t *testing.T) {
	_, err := FileLoader(strings.NewReader("frames: [unterminated"))
	assert.Error(t, err)
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}
