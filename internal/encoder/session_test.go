package encoder

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/media"
)

const (
	testWidth     = 160
	testHeight    = 96
	testFramerate = 15
)

func testSettings(format Format) Settings {
	return Settings{
		Width:     testWidth,
		Height:    testHeight,
		Framerate: testFramerate,
		Tuning:    DefaultTuning(),
		Format:    format,
	}
}

// paint fills f with a gradient that moves with i so every frame differs.
func paint(f *media.Frame, i int) {
	for y := 0; y < f.Height; y++ {
		row := f.Row(0, y)
		for x := range row {
			row[x] = uint8(x + y + i*4)
		}
	}
	for p := 1; p < 3; p++ {
		_, ch := media.ChromaSize(f.Width, f.Height)
		for y := 0; y < ch; y++ {
			row := f.Row(p, y)
			for x := range row {
				row[x] = uint8(128 + p*8)
			}
		}
	}
}

// encode feeds n frames through s and returns every packet, drained.
func encode(t *testing.T, s *Session, n int, sink func(*media.Packet)) int {
	t.Helper()
	count := 0
	for i := 0; i < n; i++ {
		frame, err := s.Frame()
		require.NoError(t, err)
		paint(frame, i)
		frame.PTS = int64(i)

		packets, err := s.Feed(frame)
		require.NoError(t, err)
		for _, p := range packets {
			count++
			sink(p)
			p.Release()
		}
	}

	packets, err := s.Drain()
	require.NoError(t, err)
	for _, p := range packets {
		count++
		sink(p)
		p.Release()
	}
	return count
}

func TestSession_Lifecycle(t *testing.T) {
	s, err := Open(testSettings(FormatH264))
	require.NoError(t, err)
	defer s.Close()

	assert.NotEmpty(t, s.CodecName())

	var sizes []int
	total := encode(t, s, 20, func(p *media.Packet) { sizes = append(sizes, p.Size()) })

	// One packet per frame once the reorder buffer is flushed.
	assert.Equal(t, 20, total)
	for _, n := range sizes {
		assert.Positive(t, n)
	}

	again, err := s.Drain()
	require.NoError(t, err)
	assert.Empty(t, again, "second drain must not emit packets")

	_, err = s.Feed(media.NewFrame(testWidth, testHeight))
	assert.ErrorIs(t, err, ErrSessionState)
	_, err = s.Frame()
	assert.ErrorIs(t, err, ErrSessionState)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestSession_BuffersBeforeEmitting(t *testing.T) {
	s, err := Open(testSettings(FormatH264))
	require.NoError(t, err)
	defer s.Close()

	frame, err := s.Frame()
	require.NoError(t, err)
	paint(frame, 0)
	frame.PTS = 0

	packets, err := s.Feed(frame)
	require.NoError(t, err)
	// x264 holds frames for lookahead; nothing comes out for the first one.
	assert.Empty(t, packets)

	drained, err := s.Drain()
	require.NoError(t, err)
	assert.Len(t, drained, 1)
	releaseAll(drained)
}

func TestSession_FeedCopiesForeignFrames(t *testing.T) {
	s, err := Open(testSettings(FormatH264))
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		f := media.NewFrame(testWidth, testHeight)
		paint(f, i)
		f.PTS = int64(i)
		packets, err := s.Feed(f)
		require.NoError(t, err)
		releaseAll(packets)
	}

	_, err = s.Feed(&media.Frame{Width: 2, Height: 2, PTS: 3})
	assert.ErrorIs(t, err, media.ErrFrameSize)
	assert.True(t, apperrors.IsEncode(err))
}

func TestSession_NonIncreasingPTSPanics(t *testing.T) {
	s, err := Open(testSettings(FormatH264))
	require.NoError(t, err)
	defer s.Close()

	frame, err := s.Frame()
	require.NoError(t, err)
	frame.PTS = 5
	packets, err := s.Feed(frame)
	require.NoError(t, err)
	releaseAll(packets)

	frame, err = s.Frame()
	require.NoError(t, err)
	frame.PTS = 5
	assert.Panics(t, func() { _, _ = s.Feed(frame) })

	frame.PTS = 4
	assert.Panics(t, func() { _, _ = s.Feed(frame) })
}

func TestOpen_RejectsBadSettings(t *testing.T) {
	testCases := []struct {
		name     string
		settings Settings
	}{
		{"odd width", Settings{Width: 161, Height: 96, Framerate: 15, Format: FormatH264}},
		{"odd height", Settings{Width: 160, Height: 95, Framerate: 15, Format: FormatH264}},
		{"zero size", Settings{Width: 0, Height: 96, Framerate: 15, Format: FormatH264}},
		{"zero framerate", Settings{Width: 160, Height: 96, Framerate: 0, Format: FormatH264}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(tc.settings)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfiguration(err))
		})
	}
}

func TestSession_CloseWithoutDrain(t *testing.T) {
	s, err := Open(testSettings(FormatMP4))
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	packets, err := s.Drain()
	assert.NoError(t, err)
	assert.Empty(t, packets)
}

// record runs a complete session into path and returns the packet count.
func record(t *testing.T, path string, frames int) int {
	t.Helper()
	format, err := FormatForPath(path)
	require.NoError(t, err)

	s, err := Open(testSettings(format))
	require.NoError(t, err)
	defer s.Close()

	w, err := NewWriter(path, s)
	require.NoError(t, err)

	var writeErr error
	n := encode(t, s, frames, func(p *media.Packet) {
		if writeErr == nil {
			writeErr = w.WritePacket(p)
		}
	})
	require.NoError(t, writeErr)
	require.NoError(t, w.Finalize())
	return n
}

func TestRecord_MP4Duration(t *testing.T) {
	const frames = 30
	path := filepath.Join(t.TempDir(), "timelapse.mp4")

	assert.Equal(t, frames, record(t, path, frames))

	info, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, frames, info.Packets)
	assert.Equal(t, testWidth, info.Width)
	assert.Equal(t, testHeight, info.Height)

	want := time.Duration(frames) * time.Second / testFramerate
	assert.InDelta(t, want.Seconds(), info.Duration.Seconds(), 0.15)
}

func TestRecord_MatroskaAndMOV(t *testing.T) {
	for _, name := range []string{"clip.mkv", "clip.mov"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			record(t, path, 12)

			info, err := Probe(path)
			require.NoError(t, err)
			assert.Equal(t, 12, info.Packets)
		})
	}
}

func TestRecord_RawStreams(t *testing.T) {
	testCases := []struct {
		name   string
		prefix []byte
		marker []byte
	}{
		{"clip.mpg", []byte{0, 0, 1, 0xb3}, FormatMPEG1.EndMarker},
		{"clip.h264", []byte{0, 0, 0, 1}, FormatH264.EndMarker},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.name)
			assert.Positive(t, record(t, path, 12))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, tc.prefix), "stream starts with a start code")
			assert.True(t, bytes.HasSuffix(data, tc.marker), "stream ends with the end marker")
		})
	}
}

func TestNewWriter_UnwritablePath(t *testing.T) {
	s, err := Open(testSettings(FormatMP4))
	require.NoError(t, err)
	defer s.Close()

	_, err = NewWriter(filepath.Join(t.TempDir(), "missing", "out.mp4"), s)
	require.Error(t, err)
	kind, ok := apperrors.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, apperrors.KindResource, kind)
}
