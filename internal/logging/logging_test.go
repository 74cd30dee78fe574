package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(Options{Level: tt.level, Stderr: io.Discard})
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "json", Stderr: &buf})
	require.NoError(t, err)

	WithComponent(logger, "recorder").WithField("frame", 3).Info("Frame encoded")

	out := buf.String()
	assert.Contains(t, out, `"message":"Frame encoded"`)
	assert.Contains(t, out, `"component":"recorder"`)
	assert.Contains(t, out, `"frame":3`)
}

func TestNew_TUIDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{TUI: true, Stderr: &buf})
	require.NoError(t, err)

	logger.Error("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, io.Discard, logger.Out)
}

func TestNew_FileWinsOverTUI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lapse.log")
	logger, err := New(Options{TUI: true, File: path})
	require.NoError(t, err)

	_, ok := logger.Out.(*lumberjack.Logger)
	require.True(t, ok)

	logger.Info("to file")
	require.NoError(t, Close(logger))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
