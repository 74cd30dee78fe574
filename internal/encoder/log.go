package encoder

import (
	"github.com/sirupsen/logrus"

	ffmpeg "github.com/linuxmatters/ffmpeg-statigo"
)

// SetLogLevel makes libav's own logger follow the application log level.
// quiet silences it entirely, which the TUI needs while it owns the terminal.
func SetLogLevel(level logrus.Level, quiet bool) {
	if quiet {
		ffmpeg.AVLogSetLevel(ffmpeg.AVLogQuiet)
		return
	}
	ffmpeg.AVLogSetLevel(avLogLevel(level))
}

func avLogLevel(level logrus.Level) int {
	switch level {
	case logrus.PanicLevel:
		return ffmpeg.AVLogPanic
	case logrus.FatalLevel:
		return ffmpeg.AVLogFatal
	case logrus.ErrorLevel:
		return ffmpeg.AVLogError
	case logrus.WarnLevel:
		return ffmpeg.AVLogWarning
	case logrus.InfoLevel:
		// libav is chatty at info; keep it to warnings unless debugging.
		return ffmpeg.AVLogWarning
	default:
		return ffmpeg.AVLogDebug
	}
}

// silenceLogs mutes libav until the returned func restores the old level.
func silenceLogs() func() {
	old, _ := ffmpeg.AVLogGetLevel()
	ffmpeg.AVLogSetLevel(ffmpeg.AVLogQuiet)
	return func() {
		ffmpeg.AVLogSetLevel(old)
	}
}
