package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/linuxmatters/lapse/internal/config"
	"github.com/linuxmatters/lapse/internal/encoder"
	"github.com/linuxmatters/lapse/internal/recorder"
	"github.com/linuxmatters/lapse/internal/renderer"
	"github.com/linuxmatters/lapse/internal/ui"
)

// previewSourceWidth is the width the last frame is scaled to before the
// TUI averages it into terminal cells.
const previewSourceWidth = 288

// runTUI records with the bubbletea UI in front. The UI may be left early
// with a second ctrl+c; the recording is still finalized before returning.
func runTUI(ctx context.Context, cancel context.CancelFunc, rec *recorder.Recorder, backend *ffmpegBackend, snapshot *renderer.Snapshot, noPreview bool) (recorder.Result, error) {
	w, h := rec.Source.Size()
	info := ui.Info{
		Output:    rec.Config.OutputPath,
		Display:   rec.Config.Display,
		Codec:     fmt.Sprintf("%s %d×%d", backend.format.Name, config.AlignDown(w), config.AlignDown(h)),
		Framerate: rec.Config.Framerate,
		Delay:     rec.Config.Delay,
		Limit:     rec.Config.FrameLimit,
	}

	// SIGINT and SIGTERM already cancel ctx; keys reach the model as keys.
	p := tea.NewProgram(ui.NewCaptureModel(info, cancel, noPreview), tea.WithoutSignalHandler())

	observe := rec.OnProgress
	rec.OnProgress = func(pr recorder.Progress) {
		if observe != nil {
			observe(pr)
		}
		update := ui.FrameUpdate{Progress: pr, Codec: backend.codecLine()}
		if snapshot != nil && !noPreview {
			update.Preview = snapshot.Scaled(previewSourceWidth)
		}
		p.Send(update)
	}

	var (
		res recorder.Result
		err error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err = rec.Run(ctx)
		p.Send(ui.Complete{Summary: summary(rec.Config, res, encoder.Probe), Err: err})
	}()

	if _, uiErr := p.Run(); uiErr != nil {
		cancel()
		<-done
		return res, combineUI(err, uiErr)
	}
	<-done
	return res, err
}

func combineUI(runErr, uiErr error) error {
	if runErr != nil {
		return runErr
	}
	return fmt.Errorf("running UI: %w", uiErr)
}

// runPlain records with periodic log lines instead of a UI.
func runPlain(ctx context.Context, rec *recorder.Recorder, logger logrus.FieldLogger) (recorder.Result, error) {
	observe := rec.OnProgress
	rec.OnProgress = func(pr recorder.Progress) {
		if observe != nil {
			observe(pr)
		}
		fields := logrus.Fields{
			"frames":  pr.Frames,
			"packets": pr.Packets,
			"bytes":   pr.Bytes,
			"capture": pr.CaptureTime.Round(time.Millisecond).String(),
			"encode":  pr.EncodeTime.Round(time.Millisecond).String(),
		}
		if pr.Limit > 0 {
			fields["limit"] = pr.Limit
		}
		logger.WithFields(fields).Info("Frame recorded")
	}
	return rec.Run(ctx)
}
