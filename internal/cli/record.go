package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/record"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type recordOptions struct {
	filename string
	seconds  float64
	device   string
	channels int
}

func newRecordCmd(app *appState) *cobra.Command {
	opts := &recordOptions{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a WAV file from the microphone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.seconds <= 0 {
				return fmt.Errorf("--seconds must be positive, got %v", opts.seconds)
			}
			return app.recordAudio(cmd, *opts)
		},
	}

	cmd.Flags().StringVar(&opts.filename, "filename", "outputs/example.wav", "Output WAV file path")
	cmd.Flags().Float64Var(&opts.seconds, "seconds", 5, "Recording length in seconds")
	cmd.Flags().StringVar(&opts.device, "device", "", "Capture device name (see 'voxapi devices')")
	cmd.Flags().IntVar(&opts.channels, "channels", 0, "Channel count (0 picks mono on macOS, stereo elsewhere)")

	return cmd
}

func (a *appState) recordAudio(cmd *cobra.Command, opts recordOptions) error {
	duration := time.Duration(opts.seconds * float64(time.Second))
	channels := opts.channels
	if channels <= 0 {
		channels = record.DefaultChannels(runtime.GOOS)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Recording...")
	a.log().Info("recording started",
		zap.String("output", opts.filename),
		zap.Duration("duration", duration),
		zap.Int("channels", channels),
	)

	stopProgress := startDurationProgress(a.progressEnabled(), "Recording", duration)
	err := a.recordFn(ctx, record.Config{
		OutputPath: opts.filename,
		Duration:   duration,
		SampleRate: record.DefaultSampleRate,
		Channels:   channels,
		Device:     opts.device,
		Logger:     a.log(),
	})
	stopProgress()
	if err != nil {
		return fmt.Errorf("record audio: %w", err)
	}

	a.log().Info("recording finished", zap.String("path", opts.filename))
	a.inspectRecording(opts.filename)
	fmt.Fprintln(out, "Done")
	return nil
}

// inspectRecording reads the clip back and warns when it holds no signal,
// which usually means the wrong capture device.
func (a *appState) inspectRecording(path string) {
	logger := a.log().With(zap.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		logger.Debug("skipping recording check", zap.Error(err))
		return
	}
	defer f.Close()

	wf, err := audio.ReadWAV(f)
	if err != nil {
		logger.Warn("recorded file is not a readable WAV", zap.Error(err))
		return
	}

	levels := audio.MeasureLevels(wf)
	logger.Debug("recording levels",
		zap.Duration("duration", wf.Duration()),
		zap.Float64("rms_dbfs", levels.RMSdBFS),
		zap.Float64("peak_dbfs", levels.PeakdBFS),
	)
	if levels.Silent(audio.DefaultSilenceThresholdDBFS) {
		logger.Warn("recording is silent; check the capture device with 'voxapi devices'")
	}
}
