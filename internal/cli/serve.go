package cli

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fmueller/voxapi/internal/api"
	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/config"
	"github.com/fmueller/voxapi/internal/telemetry"
	"github.com/fmueller/voxapi/internal/transcription"
	"github.com/fmueller/voxapi/internal/version"
	"github.com/fmueller/voxapi/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	bind           string
	port           int
	defaultModel   string
	preload        bool
	preloadModels  []string
	modelDir       string
	autoDownload   bool
	enginePath     string
	threads        int
	decoderCommand string
	metrics        bool
}

func newServeCmd(app *appState) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.serve(cmd, opts)
		},
	}

	bindServeFlags(cmd, opts)
	return cmd
}

func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&opts.bind, "bind", defaults.HTTP.Bind, "Address to listen on")
	flags.IntVar(&opts.port, "port", defaults.HTTP.Port, "Port to listen on")
	flags.StringVar(&opts.defaultModel, "default-model", defaults.DefaultModel, "Model used when a request names none")
	flags.BoolVar(&opts.preload, "preload", defaults.Preload, "Load models before accepting requests")
	flags.StringSliceVar(&opts.preloadModels, "preload-models", defaults.PreloadedModels, "Models to load at startup")
	flags.StringVar(&opts.modelDir, "model-dir", "", "Directory where models are stored")
	flags.BoolVar(&opts.autoDownload, "auto-download", defaults.Models.AutoDownload, "Download missing models on first use")
	flags.StringVar(&opts.enginePath, "engine-path", "", "Path to the whisper-cli executable")
	flags.IntVar(&opts.threads, "threads", defaults.Engine.Threads, "Engine threads per request (0 uses the engine default)")
	flags.StringVar(&opts.decoderCommand, "decoder-command", defaults.Decoder.Command, "Audio decoder command line")
	flags.BoolVar(&opts.metrics, "metrics", defaults.Metrics.Enabled, "Expose Prometheus metrics at /metrics")
}

func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.HTTP.Bind = o.bind
	}
	if flags.Changed("port") {
		cfg.HTTP.Port = o.port
	}
	if flags.Changed("default-model") {
		cfg.DefaultModel = o.defaultModel
	}
	if flags.Changed("preload") {
		cfg.Preload = o.preload
	}
	if flags.Changed("preload-models") {
		cfg.PreloadedModels = o.preloadModels
	}
	if flags.Changed("model-dir") {
		cfg.Models.Dir = o.modelDir
	}
	if flags.Changed("auto-download") {
		cfg.Models.AutoDownload = o.autoDownload
	}
	if flags.Changed("engine-path") {
		cfg.Engine.Path = o.enginePath
	}
	if flags.Changed("threads") {
		cfg.Engine.Threads = o.threads
	}
	if flags.Changed("decoder-command") {
		cfg.Decoder.Command = o.decoderCommand
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
}

func (a *appState) serve(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := a.loadConfig(cmd, func(cfg *config.Config) { opts.apply(cmd, cfg) })
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	serveFn := a.serveFn
	if serveFn == nil {
		serveFn = a.runServer
	}
	return serveFn(ctx, cfg)
}

func (a *appState) runServer(ctx context.Context, cfg config.Config) (err error) {
	logger := a.log()
	logger.Info("starting voxapi",
		zap.String("version", version.Get().String()),
		zap.String("addr", cfg.Addr()),
		zap.String("default_model", cfg.DefaultModel),
		zap.Bool("preload", cfg.Preload),
		zap.Strings("preloaded_models", cfg.PreloadedModels),
		zap.String("model_dir", cfg.Models.Dir),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     cfg.Metrics.Enabled,
		ServiceName: "voxapi",
		Version:     version.Get().Version,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, tel.Shutdown(context.WithoutCancel(ctx)))
	}()

	engine, err := whisper.NewCLIEngine(cfg.Engine.Path, cfg.Engine.Threads, logger)
	if err != nil {
		return err
	}

	decoder, err := audio.NewFFmpegDecoder(cfg.Decoder.Command, cfg.Decoder.Timeout, logger)
	if err != nil {
		return err
	}

	registry := whisper.NewRegistry(&whisper.Loader{
		Dir:            cfg.Models.Dir,
		AutoDownload:   cfg.Models.AutoDownload,
		VerifyChecksum: cfg.Models.VerifyChecksum,
		NoProgress:     !a.progressEnabled(),
		Engine:         engine,
		Fetch:          a.fetchFn,
		Logger:         logger,
	}, tel.Instruments, logger)

	if cfg.Preload {
		if err := registry.Preload(ctx, cfg.PreloadedModels); err != nil {
			return err
		}
		logger.Info("models ready", zap.Strings("models", registry.Loaded()))
	}

	service := transcription.NewService(registry, cfg.DefaultModel, tel.Instruments, logger)
	router := api.NewRouter(api.Deps{
		Transcriber:     service,
		Decoder:         decoder,
		Instruments:     tel.Instruments,
		Metrics:         tel.Handler(),
		MaxUploadMemory: cfg.HTTP.MaxUploadMemory,
		SampleRate:      cfg.Decoder.SampleRate,
		Logger:          logger,
	})

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	return api.Serve(ctx, ln, router, cfg.HTTP.ShutdownTimeout, logger)
}
