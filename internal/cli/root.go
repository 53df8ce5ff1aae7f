package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/voxapi/internal/config"
	"github.com/fmueller/voxapi/internal/download"
	"github.com/fmueller/voxapi/internal/logging"
	"github.com/fmueller/voxapi/internal/record"
	"github.com/fmueller/voxapi/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

type appState struct {
	configPath string
	envFile    string
	verbose    bool
	jsonLogs   bool
	logLevel   string
	noProgress bool

	logger *zap.Logger

	serveFn       func(ctx context.Context, cfg config.Config) error
	fetchFn       func(ctx context.Context, opts download.Options) error
	recordFn      func(ctx context.Context, cfg record.Config) error
	listDevicesFn func() ([]record.DeviceInfo, error)
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newAppState() *appState {
	app := &appState{envFile: ".env"}
	app.serveFn = app.runServer
	app.fetchFn = download.Fetch
	app.recordFn = func(ctx context.Context, cfg record.Config) error {
		return record.Record(ctx, cfg, record.OpenMicrophone)
	}
	app.listDevicesFn = record.ListDevices
	return app
}

// newRootCmd runs "serve" when no subcommand is given.
func newRootCmd(app *appState) *cobra.Command {
	serveOpts := &serveOptions{}

	cmd := &cobra.Command{
		Use:           "voxapi",
		Short:         "Speech-to-text HTTP service backed by whisper models",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Get().String(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return app.initLogger(app.logLevel, app.jsonLogs)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.serve(cmd, serveOpts)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	bindGlobalFlags(cmd, app)
	bindServeFlags(cmd, serveOpts)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newRecordCmd(app))
	cmd.AddCommand(newDevicesCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindGlobalFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.configPath, "config", app.configPath, "YAML configuration file")
	flags.StringVar(&app.envFile, "env-file", app.envFile, "Dotenv file loaded before reading the environment (ignored when missing)")
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.StringVar(&app.logLevel, "log-level", app.logLevel, "Log level: debug|info|warn|error")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func (a *appState) initLogger(level string, jsonLogs bool) error {
	logger, err := logging.New(logging.Options{Level: level, Verbose: a.verbose, JSON: jsonLogs})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

// loadConfig reads the layered configuration and applies explicitly set
// command line flags on top.
func (a *appState) loadConfig(cmd *cobra.Command, apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: a.configPath, EnvFile: a.envFile})
	if err != nil {
		return cfg, err
	}

	if apply != nil {
		apply(&cfg)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("json") {
		cfg.Log.JSON = a.jsonLogs
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if err := a.initLogger(cfg.Log.Level, cfg.Log.JSON); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
