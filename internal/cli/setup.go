package cli

import (
	"fmt"

	"github.com/fmueller/voxapi/internal/config"
	"github.com/fmueller/voxapi/internal/download"
	"github.com/fmueller/voxapi/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type setupOptions struct {
	models   []string
	modelDir string
}

func newSetupCmd(app *appState) *cobra.Command {
	opts := &setupOptions{}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech models",
		Long: "Download and verify speech models.\n\n" +
			"Installs the configured default model, or the models named with --model,\n" +
			"into the model directory and verifies their checksums.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("model-dir") {
					cfg.Models.Dir = opts.modelDir
				}
			})
			if err != nil {
				return err
			}

			names := opts.models
			if len(names) == 0 {
				names = []string{cfg.DefaultModel}
			}
			for _, name := range names {
				if err := app.installModel(cmd, name, cfg.Models.Dir); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.models, "model", nil, "Model to install (repeatable, defaults to the configured default model)")
	cmd.Flags().StringVar(&opts.modelDir, "model-dir", "", "Directory where models are stored")

	return cmd
}

func (a *appState) installModel(cmd *cobra.Command, name, modelDir string) error {
	resolved, err := whisper.ResolveModel(name, modelDir)
	if err != nil {
		return err
	}
	if resolved.IsCustomPath {
		return fmt.Errorf("setup expects a named model; got custom path %s", resolved.Path)
	}

	logger := a.log().With(zap.String("model", resolved.Name), zap.String("path", resolved.Path))

	if !resolved.NeedsDownload && resolved.SHA256 != "" {
		if err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256); err != nil {
			logger.Warn("model checksum verification failed; downloading fresh copy", zap.Error(err))
			resolved.NeedsDownload = true
		}
	}

	if !resolved.NeedsDownload {
		logger.Info("model already present")
		fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", resolved.Name, resolved.Path)
		return nil
	}

	logger.Info("downloading model", zap.String("url", resolved.URL))
	fetch := a.fetchFn
	if fetch == nil {
		fetch = download.Fetch
	}
	if err := fetch(cmd.Context(), download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		NoProgress:     !a.progressEnabled(),
		Logger:         logger,
	}); err != nil {
		return fmt.Errorf("download model %s: %w", resolved.Name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", resolved.Name, resolved.Path)
	return nil
}
