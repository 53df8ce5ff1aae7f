package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fmueller/voxapi/internal/config"
	"github.com/stretchr/testify/require"
)

func captureServe(app *appState) *config.Config {
	got := &config.Config{}
	app.serveFn = func(_ context.Context, cfg config.Config) error {
		*got = cfg
		return nil
	}
	return got
}

func TestServeUsesDefaults(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	got := captureServe(app)

	_, _, err := runApp(t, app, []string{"serve", "--model-dir", t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, "medium", got.DefaultModel)
	require.True(t, got.Preload)
	require.Equal(t, []string{"medium"}, got.PreloadedModels)
	require.Equal(t, "0.0.0.0:8000", got.Addr())
}

func TestRootWithoutSubcommandServes(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	got := captureServe(app)

	_, _, err := runApp(t, app, []string{"--port", "9100", "--model-dir", t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, 9100, got.HTTP.Port)
}

func TestServeFlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voxapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_model: small
preloaded_models: [small, tiny]
http:
  port: 9000
  shutdown_timeout: 5s
models:
  dir: /srv/models
`), 0o644))

	app := newTestApp()
	got := captureServe(app)

	_, _, err := runApp(t, app, []string{
		"serve",
		"--config", path,
		"--port", "9001",
		"--preload=false",
		"--engine-path", "/opt/whisper/whisper-cli",
		"--metrics=false",
	})
	require.NoError(t, err)
	require.Equal(t, "small", got.DefaultModel)
	require.Equal(t, []string{"small", "tiny"}, got.PreloadedModels)
	require.False(t, got.Preload)
	require.Equal(t, 9001, got.HTTP.Port)
	require.Equal(t, 5*time.Second, got.HTTP.ShutdownTimeout)
	require.Equal(t, "/srv/models", got.Models.Dir)
	require.Equal(t, "/opt/whisper/whisper-cli", got.Engine.Path)
	require.False(t, got.Metrics.Enabled)
}

func TestServeReadsEnvironment(t *testing.T) {
	t.Setenv("DEFAULT_MODEL", "base")
	t.Setenv("PRELOADED_MODELS", `["base","tiny"]`)
	t.Setenv("VOXAPI_HTTP_PORT", "8500")
	t.Setenv("VOXAPI_MODELS_DIR", t.TempDir())

	app := newTestApp()
	got := captureServe(app)

	_, _, err := runApp(t, app, []string{"serve", "--default-model", "tiny"})
	require.NoError(t, err)
	require.Equal(t, "tiny", got.DefaultModel)
	require.Equal(t, []string{"base", "tiny"}, got.PreloadedModels)
	require.Equal(t, 8500, got.HTTP.Port)
}

func TestServeReadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "voxapi.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEFAULT_MODEL=small\nPRELOAD=false\n"), 0o644))
	t.Setenv("VOXAPI_MODELS_DIR", t.TempDir())

	app := newTestApp()
	got := captureServe(app)

	_, _, err := runApp(t, app, []string{"serve", "--env-file", envFile})
	require.NoError(t, err)
	require.Equal(t, "small", got.DefaultModel)
	require.False(t, got.Preload)
}

func TestServeRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("PRELOAD", "maybe")

	app := newTestApp()
	captureServe(app)

	_, _, err := runApp(t, app, []string{"serve", "--model-dir", t.TempDir()})
	require.ErrorContains(t, err, "PRELOAD")
}

func TestServeFlagRepairsInvalidEnvironmentValue(t *testing.T) {
	t.Setenv("VOXAPI_HTTP_PORT", "0")
	t.Setenv("VOXAPI_MODELS_DIR", t.TempDir())

	app := newTestApp()
	got := captureServe(app)

	_, _, err := runApp(t, app, []string{"serve", "--port", "8080"})
	require.NoError(t, err)
	require.Equal(t, 8080, got.HTTP.Port)

	_, _, err = runApp(t, newTestApp(), []string{"serve"})
	require.ErrorContains(t, err, "http.port")
}

func TestServeRejectsUnsupportedSampleRate(t *testing.T) {
	t.Setenv("VOXAPI_DECODER_SAMPLE_RATE", "22050")
	t.Setenv("VOXAPI_MODELS_DIR", t.TempDir())

	_, _, err := runApp(t, newTestApp(), []string{"serve"})
	require.ErrorContains(t, err, "decoder.sample_rate must be 16000")
}
