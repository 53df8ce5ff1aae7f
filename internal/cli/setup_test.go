package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/voxapi/internal/download"
	"github.com/stretchr/testify/require"
)

func TestSetupDownloadsDefaultModel(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	var calls []download.Options

	app := newTestApp()
	app.fetchFn = func(_ context.Context, opts download.Options) error {
		calls = append(calls, opts)
		return nil
	}

	stdout, _, err := runApp(t, app, []string{"setup", "--model-dir", modelDir, "--no-progress"})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, filepath.Join(modelDir, "ggml-medium.bin"), calls[0].Destination)
	require.Contains(t, calls[0].URL, "ggml-medium.bin")
	require.NotEmpty(t, calls[0].ExpectedSHA256)
	require.True(t, calls[0].NoProgress)
	require.Contains(t, stdout, "Model medium installed at")
}

func TestSetupInstallsEveryRequestedModel(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	var destinations []string

	app := newTestApp()
	app.fetchFn = func(_ context.Context, opts download.Options) error {
		destinations = append(destinations, filepath.Base(opts.Destination))
		return nil
	}

	_, _, err := runApp(t, app, []string{"setup", "--model", "tiny", "--model", "base.en", "--model-dir", modelDir})
	require.NoError(t, err)
	require.Equal(t, []string{"ggml-tiny.bin", "ggml-base.en.bin"}, destinations)
}

func TestSetupSkipsPresentUnpinnedModel(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "ggml-tiny.en.bin"), []byte("model"), 0o644))

	app := newTestApp()
	app.fetchFn = func(context.Context, download.Options) error {
		t.Fatal("unexpected download")
		return nil
	}

	stdout, _, err := runApp(t, app, []string{"setup", "--model", "tiny.en", "--model-dir", modelDir})
	require.NoError(t, err)
	require.Contains(t, stdout, "Model tiny.en already present at")
}

func TestSetupRedownloadsCorruptPinnedModel(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "ggml-tiny.bin"), []byte("truncated"), 0o644))

	calls := 0
	app := newTestApp()
	app.fetchFn = func(context.Context, download.Options) error {
		calls++
		return nil
	}

	stdout, _, err := runApp(t, app, []string{"setup", "--model", "tiny", "--model-dir", modelDir})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Contains(t, stdout, "Model tiny installed at")
}

func TestSetupWrapsDownloadFailure(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	app.fetchFn = func(context.Context, download.Options) error {
		return &download.StatusError{URL: "https://example.invalid/ggml-tiny.bin", Code: 404}
	}

	_, _, err := runApp(t, app, []string{"setup", "--model", "tiny", "--model-dir", t.TempDir()})
	require.ErrorContains(t, err, "download model tiny")

	var statusErr *download.StatusError
	require.ErrorAs(t, err, &statusErr)
}
