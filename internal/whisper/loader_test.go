package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/voxapi/internal/download"
	"github.com/stretchr/testify/require"
)

func TestLoaderDownloadsMissingModel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var got download.Options
	loader := &Loader{
		Dir:          dir,
		AutoDownload: true,
		Engine:       &fakeEngine{},
		Fetch: func(ctx context.Context, opts download.Options) error {
			got = opts
			return os.WriteFile(opts.Destination, []byte("model"), 0o644)
		},
	}

	model, err := loader.Load(context.Background(), "tiny")
	require.NoError(t, err)
	require.Equal(t, "tiny", model.Name)
	require.Equal(t, filepath.Join(dir, "ggml-tiny.bin"), model.Path)

	spec, _ := LookupModel("tiny")
	require.Equal(t, spec.URL, got.URL)
	require.Equal(t, spec.SHA256, got.ExpectedSHA256)
}

func TestLoaderRefusesMissingModelWithoutAutoDownload(t *testing.T) {
	t.Parallel()

	loader := &Loader{
		Dir:    t.TempDir(),
		Engine: &fakeEngine{},
		Fetch: func(ctx context.Context, opts download.Options) error {
			t.Fatal("fetch must not be called")
			return nil
		},
	}

	_, err := loader.Load(context.Background(), "base")
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "base", loadErr.Name)
	require.ErrorContains(t, err, "voxapi setup --model base")
}

func TestLoaderWrapsDownloadFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("network down")
	loader := &Loader{
		Dir:          t.TempDir(),
		AutoDownload: true,
		Engine:       &fakeEngine{},
		Fetch: func(ctx context.Context, opts download.Options) error {
			return boom
		},
	}

	_, err := loader.Load(context.Background(), "small")
	require.ErrorIs(t, err, boom)
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoaderVerifiesExistingPinnedModel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ggml-tiny.bin"), []byte("corrupt"), 0o644))

	loader := &Loader{Dir: dir, VerifyChecksum: true, Engine: &fakeEngine{}}
	_, err := loader.Load(context.Background(), "tiny")

	var checksumErr *download.ChecksumError
	require.ErrorAs(t, err, &checksumErr)

	loader.VerifyChecksum = false
	model, err := loader.Load(context.Background(), "tiny")
	require.NoError(t, err)
	require.Equal(t, "tiny", model.Name)
}

func TestLoaderSkipsVerificationForUnpinnedModels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ggml-tiny.en.bin"), []byte("anything"), 0o644))

	loader := &Loader{Dir: dir, VerifyChecksum: true, Engine: &fakeEngine{}}
	_, err := loader.Load(context.Background(), "tiny.en")
	require.NoError(t, err)
}

func TestLoaderAcceptsCustomModelPath(t *testing.T) {
	t.Parallel()

	custom := filepath.Join(t.TempDir(), "finetuned.bin")
	require.NoError(t, os.WriteFile(custom, []byte("custom weights"), 0o644))

	loader := &Loader{Dir: t.TempDir(), VerifyChecksum: true, Engine: &fakeEngine{}}
	model, err := loader.Load(context.Background(), custom)
	require.NoError(t, err)
	require.Equal(t, custom, model.Path)
}

func TestLoaderUnknownModel(t *testing.T) {
	t.Parallel()

	loader := &Loader{Dir: t.TempDir(), Engine: &fakeEngine{}}
	_, err := loader.Load(context.Background(), "gigantic")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestLoaderRequiresEngine(t *testing.T) {
	t.Parallel()

	_, err := (&Loader{Dir: t.TempDir()}).Load(context.Background(), "tiny")
	require.ErrorContains(t, err, "no whisper engine")
}
