package whisper

import (
	"context"
	"errors"
	"fmt"

	"github.com/fmueller/voxapi/internal/download"
	"go.uber.org/zap"
)

// ModelLoadError reports a model that could not be made ready.
type ModelLoadError struct {
	Name string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Name, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

type FetchFunc func(ctx context.Context, opts download.Options) error

// Loader turns a model reference into a ready Model: the file is resolved,
// fetched when missing and verified against its pinned checksum.
type Loader struct {
	Dir            string
	AutoDownload   bool
	VerifyChecksum bool
	NoProgress     bool
	Engine         Engine
	Fetch          FetchFunc
	Logger         *zap.Logger
}

func (l *Loader) Load(ctx context.Context, name string) (*Model, error) {
	model, err := l.load(ctx, name)
	if err != nil {
		return nil, &ModelLoadError{Name: name, Err: err}
	}
	return model, nil
}

func (l *Loader) load(ctx context.Context, name string) (*Model, error) {
	if l.Engine == nil {
		return nil, errors.New("no whisper engine configured")
	}

	resolved, err := ResolveModel(name, l.Dir)
	if err != nil {
		return nil, err
	}

	logger := l.logger().With(zap.String("model", resolved.Name), zap.String("path", resolved.Path))

	if resolved.NeedsDownload {
		if !l.AutoDownload {
			return nil, fmt.Errorf("model file %s is missing and auto download is disabled; run `voxapi setup --model %s`", resolved.Path, resolved.Name)
		}

		logger.Info("downloading model", zap.String("url", resolved.URL))
		fetch := l.Fetch
		if fetch == nil {
			fetch = download.Fetch
		}
		err := fetch(ctx, download.Options{
			URL:            resolved.URL,
			Destination:    resolved.Path,
			ExpectedSHA256: resolved.SHA256,
			NoProgress:     l.NoProgress,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("download model: %w", err)
		}
	} else if l.VerifyChecksum && resolved.SHA256 != "" {
		logger.Debug("verifying model checksum")
		if err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256); err != nil {
			return nil, fmt.Errorf("model file is corrupt, delete it and run setup again: %w", err)
		}
	}

	return NewModel(resolved.Name, resolved.Path, l.Engine), nil
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
