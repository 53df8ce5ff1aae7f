package whisper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type ModelLoader interface {
	Load(ctx context.Context, name string) (*Model, error)
}

// LoadRecorder observes how long each model took to load.
type LoadRecorder interface {
	RecordModelLoad(ctx context.Context, model string, elapsed time.Duration)
}

// Registry memoizes loaded models for the lifetime of the process. Each name
// is loaded at most once at a time; failed loads are retried on the next call.
type Registry struct {
	loader   ModelLoader
	logger   *zap.Logger
	recorder LoadRecorder

	mu     sync.RWMutex
	models map[string]*Model
	group  singleflight.Group
}

func NewRegistry(loader ModelLoader, recorder LoadRecorder, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		loader:   loader,
		logger:   logger,
		recorder: recorder,
		models:   map[string]*Model{},
	}
}

// Load returns the cached model or loads it. The load itself is detached
// from ctx cancellation so that other callers waiting on it still get the
// model when the first caller goes away.
func (r *Registry) Load(ctx context.Context, name string) (*Model, error) {
	key := registryKey(name)
	if model, ok := r.cached(key); ok {
		return model, nil
	}

	ch := r.group.DoChan(key, func() (any, error) {
		if model, ok := r.cached(key); ok {
			return model, nil
		}

		started := time.Now()
		model, err := r.loader.Load(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(started)

		r.mu.Lock()
		r.models[key] = model
		r.mu.Unlock()

		if r.recorder != nil {
			r.recorder.RecordModelLoad(ctx, model.Name, elapsed)
		}
		r.logger.Info("loaded model", zap.String("model", model.Name), zap.Duration("elapsed", elapsed))
		return model, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Model), nil
	}
}

// Preload loads names one after another and stops at the first failure.
func (r *Registry) Preload(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := r.Load(ctx, name); err != nil {
			return fmt.Errorf("preload: %w", err)
		}
	}
	return nil
}

func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for _, model := range r.models {
		names = append(names, model.Name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) cached(key string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model, ok := r.models[key]
	return model, ok
}

func registryKey(name string) string {
	if strings.TrimSpace(name) == "" {
		name = DefaultModel
	}
	if spec, ok := LookupModel(name); ok {
		return spec.Name
	}
	return strings.TrimSpace(name)
}
