package whisper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegistryMemoizesModels(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{}
	registry := NewRegistry(loader, nil, nil)

	first, err := registry.Load(context.Background(), "tiny")
	require.NoError(t, err)
	second, err := registry.Load(context.Background(), "TINY")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, int32(1), loader.calls.Load())
	require.Equal(t, []string{"tiny"}, registry.Loaded())
}

func TestRegistryEmptyNameUsesDefaultKey(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{}
	registry := NewRegistry(loader, nil, nil)

	_, err := registry.Load(context.Background(), DefaultModel)
	require.NoError(t, err)
	_, err = registry.Load(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, int32(1), loader.calls.Load())
}

func TestRegistryConcurrentFirstAccessLoadsOnce(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{delay: 50 * time.Millisecond}
	registry := NewRegistry(loader, nil, nil)

	const callers = 16
	models := make([]*Model, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			models[i], errs[i] = registry.Load(context.Background(), "base")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), loader.calls.Load())
	for _, model := range models {
		require.Same(t, models[0], model)
	}
}

func TestRegistryDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{failFor: map[string]int32{"small": 1}}
	registry := NewRegistry(loader, nil, nil)

	_, err := registry.Load(context.Background(), "small")
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "small", loadErr.Name)
	require.Empty(t, registry.Loaded())

	model, err := registry.Load(context.Background(), "small")
	require.NoError(t, err)
	require.Equal(t, "small", model.Name)
}

func TestRegistryCancelledCallerDoesNotAbortLoad(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{delay: 100 * time.Millisecond}
	registry := NewRegistry(loader, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := registry.Load(ctx, "tiny")
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	model, err := registry.Load(context.Background(), "tiny")
	require.NoError(t, err)
	require.Equal(t, "tiny", model.Name)
	require.Equal(t, int32(1), loader.calls.Load())
}

func TestRegistryPreloadLogsAndRecordsEachModel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	recorder := &fakeRecorder{}
	registry := NewRegistry(&countingLoader{}, recorder, zap.New(core))

	require.NoError(t, registry.Preload(context.Background(), []string{"tiny", "medium"}))
	require.Equal(t, []string{"medium", "tiny"}, registry.Loaded())

	entries := logs.FilterMessage("loaded model").All()
	require.Len(t, entries, 2)
	require.Equal(t, "tiny", entries[0].ContextMap()["model"])
	require.Contains(t, entries[0].ContextMap(), "elapsed")

	require.Len(t, recorder.loads, 2)
	require.Equal(t, "medium", recorder.loads[1].model)
}

func TestRegistryPreloadStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{}
	registry := NewRegistry(loader, nil, nil)

	err := registry.Preload(context.Background(), []string{"tiny", "nonexistent-model", "base"})
	require.ErrorIs(t, err, ErrUnknownModel)
	require.ErrorContains(t, err, "preload")
	require.Equal(t, []string{"tiny"}, registry.Loaded())
}
