package whisper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type fakeEngine struct {
	probs map[string]float64
	text  string
	err   error

	mu       sync.Mutex
	requests []TranscriptionRequest
}

func (f *fakeEngine) DetectLanguage(ctx context.Context, req LanguageRequest) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.probs, nil
}

func (f *fakeEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type countingLoader struct {
	calls   atomic.Int32
	delay   time.Duration
	failFor map[string]int32
}

func (l *countingLoader) Load(ctx context.Context, name string) (*Model, error) {
	n := l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if limit, ok := l.failFor[name]; ok && n <= limit {
		return nil, &ModelLoadError{Name: name, Err: context.DeadlineExceeded}
	}
	spec, ok := LookupModel(name)
	if !ok {
		return nil, &ModelLoadError{Name: name, Err: ErrUnknownModel}
	}
	return NewModel(spec.Name, "/models/"+spec.FileName, &fakeEngine{}), nil
}

type recordedLoad struct {
	model   string
	elapsed time.Duration
}

type fakeRecorder struct {
	mu    sync.Mutex
	loads []recordedLoad
}

func (r *fakeRecorder) RecordModelLoad(ctx context.Context, model string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, recordedLoad{model: model, elapsed: elapsed})
}
