package record

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// fakeSource emits blocks of a constant sample value until stopped.
type fakeSource struct {
	channels int
	block    uint32
	value    int16
	startErr error

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

func (f *fakeSource) Start(onData func(pcm []byte, frames uint32)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.stop = make(chan struct{})
	pcm := make([]byte, int(f.block)*f.channels*2)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(f.value))
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-f.stop:
				return
			default:
				onData(pcm, f.block)
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped && f.stop != nil {
		close(f.stop)
		f.wg.Wait()
	}
	f.stopped = true
	return nil
}

func openFake(src *fakeSource) Opener {
	return func(cfg Config) (Source, error) {
		src.channels = cfg.Channels
		return src, nil
	}
}

func readWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return dec, buf.Data
}

func TestRecordWritesExactFrameCount(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "outputs", "example.wav")
	src := &fakeSource{block: 4410, value: 1000}

	err := Record(context.Background(), Config{
		OutputPath: out,
		Duration:   200 * time.Millisecond,
		SampleRate: 44100,
		Channels:   2,
	}, openFake(src))
	require.NoError(t, err)
	require.True(t, src.stopped)

	dec, data := readWAV(t, out)
	require.Equal(t, uint32(44100), dec.SampleRate)
	require.Equal(t, uint16(2), dec.NumChans)
	require.Equal(t, uint16(16), dec.BitDepth)
	require.Len(t, data, 8820*2)
	require.Equal(t, 1000, data[0])
}

func TestRecordMono(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "mono.wav")
	src := &fakeSource{block: 1600, value: -5}

	require.NoError(t, Record(context.Background(), Config{
		OutputPath: out,
		Duration:   100 * time.Millisecond,
		SampleRate: 16000,
		Channels:   1,
	}, openFake(src)))

	dec, data := readWAV(t, out)
	require.Equal(t, uint16(1), dec.NumChans)
	require.Len(t, data, 1600)
	require.Equal(t, -5, data[len(data)-1])
}

func TestRecordCancelled(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "cancel.wav")
	src := &fakeSource{block: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Record(ctx, Config{OutputPath: out, Duration: time.Hour, SampleRate: 44100, Channels: 1}, openFake(src))
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, src.stopped)

	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}

func TestRecordStartFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("device busy")
	err := Record(context.Background(), Config{
		OutputPath: filepath.Join(t.TempDir(), "x.wav"),
		Duration:   time.Second,
		Channels:   1,
	}, openFake(&fakeSource{startErr: boom}))
	require.ErrorIs(t, err, boom)
}

func TestRecordOpenFailure(t *testing.T) {
	t.Parallel()

	err := Record(context.Background(), Config{
		OutputPath: filepath.Join(t.TempDir(), "x.wav"),
		Duration:   time.Second,
		Channels:   1,
	}, func(Config) (Source, error) { return nil, errors.New("no microphone") })
	require.ErrorContains(t, err, "open capture device: no microphone")
}

func TestRecordValidatesConfig(t *testing.T) {
	t.Parallel()

	open := openFake(&fakeSource{})
	require.ErrorContains(t, Record(context.Background(), Config{Duration: time.Second, Channels: 1}, open), "output path")
	require.ErrorContains(t, Record(context.Background(), Config{OutputPath: "a.wav", Channels: 1}, open), "duration")
	require.ErrorContains(t, Record(context.Background(), Config{OutputPath: "a.wav", Duration: time.Second}, open), "channels")
}

func TestFrameSinkStopsAtLimit(t *testing.T) {
	t.Parallel()

	sink := newFrameSink(2, 3)
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	sink.write(pcm, 2)
	sink.write(pcm, 2)
	sink.write(pcm, 2)

	select {
	case <-sink.full:
	default:
		t.Fatal("sink should be full")
	}
	require.Equal(t, []int{1, 2, 3, 4, 1, 2}, sink.samples())
}

func TestDefaultChannels(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, DefaultChannels("darwin"))
	require.Equal(t, 2, DefaultChannels("linux"))
	require.Equal(t, 2, DefaultChannels("windows"))
}
