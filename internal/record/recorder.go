package record

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

const (
	DefaultSampleRate = 44100
	DefaultBitDepth   = 16
)

var ErrNoFrames = errors.New("no audio frames captured")

type Config struct {
	OutputPath string
	Duration   time.Duration
	SampleRate int
	Channels   int
	// Device selects a capture device by name; empty uses the default.
	Device string
	Logger *zap.Logger
}

// DefaultChannels is mono on macOS, where built-in microphones are mono,
// and stereo elsewhere.
func DefaultChannels(goos string) int {
	if goos == "darwin" {
		return 1
	}
	return 2
}

// Source delivers interleaved signed 16-bit little-endian frames to onData
// between Start and Stop.
type Source interface {
	Start(onData func(pcm []byte, frames uint32)) error
	Stop() error
}

type Opener func(cfg Config) (Source, error)

// Record captures cfg.Duration of audio from the source returned by open and
// writes it to cfg.OutputPath as 16-bit PCM WAV. The recording is cut to
// exactly the requested number of frames.
func Record(ctx context.Context, cfg Config, open Opener) error {
	if strings.TrimSpace(cfg.OutputPath) == "" {
		return errors.New("output path is required")
	}
	if cfg.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		return errors.New("channels must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(cfg.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	wantFrames := int(int64(cfg.Duration) * int64(cfg.SampleRate) / int64(time.Second))
	sink := newFrameSink(cfg.Channels, wantFrames)

	source, err := open(cfg)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	if err := source.Start(sink.write); err != nil {
		_ = source.Stop()
		return fmt.Errorf("start capture device: %w", err)
	}
	logger.Debug("capture started",
		zap.Int("sample_rate", cfg.SampleRate),
		zap.Int("channels", cfg.Channels),
		zap.Duration("duration", cfg.Duration),
	)

	timer := time.NewTimer(cfg.Duration + 500*time.Millisecond)
	defer timer.Stop()

	var waitErr error
	select {
	case <-sink.full:
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if err := source.Stop(); err != nil {
		logger.Warn("failed to stop capture device", zap.Error(err))
	}
	if waitErr != nil {
		return waitErr
	}

	samples := sink.samples()
	if len(samples) == 0 {
		return ErrNoFrames
	}
	if got := len(samples) / cfg.Channels; got < wantFrames {
		logger.Warn("capture ended early", zap.Int("frames", got), zap.Int("expected", wantFrames))
	}

	if err := writeWAV(cfg.OutputPath, samples, cfg.SampleRate, cfg.Channels); err != nil {
		_ = os.Remove(cfg.OutputPath)
		return err
	}
	return nil
}

type frameSink struct {
	channels int
	limit    int

	mu   sync.Mutex
	buf  []int
	full chan struct{}
	done bool
}

func newFrameSink(channels, frames int) *frameSink {
	return &frameSink{
		channels: channels,
		limit:    frames * channels,
		buf:      make([]int, 0, frames*channels),
		full:     make(chan struct{}),
	}
}

func (s *frameSink) write(pcm []byte, frames uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}

	n := int(frames) * s.channels
	if avail := len(pcm) / 2; n > avail {
		n = avail
	}
	for i := 0; i < n && len(s.buf) < s.limit; i++ {
		s.buf = append(s.buf, int(int16(binary.LittleEndian.Uint16(pcm[i*2:]))))
	}

	if len(s.buf) >= s.limit {
		s.done = true
		close(s.full)
	}
}

func (s *frameSink) samples() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.buf))
	copy(out, s.buf)
	return out
}

func writeWAV(path string, samples []int, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, DefaultBitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: DefaultBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}
