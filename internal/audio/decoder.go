package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"go.uber.org/zap"
)

const DefaultDecoderCommand = "ffmpeg"

// Decoder turns encoded audio of any container or codec into a mono
// waveform at sampleRate.
type Decoder interface {
	Decode(ctx context.Context, data []byte, sampleRate int) (Waveform, error)
}

// DecodeError reports that the external decoder failed or produced output
// that cannot be used as a waveform.
type DecodeError struct {
	Stderr string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "failed to load audio"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " (" + e.Stderr + ")"
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FFmpegDecoder pipes the input through an ffmpeg process that downmixes to
// one channel, resamples and writes signed 16-bit little-endian PCM.
type FFmpegDecoder struct {
	Command []string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewFFmpegDecoder parses command with shell quoting rules, so a value such as
// `nice -n 10 ffmpeg` or `"/opt/media tools/ffmpeg"` is accepted.
func NewFFmpegDecoder(command string, timeout time.Duration, logger *zap.Logger) (*FFmpegDecoder, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultDecoderCommand
	}

	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse decoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("decoder command is empty")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &FFmpegDecoder{Command: args, Timeout: timeout, Logger: logger}, nil
}

func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, sampleRate int) (Waveform, error) {
	if len(data) == 0 {
		return Waveform{}, &DecodeError{Err: errors.New("audio input is empty")}
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	command := d.Command
	if len(command) == 0 {
		command = []string{DefaultDecoderCommand}
	}

	args := append(append([]string{}, command[1:]...), ffmpegArgs(sampleRate)...)
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	d.log().Debug("running audio decoder", zap.String("command", command[0]), zap.Strings("args", args), zap.Int("input_bytes", len(data)))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return Waveform{}, &DecodeError{Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	if stdout.Len() == 0 {
		return Waveform{}, &DecodeError{Stderr: strings.TrimSpace(stderr.String()), Err: errors.New("decoder produced no samples")}
	}

	waveform, err := FromPCM16(stdout.Bytes(), sampleRate)
	if err != nil {
		return Waveform{}, &DecodeError{Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	return waveform, nil
}

func (d *FFmpegDecoder) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func ffmpegArgs(sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-threads", "0",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}
}
