// Package capture provides the audio sources that feed the pipeline with
// fixed-size mono float frames.
package capture

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrEndOfInput is returned by Run when a finite source is exhausted.
var ErrEndOfInput = errors.New("capture input ended")

// FrameFunc receives one block of mono samples in [-1, 1]. It is called
// synchronously from the source goroutine and must not retain block.
type FrameFunc func(block []float32) error

// Source delivers audio blocks until the input ends, ctx is cancelled or
// fn returns an error.
type Source interface {
	Run(ctx context.Context, fn FrameFunc) error
	SampleRate() int
}

// Config holds the capture settings shared by all sources.
type Config struct {
	SampleRate int
	BlockSize  int
	// Realtime paces file playback at the sample rate.
	Realtime bool
}

// DefaultConfig returns 20 ms blocks at 16 kHz.
func DefaultConfig() Config {
	return Config{SampleRate: 16000, BlockSize: 320, Realtime: true}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = def.BlockSize
	}
	return c
}

// pacer sleeps so that delivered samples track wall-clock time.
type pacer struct {
	rate    int
	start   time.Time
	samples int64
	now     func() time.Time
	wait    func(ctx context.Context, d time.Duration) error
}

func newPacer(rate int) *pacer {
	return &pacer{rate: rate, now: time.Now, wait: sleepCtx}
}

func (p *pacer) advance(ctx context.Context, n int) error {
	if p.start.IsZero() {
		p.start = p.now()
	}
	p.samples += int64(n)
	due := p.start.Add(time.Duration(p.samples) * time.Second / time.Duration(p.rate))
	if d := due.Sub(p.now()); d > 0 {
		return p.wait(ctx, d)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// New picks the source for input: "-" reads raw PCM from stdin, anything else
// is a WAV file path.
func New(input string, cfg Config, stdin io.Reader) Source {
	if input == "-" {
		return NewPCMSource(stdin, cfg)
	}
	return NewWAVSource(input, cfg)
}
