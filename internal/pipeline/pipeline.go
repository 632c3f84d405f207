// Package pipeline moves audio from a capture source through the signal
// conditioner to the transcription stream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"scanner-caption-service/internal/capture"
	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/observability/metrics"
	"scanner-caption-service/internal/service/dsp"
	"scanner-caption-service/internal/service/stt"
)

// Transcriber is the started transcription session. *transcript.Handler
// implements it.
type Transcriber interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Listen(ctx context.Context) error
	Close() error
}

// Config holds pipeline settings.
type Config struct {
	QueueFrames int
}

// DefaultConfig buffers ten seconds of 20 ms frames.
func DefaultConfig() Config {
	return Config{QueueFrames: 500}
}

// Pipeline runs capture, sender and receiver as one fail-fast group.
type Pipeline struct {
	src     capture.Source
	cond    *dsp.Conditioner
	tr      Transcriber
	queue   *Queue
	logger  zerolog.Logger
	metrics *metrics.Metrics

	draining atomic.Bool
}

// New wires a pipeline. The conditioner must be built for src's sample rate.
func New(src capture.Source, cond *dsp.Conditioner, tr Transcriber, cfg Config) *Pipeline {
	if cfg.QueueFrames <= 0 {
		cfg.QueueFrames = DefaultConfig().QueueFrames
	}
	return &Pipeline{
		src:     src,
		cond:    cond,
		tr:      tr,
		queue:   NewQueue(cfg.QueueFrames),
		logger:  logging.WithComponent("pipeline"),
		metrics: metrics.DefaultMetrics,
	}
}

// Produce conditions one block and enqueues its PCM encoding. It is the
// capture callback and runs on the source goroutine.
func (p *Pipeline) Produce(block []float32) error {
	pcm := dsp.ToPCM16(p.cond.Process(block))
	p.metrics.RecordFrameConditioned()
	if p.queue.Push(pcm) {
		p.metrics.RecordFrameDropped()
	}
	p.metrics.SetQueueDepth(p.queue.Len())
	return nil
}

// Run blocks until the feed ends. The first failure of any stage cancels the
// others and is returned. A finite input that ends cleanly closes the
// transcription stream, lets the remaining results arrive and returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	p.metrics.RecordPipelineStart()
	defer func() { p.metrics.RecordPipelineEnd(time.Since(start).Seconds()) }()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := p.src.Run(gctx, p.Produce)
		if errors.Is(err, capture.ErrEndOfInput) {
			p.logger.Info().Msg("Capture input ended, draining")
			p.draining.Store(true)
			p.queue.Close()
			return nil
		}
		p.queue.Close()
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("capture: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case frame, ok := <-p.queue.C():
				if !ok {
					if p.draining.Load() {
						return p.tr.Close()
					}
					return nil
				}
				if err := p.tr.SendAudio(gctx, frame); err != nil {
					return fmt.Errorf("send audio: %w", err)
				}
				p.metrics.SetQueueDepth(p.queue.Len())
			}
		}
	})

	g.Go(func() error {
		if err := p.tr.Listen(gctx); err != nil {
			if gctx.Err() != nil && errors.Is(err, gctx.Err()) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		if p.draining.Load() || gctx.Err() != nil {
			return nil
		}
		return stt.ErrStreamClosed
	})

	err := g.Wait()
	if cerr := p.tr.Close(); cerr != nil {
		p.logger.Debug().Err(cerr).Msg("Closing transcription stream")
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	p.logger.Info().
		Err(err).
		Int64("droppedFrames", p.queue.Dropped()).
		Dur("duration", time.Since(start)).
		Msg("Pipeline stopped")
	return err
}
