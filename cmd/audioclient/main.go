// Command audioclient plays a WAV recording as raw 16-bit mono PCM on stdout,
// paced like a live scanner feed, for piping into the caption service:
//
//	audioclient -audio feed.wav | CAPTURE_INPUT=- scanner-caption-service
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"scanner-caption-service/internal/capture"
	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/service/dsp"
)

func main() {
	audioFile := flag.String("audio", "", "Path to WAV file")
	sampleRate := flag.Int("rate", 16000, "Output sample rate")
	realtime := flag.Bool("realtime", true, "Pace output at the sample rate")
	condition := flag.Bool("condition", false, "Run the radio signal conditioner before output")
	flag.Parse()

	logging.Init(logging.DefaultConfig())
	if *audioFile == "" {
		log.Fatal().Msg("-audio is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := capture.NewWAVSource(*audioFile, capture.Config{
		SampleRate: *sampleRate,
		BlockSize:  *sampleRate / 50,
		Realtime:   *realtime,
	})
	var cond *dsp.Conditioner
	if *condition {
		cond = dsp.NewConditioner(dsp.DefaultConfig(), src.SampleRate())
	}

	out := bufio.NewWriter(os.Stdout)
	var frames, bytes int
	err := src.Run(ctx, func(block []float32) error {
		if cond != nil {
			block = cond.Process(block)
		}
		pcm := dsp.ToPCM16(block)
		if _, err := out.Write(pcm); err != nil {
			return err
		}
		frames++
		bytes += len(pcm)
		// Flush per block so the reader sees live pacing.
		return out.Flush()
	})
	if errors.Is(err, capture.ErrEndOfInput) || errors.Is(err, context.Canceled) {
		err = nil
	}
	if ferr := out.Flush(); err == nil {
		err = ferr
	}

	if err != nil {
		log.Fatal().Err(err).Str("audio", *audioFile).Msg("Streaming failed")
	}
	log.Info().
		Int("frames", frames).
		Int("bytes", bytes).
		Bool("conditioned", *condition).
		Msg("Audio streaming complete")
}
