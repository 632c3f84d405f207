package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/rs/zerolog"

	"scanner-caption-service/internal/observability/logging"
)

// resampleQuality trades CPU for fidelity in beep.Resample.
const resampleQuality = 4

// WAVSource plays a WAV file, downmixed to mono and resampled to the
// configured rate.
type WAVSource struct {
	path   string
	cfg    Config
	pacer  *pacer
	logger zerolog.Logger
}

// NewWAVSource creates a source for the WAV file at path.
func NewWAVSource(path string, cfg Config) *WAVSource {
	cfg = cfg.withDefaults()
	return &WAVSource{
		path:   path,
		cfg:    cfg,
		pacer:  newPacer(cfg.SampleRate),
		logger: logging.WithComponent("capture"),
	}
}

// SampleRate returns the rate of the delivered blocks.
func (s *WAVSource) SampleRate() int {
	return s.cfg.SampleRate
}

// Run decodes the file and delivers blocks of BlockSize samples; the last
// block may be shorter. It returns ErrEndOfInput at the end of the file.
func (s *WAVSource) Run(ctx context.Context, fn FrameFunc) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	stream, format, err := wav.Decode(f)
	if err != nil {
		return fmt.Errorf("decode wav %s: %w", s.path, err)
	}
	defer stream.Close()

	var streamer beep.Streamer = stream
	target := beep.SampleRate(s.cfg.SampleRate)
	if format.SampleRate != target {
		streamer = beep.Resample(resampleQuality, format.SampleRate, target, stream)
	}

	s.logger.Info().
		Str("path", s.path).
		Int("fileRate", int(format.SampleRate)).
		Int("channels", format.NumChannels).
		Int("rate", s.cfg.SampleRate).
		Bool("realtime", s.cfg.Realtime).
		Msg("WAV capture started")

	buf := make([][2]float64, s.cfg.BlockSize)
	block := make([]float32, s.cfg.BlockSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, ok := streamer.Stream(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				block[i] = float32((buf[i][0] + buf[i][1]) / 2)
			}
			if err := fn(block[:n]); err != nil {
				return err
			}
			if s.cfg.Realtime {
				if err := s.pacer.advance(ctx, n); err != nil {
					return err
				}
			}
		}
		if !ok {
			if err := stream.Err(); err != nil {
				return fmt.Errorf("read wav: %w", err)
			}
			return ErrEndOfInput
		}
	}
}
