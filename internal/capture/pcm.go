package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"scanner-caption-service/internal/service/dsp"
)

// PCMSource reads raw signed 16-bit little-endian mono PCM, e.g. piped from
// rtl_fm. The stream must already be at the configured rate. A reader that
// is also an io.Closer is closed when ctx is cancelled to unblock a read.
type PCMSource struct {
	r   io.Reader
	cfg Config
}

// NewPCMSource creates a source reading from r.
func NewPCMSource(r io.Reader, cfg Config) *PCMSource {
	return &PCMSource{r: r, cfg: cfg.withDefaults()}
}

// SampleRate returns the rate of the delivered blocks.
func (s *PCMSource) SampleRate() int {
	return s.cfg.SampleRate
}

// Run delivers blocks until the reader is exhausted, then returns
// ErrEndOfInput.
func (s *PCMSource) Run(ctx context.Context, fn FrameFunc) error {
	if c, ok := s.r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	buf := make([]byte, s.cfg.BlockSize*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(s.r, buf)
		if n >= 2 {
			if ferr := fn(dsp.FromPCM16(buf[:n])); ferr != nil {
				return ferr
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return ErrEndOfInput
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("read pcm: %w", err)
		}
	}
}
