package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// writeWAV writes n mono samples of constant value v at rate.
func writeWAV(t *testing.T, rate, n int, v float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	left := n
	s := beep.StreamerFunc(func(out [][2]float64) (int, bool) {
		if left == 0 {
			return 0, false
		}
		k := min(len(out), left)
		for i := 0; i < k; i++ {
			out[i] = [2]float64{v, v}
		}
		left -= k
		return k, true
	})
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, s, format); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

type collector struct {
	blocks []int
	total  int
	last   float32
}

func (c *collector) frame(block []float32) error {
	c.blocks = append(c.blocks, len(block))
	c.total += len(block)
	if len(block) > 0 {
		c.last = block[len(block)-1]
	}
	return nil
}

func TestWAVSource_Blocks(t *testing.T) {
	path := writeWAV(t, 16000, 1000, 0.5)
	src := NewWAVSource(path, Config{SampleRate: 16000, BlockSize: 320})

	c := &collector{}
	err := src.Run(context.Background(), c.frame)
	if !errors.Is(err, ErrEndOfInput) {
		t.Fatalf("expected ErrEndOfInput, got %v", err)
	}
	want := []int{320, 320, 320, 40}
	if len(c.blocks) != len(want) {
		t.Fatalf("blocks = %v, want %v", c.blocks, want)
	}
	for i := range want {
		if c.blocks[i] != want[i] {
			t.Errorf("block %d = %d samples, want %d", i, c.blocks[i], want[i])
		}
	}
	if math.Abs(float64(c.last)-0.5) > 1e-3 {
		t.Errorf("sample = %v, want ~0.5", c.last)
	}
	if src.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d", src.SampleRate())
	}
}

func TestWAVSource_Resamples(t *testing.T) {
	path := writeWAV(t, 8000, 800, 0.25)
	src := NewWAVSource(path, Config{SampleRate: 16000, BlockSize: 320})

	c := &collector{}
	if err := src.Run(context.Background(), c.frame); !errors.Is(err, ErrEndOfInput) {
		t.Fatalf("expected ErrEndOfInput, got %v", err)
	}
	if c.total < 1500 || c.total > 1700 {
		t.Errorf("expected about 1600 samples after upsampling, got %d", c.total)
	}
}

func TestWAVSource_Errors(t *testing.T) {
	if err := NewWAVSource(filepath.Join(t.TempDir(), "missing.wav"), Config{}).Run(context.Background(), func([]float32) error { return nil }); err == nil {
		t.Error("expected error for a missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.wav")
	os.WriteFile(bad, []byte("not a wav file at all"), 0o644)
	if err := NewWAVSource(bad, Config{}).Run(context.Background(), func([]float32) error { return nil }); err == nil {
		t.Error("expected error for a malformed file")
	}
}

func TestWAVSource_FrameError(t *testing.T) {
	path := writeWAV(t, 16000, 1000, 0.1)
	stop := errors.New("queue closed")

	calls := 0
	err := NewWAVSource(path, Config{Realtime: false}).Run(context.Background(), func([]float32) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("expected the frame error after one call, got %v after %d", err, calls)
	}
}

func TestWAVSource_Cancelled(t *testing.T) {
	path := writeWAV(t, 16000, 1000, 0.1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewWAVSource(path, Config{}).Run(ctx, func([]float32) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPacer(t *testing.T) {
	now := time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)
	var waits []time.Duration
	p := &pacer{
		rate: 16000,
		now:  func() time.Time { return now },
		wait: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			now = now.Add(d)
			return nil
		},
	}

	ctx := context.Background()
	p.advance(ctx, 320)
	p.advance(ctx, 320)
	now = now.Add(100 * time.Millisecond)
	p.advance(ctx, 320)

	if len(waits) != 2 || waits[0] != 20*time.Millisecond || waits[1] != 20*time.Millisecond {
		t.Errorf("waits = %v", waits)
	}
}

func pcmBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestPCMSource(t *testing.T) {
	samples := make([]int16, 700)
	for i := range samples {
		samples[i] = 16384
	}
	data := append(pcmBytes(samples...), 0x7f) // trailing odd byte

	c := &collector{}
	src := NewPCMSource(bytes.NewReader(data), Config{BlockSize: 320})
	if err := src.Run(context.Background(), c.frame); !errors.Is(err, ErrEndOfInput) {
		t.Fatalf("expected ErrEndOfInput, got %v", err)
	}

	want := []int{320, 320, 60}
	if len(c.blocks) != len(want) {
		t.Fatalf("blocks = %v, want %v", c.blocks, want)
	}
	for i := range want {
		if c.blocks[i] != want[i] {
			t.Errorf("block %d = %d, want %d", i, c.blocks[i], want[i])
		}
	}
	if c.last != 0.5 {
		t.Errorf("sample = %v, want 0.5", c.last)
	}
}

func TestPCMSource_ReadError(t *testing.T) {
	boom := errors.New("device gone")
	src := NewPCMSource(&failingReader{err: boom}, Config{})
	if err := src.Run(context.Background(), func([]float32) error { return nil }); !errors.Is(err, boom) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestNew(t *testing.T) {
	if _, ok := New("-", Config{}, bytes.NewReader(nil)).(*PCMSource); !ok {
		t.Error(`"-" should select the PCM source`)
	}
	if _, ok := New("feed.wav", Config{}, nil).(*WAVSource); !ok {
		t.Error("a path should select the WAV source")
	}
}
