// Package dsp conditions raw scanner audio for speech recognition.
//
// The chain is tuned for narrow-band radio voice: it flattens the low end,
// rolls off hiss above the voice band, keeps quiet passages audible to the
// recognizer and levels loud ones. Every stage is causal and carries its
// state across calls, so a stream produces the same output no matter how it
// is split into blocks.
package dsp

import (
	"encoding/binary"
	"math"
)

// Config enables and tunes the conditioning stages.
type Config struct {
	Enabled bool // master switch for every optional stage

	PreEmphasisEnabled bool
	PreEmphasis        float64

	HighPassEnabled bool
	HighPassHz      float64

	LowPassEnabled bool
	LowPassHz      float64

	GateEnabled     bool
	GateRMS         float64
	GateAttenuation float64

	AGCEnabled   bool
	AGCTargetRMS float64
	AGCMinGain   float64
	AGCMaxGain   float64

	LimiterEnabled   bool
	LimiterThreshold float64

	SoftClipEnabled bool
}

// DefaultConfig returns the ASR-safe radio defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		PreEmphasisEnabled: true,
		PreEmphasis:        0.85,
		HighPassEnabled:    true,
		HighPassHz:         250,
		LowPassEnabled:     true,
		LowPassHz:          3600,
		GateEnabled:        true,
		GateRMS:            0.006,
		GateAttenuation:    0.35,
		AGCEnabled:         true,
		AGCTargetRMS:       0.045,
		AGCMinGain:         0.25,
		AGCMaxGain:         8.0,
		LimiterEnabled:     false,
		LimiterThreshold:   0.85,
		SoftClipEnabled:    false,
	}
}

const (
	rmsFloor    = 1e-12
	agcMinRMS   = 1e-6
	softClipK   = 2.2
	pcm16Scale  = 32767.0
	minCutoffHz = 1.0
)

// Conditioner runs the conditioning chain over consecutive blocks of one
// stream. It is not safe for concurrent use.
type Conditioner struct {
	cfg Config

	hpA float64
	lpB float64

	preXPrev float64
	hpXPrev  float64
	hpYPrev  float64
	lpYPrev  float64
}

// NewConditioner creates a conditioner for a stream at sampleRate Hz.
func NewConditioner(cfg Config, sampleRate int) *Conditioner {
	c := &Conditioner{cfg: cfg}
	dt := 1.0 / float64(sampleRate)
	rcHP := 1.0 / (2.0 * math.Pi * math.Max(minCutoffHz, cfg.HighPassHz))
	c.hpA = rcHP / (rcHP + dt)
	rcLP := 1.0 / (2.0 * math.Pi * math.Max(minCutoffHz, cfg.LowPassHz))
	c.lpB = dt / (rcLP + dt)
	return c
}

// Process conditions one block and returns a new slice of the same length.
// The output is always within [-1, 1].
func (c *Conditioner) Process(block []float32) []float32 {
	out := make([]float32, len(block))
	copy(out, block)
	if len(out) == 0 {
		return out
	}

	if c.cfg.Enabled {
		if c.cfg.PreEmphasisEnabled {
			c.preEmphasis(out)
		}
		if c.cfg.HighPassEnabled {
			c.highPass(out)
		}
		if c.cfg.LowPassEnabled {
			c.lowPass(out)
		}
		if c.cfg.GateEnabled {
			c.noiseGate(out)
		}
		if c.cfg.AGCEnabled {
			c.agc(out)
		}
		if c.cfg.LimiterEnabled {
			clamp(out, c.cfg.LimiterThreshold)
		}
		if c.cfg.SoftClipEnabled {
			softClip(out)
		}
	}

	clamp(out, 1.0)
	return out
}

func (c *Conditioner) preEmphasis(x []float32) {
	a := c.cfg.PreEmphasis
	prev := c.preXPrev
	for i, v := range x {
		xi := float64(v)
		x[i] = float32(xi - a*prev)
		prev = xi
	}
	c.preXPrev = prev
}

func (c *Conditioner) highPass(x []float32) {
	a := c.hpA
	xPrev, yPrev := c.hpXPrev, c.hpYPrev
	for i, v := range x {
		xi := float64(v)
		yi := a * (yPrev + xi - xPrev)
		x[i] = float32(yi)
		yPrev, xPrev = yi, xi
	}
	c.hpXPrev, c.hpYPrev = xPrev, yPrev
}

func (c *Conditioner) lowPass(x []float32) {
	b := c.lpB
	y := c.lpYPrev
	for i, v := range x {
		y += b * (float64(v) - y)
		x[i] = float32(y)
	}
	c.lpYPrev = y
}

// noiseGate attenuates quiet blocks instead of muting them so the recognizer
// still hears the carrier between words.
func (c *Conditioner) noiseGate(x []float32) {
	if RMS(x) < c.cfg.GateRMS {
		scale(x, c.cfg.GateAttenuation)
	}
}

func (c *Conditioner) agc(x []float32) {
	rms := RMS(x)
	if rms <= agcMinRMS {
		return
	}
	gain := c.cfg.AGCTargetRMS / rms
	gain = math.Min(math.Max(gain, c.cfg.AGCMinGain), c.cfg.AGCMaxGain)
	scale(x, gain)
}

// RMS returns the root mean square of the block.
func RMS(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(x)) + rmsFloor)
}

func scale(x []float32, g float64) {
	for i, v := range x {
		x[i] = float32(float64(v) * g)
	}
}

func clamp(x []float32, limit float64) {
	hi, lo := float32(limit), float32(-limit)
	for i, v := range x {
		if v > hi {
			x[i] = hi
		} else if v < lo {
			x[i] = lo
		}
	}
}

func softClip(x []float32) {
	norm := math.Tanh(softClipK)
	for i, v := range x {
		x[i] = float32(math.Tanh(softClipK*float64(v)) / norm)
	}
}

// ToPCM16 converts samples in [-1, 1] to signed 16-bit little-endian PCM.
// Values are scaled by 32767 and truncated toward zero.
func ToPCM16(block []float32) []byte {
	out := make([]byte, len(block)*2)
	for i, v := range block {
		s := int16(float64(v) * pcm16Scale)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// FromPCM16 decodes signed 16-bit little-endian PCM into samples in [-1, 1).
// A trailing odd byte is ignored.
func FromPCM16(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}
