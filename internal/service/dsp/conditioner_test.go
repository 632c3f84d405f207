package dsp

import (
	"encoding/binary"
	"math"
	"testing"
)

func sineWave(n int, freq, amp float64, sampleRate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func filtersOnly() Config {
	cfg := DefaultConfig()
	cfg.GateEnabled = false
	cfg.AGCEnabled = false
	return cfg
}

func TestProcess_ChunkingDoesNotChangeOutput(t *testing.T) {
	input := sineWave(4000, 440, 0.4, 16000)
	for i := range input {
		// add some broadband content so every filter has work to do
		input[i] += float32(0.05 * math.Sin(float64(i)*1.7))
	}

	whole := NewConditioner(filtersOnly(), 16000).Process(input)

	chunkings := [][]int{
		{320},
		{1, 7, 100, 3},
		{4000},
		{999, 1},
	}

	for _, sizes := range chunkings {
		c := NewConditioner(filtersOnly(), 16000)
		var got []float32
		pos, k := 0, 0
		for pos < len(input) {
			n := sizes[k%len(sizes)]
			k++
			end := pos + n
			if end > len(input) {
				end = len(input)
			}
			got = append(got, c.Process(input[pos:end])...)
			pos = end
		}

		if len(got) != len(whole) {
			t.Fatalf("chunks %v: length %d, want %d", sizes, len(got), len(whole))
		}
		for i := range whole {
			if math.Float32bits(got[i]) != math.Float32bits(whole[i]) {
				t.Fatalf("chunks %v: sample %d = %v, want %v", sizes, i, got[i], whole[i])
			}
		}
	}
}

func TestProcess_AllStagesDisabledIsIdentity(t *testing.T) {
	cfg := Config{Enabled: true}
	c := NewConditioner(cfg, 16000)

	in := []float32{0, 0.25, -0.5, 0.999, -1}
	out := c.Process(in)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}

	off := NewConditioner(Config{Enabled: false, AGCEnabled: true, GateEnabled: true}, 16000)
	out = off.Process(in)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("master off: sample %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	in := sineWave(320, 1000, 0.3, 16000)
	orig := append([]float32(nil), in...)
	NewConditioner(DefaultConfig(), 16000).Process(in)
	for i := range in {
		if in[i] != orig[i] {
			t.Fatalf("input mutated at %d", i)
		}
	}
}

func TestProcess_FinalClampAlwaysApplies(t *testing.T) {
	c := NewConditioner(Config{}, 16000)
	out := c.Process([]float32{2, -3, 0.5})
	want := []float32{1, -1, 0.5}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestNoiseGate_AttenuatesQuietBlock(t *testing.T) {
	cfg := Config{Enabled: true, GateEnabled: true, GateRMS: 0.006, GateAttenuation: 0.35}
	c := NewConditioner(cfg, 16000)

	quiet := []float32{0.001, -0.001, 0.001, -0.001}
	out := c.Process(quiet)
	for i := range quiet {
		want := float32(float64(quiet[i]) * 0.35)
		if out[i] != want {
			t.Errorf("quiet sample %d = %v, want %v", i, out[i], want)
		}
	}

	loud := []float32{0.2, -0.2, 0.2, -0.2}
	out = c.Process(loud)
	for i := range loud {
		if out[i] != loud[i] {
			t.Errorf("loud sample %d = %v, want unchanged %v", i, out[i], loud[i])
		}
	}
}

func TestAGC(t *testing.T) {
	base := Config{Enabled: true, AGCEnabled: true, AGCTargetRMS: 0.045, AGCMinGain: 0.25, AGCMaxGain: 8}

	tests := []struct {
		name    string
		level   float32
		wantRMS float64
	}{
		{"boosts to target", 0.02, 0.045},
		{"gain capped at max", 0.001, 0.008},
		{"cut capped at min", 0.5, 0.125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := []float32{tt.level, -tt.level, tt.level, -tt.level}
			out := NewConditioner(base, 16000).Process(block)
			if got := RMS(out); math.Abs(got-tt.wantRMS) > 1e-4 {
				t.Errorf("RMS = %v, want %v", got, tt.wantRMS)
			}
		})
	}

	silent := make([]float32, 8)
	out := NewConditioner(base, 16000).Process(silent)
	for i, v := range out {
		if v != 0 {
			t.Errorf("silent sample %d = %v, want 0", i, v)
		}
	}
}

func TestLimiterAndSoftClip(t *testing.T) {
	lim := NewConditioner(Config{Enabled: true, LimiterEnabled: true, LimiterThreshold: 0.5}, 16000)
	out := lim.Process([]float32{0.9, -0.9, 0.1})
	if out[0] != 0.5 || out[1] != -0.5 || out[2] != 0.1 {
		t.Errorf("limiter output = %v", out)
	}

	sc := NewConditioner(Config{Enabled: true, SoftClipEnabled: true}, 16000)
	out = sc.Process([]float32{1, -1, 0})
	if math.Abs(float64(out[0])-1) > 1e-6 || math.Abs(float64(out[1])+1) > 1e-6 || out[2] != 0 {
		t.Errorf("soft clip should map full scale to full scale, got %v", out)
	}
}

func TestHighPass_RemovesDC(t *testing.T) {
	cfg := Config{Enabled: true, HighPassEnabled: true, HighPassHz: 250}
	c := NewConditioner(cfg, 16000)

	dc := make([]float32, 4000)
	for i := range dc {
		dc[i] = 0.5
	}
	out := c.Process(dc)
	if tail := math.Abs(float64(out[len(out)-1])); tail > 1e-3 {
		t.Errorf("DC should decay through the high-pass, tail = %v", tail)
	}
}

func TestProcess_EmptyBlock(t *testing.T) {
	out := NewConditioner(DefaultConfig(), 16000).Process(nil)
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d samples", len(out))
	}
}

func TestToPCM16(t *testing.T) {
	pcm := ToPCM16([]float32{1, -1, 0.5, -0.00001})
	want := []int16{32767, -32767, 16383, 0}
	if len(pcm) != len(want)*2 {
		t.Fatalf("len = %d, want %d", len(pcm), len(want)*2)
	}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestFromPCM16_RoundTrip(t *testing.T) {
	samples := FromPCM16(ToPCM16([]float32{0.25, -0.5}))
	if math.Abs(float64(samples[0])-0.25) > 1e-4 || math.Abs(float64(samples[1])+0.5) > 1e-4 {
		t.Errorf("round trip = %v", samples)
	}
	if got := FromPCM16([]byte{1, 2, 3}); len(got) != 1 {
		t.Errorf("odd byte should be ignored, got %d samples", len(got))
	}
}
