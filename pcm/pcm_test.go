package pcm

import (
	"encoding/binary"
	"math"
	"testing"
)

func sine(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(rate)))
	}
	return out
}

// zeroCrossings estimates dominant frequency: crossings/2 cycles over the
// signal duration.
func zeroCrossings(samples []float32) int {
	n := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] < 0) != (samples[i] < 0) {
			n++
		}
	}
	return n
}

func TestResampleLength(t *testing.T) {
	for _, rate := range []int{44100, 48000, 22050, 16000, 8000} {
		in := make([]float32, rate) // one second
		got := Resample(in, rate)
		if len(got) != TargetRate {
			t.Errorf("rate %d: output length = %d, want %d", rate, len(got), TargetRate)
		}
	}
}

func TestResamplePreservesFrequency(t *testing.T) {
	for _, rate := range []int{44100, 48000, 22050} {
		const freq = 440.0
		in := sine(freq, rate, rate) // one second
		out := Resample(in, rate)

		seconds := float64(len(out)) / float64(TargetRate)
		gotFreq := float64(zeroCrossings(out)) / 2 / seconds
		if math.Abs(gotFreq-freq) > 2 {
			t.Errorf("rate %d: dominant frequency = %.1f Hz, want %.1f", rate, gotFreq, freq)
		}
	}
}

func TestResamplePassthrough(t *testing.T) {
	in := sine(100, TargetRate, 1024)
	out := Resample(in, TargetRate)
	if len(out) != len(in) {
		t.Fatalf("length changed on passthrough: %d != %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed on passthrough", i)
		}
	}
}

func TestQuantizeRoundTrip(t *testing.T) {
	in := []float32{-1, -0.5, -0.001, 0, 0.001, 0.5, 0.999, 1}
	data := Quantize(in)
	if len(data) != len(in)*2 {
		t.Fatalf("output length = %d, want %d", len(data), len(in)*2)
	}
	for i, want := range in {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		var got float32
		if v < 0 {
			got = float32(v) / 32768
		} else {
			got = float32(v) / 32767
		}
		if math.Abs(float64(got-want)) > 1.0/32767 {
			t.Errorf("sample %d: round-trip %v -> %v", i, want, got)
		}
	}
}

func TestQuantizeClamps(t *testing.T) {
	data := Quantize([]float32{2.5, -3})
	hi := int16(binary.LittleEndian.Uint16(data[0:]))
	lo := int16(binary.LittleEndian.Uint16(data[2:]))
	if hi != 32767 {
		t.Errorf("positive overflow quantized to %d, want 32767", hi)
	}
	if lo != -32768 {
		t.Errorf("negative overflow quantized to %d, want -32768", lo)
	}
}

func TestDownmix(t *testing.T) {
	// ch0 = 0.5, ch1 = -0.5 averages to 0; ch0 = 1, ch1 = 0 averages to 0.5
	in := []float32{0.5, -0.5, 1, 0}
	out := Downmix(in)
	if len(out) != 2 {
		t.Fatalf("length = %d, want 2", len(out))
	}
	if out[0] != 0 || out[1] != 0.5 {
		t.Errorf("got %v, want [0 0.5]", out)
	}
}

func TestBlockSizeFor(t *testing.T) {
	for _, tt := range []struct {
		rate, want int
	}{
		{48000, 2048}, // 42.7 ms, closest to 50 ms
		{44100, 2048}, // 46.4 ms
		{16000, 1024}, // 64 ms beats 512's 32 ms
		{8000, 512},
	} {
		if got := BlockSizeFor(tt.rate); got != tt.want {
			t.Errorf("BlockSizeFor(%d) = %d, want %d", tt.rate, got, tt.want)
		}
	}
}

func TestPipelineProcess(t *testing.T) {
	p, err := NewPipeline(48000)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p.BlockSize() != 2048 {
		t.Errorf("BlockSize = %d, want 2048", p.BlockSize())
	}

	block := make([]float32, p.BlockSize()*2)
	for i := 0; i < len(block); i += 2 {
		s := float32(math.Sin(2 * math.Pi * 200 * float64(i/2) / 48000))
		block[i] = s
		block[i+1] = s
	}
	frame := p.Process(block)

	wantLen := p.BlockSize() * TargetRate / 48000 * 2
	if len(frame) != wantLen {
		t.Errorf("frame length = %d, want %d", len(frame), wantLen)
	}
}

func TestNewPipelineRejectsBadRate(t *testing.T) {
	if _, err := NewPipeline(0); err == nil {
		t.Error("expected error for zero rate")
	}
}
