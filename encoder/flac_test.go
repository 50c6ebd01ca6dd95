package encoder

import (
	"math"
	"testing"
)

func TestFlacEncoderStereo(t *testing.T) {
	const (
		rate      = 48000
		blockSize = 2048
	)
	enc, err := NewFlac(rate, 2, blockSize)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	block := make([]int16, blockSize*2)
	for i := 0; i < blockSize; i++ {
		s := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/rate))
		block[i*2] = s
		block[i*2+1] = -s
	}

	var totalFed uint64
	for i := 0; i < 10; i++ {
		if err := enc.EncodeBlock(block); err != nil {
			t.Fatalf("EncodeBlock %d: %v", i, err)
		}
		totalFed += blockSize
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if enc.TotalFrames() != totalFed {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), totalFed)
	}

	data := enc.Bytes()
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
	if enc.ContentType() != "audio/flac" {
		t.Errorf("ContentType = %q", enc.ContentType())
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac(16000, 1, 1024)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
}

func TestFlacEncoderRejectsOddBlock(t *testing.T) {
	enc, err := NewFlac(48000, 2, 1024)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.EncodeBlock(make([]int16, 3)); err == nil {
		t.Error("expected error for block not divisible by channel count")
	}
}

func TestFlacEncoderRejectsBadChannels(t *testing.T) {
	if _, err := NewFlac(48000, 3, 1024); err == nil {
		t.Error("expected error for 3 channels")
	}
}
