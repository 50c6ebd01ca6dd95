// Package pcm converts raw mixed audio blocks into the wire format the
// streaming transcription service expects: mono, 16 kHz, 16-bit signed
// little-endian PCM.
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TargetRate is the sample rate the transcription service is tuned for.
const TargetRate = 16000

// targetBlockDur is the per-block cadence the service prefers.
const targetBlockDur = 0.050

// Candidate processing block sizes, in frames per channel.
var blockSizeCandidates = []int{256, 512, 1024, 2048, 4096, 8192, 16384}

// BlockSizeFor picks the candidate block size whose duration at nativeRate
// is closest to 50 ms.
func BlockSizeFor(nativeRate int) int {
	best := blockSizeCandidates[0]
	bestDiff := math.Inf(1)
	for _, n := range blockSizeCandidates {
		diff := math.Abs(float64(n)/float64(nativeRate) - targetBlockDur)
		if diff < bestDiff {
			bestDiff = diff
			best = n
		}
	}
	return best
}

// Downmix averages channel 0 and channel 1 of an interleaved stereo block
// into a mono signal. Simple averaging, not loudness-weighted; speech
// transcription does not need broadcast mixing.
func Downmix(interleaved []float32) []float32 {
	mono := make([]float32, len(interleaved)/2)
	for i := range mono {
		mono[i] = (interleaved[2*i] + interleaved[2*i+1]) / 2
	}
	return mono
}

// Resample linearly interpolates mono samples from nativeRate to TargetRate.
// For output index i the source position is i*(nativeRate/TargetRate); the
// output is the linear blend of the two bounding native samples. Cheap
// enough to run per audio callback; quality is fine for speech-to-text.
func Resample(samples []float32, nativeRate int) []float32 {
	if nativeRate == TargetRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(nativeRate) / float64(TargetRate)
	outLen := len(samples) * TargetRate / nativeRate
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		i0 := int(pos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(i0))
		out[i] = samples[i0]*(1-frac) + samples[i0+1]*frac
	}
	return out
}

// QuantizeInt16 clamps each sample to [-1, 1] and scales to 16-bit signed
// PCM. The scale is asymmetric (32767 positive, 32768 negative) to match the
// full int16 range.
func QuantizeInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// Quantize is QuantizeInt16 emitted as little-endian bytes, the transcription
// wire format.
func Quantize(samples []float32) []byte {
	ints := QuantizeInt16(samples)
	out := make([]byte, len(ints)*2)
	for i, v := range ints {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Pipeline is the per-call transform from interleaved stereo float blocks at
// the engine's native rate to s16le mono frames at TargetRate. All state is
// precomputed at construction so Process never inspects anything mutable;
// the audio callback must not block or branch on shared state.
type Pipeline struct {
	nativeRate int
	blockSize  int
}

func NewPipeline(nativeRate int) (*Pipeline, error) {
	if nativeRate <= 0 {
		return nil, fmt.Errorf("pcm: invalid native rate %d", nativeRate)
	}
	return &Pipeline{
		nativeRate: nativeRate,
		blockSize:  BlockSizeFor(nativeRate),
	}, nil
}

// NativeRate returns the capture rate the pipeline was built for.
func (p *Pipeline) NativeRate() int { return p.nativeRate }

// BlockSize returns the processing block size, in frames per channel.
func (p *Pipeline) BlockSize() int { return p.blockSize }

// Process converts one interleaved stereo block into a PCM frame.
func (p *Pipeline) Process(interleaved []float32) []byte {
	return Quantize(Resample(Downmix(interleaved), p.nativeRate))
}
