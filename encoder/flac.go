package encoder

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const bitsPerSample = 16

// FlacEncoder encodes lossless FLAC in memory, mono or stereo.
type FlacEncoder struct {
	buf         bytes.Buffer
	enc         *flac.Encoder
	rate        int
	channels    int
	totalFrames uint64
	mu          sync.Mutex
}

// NewFlac creates an encoder for the given sample rate and channel count.
// blockSize is the nominal frames-per-block the caller feeds.
func NewFlac(rate, channels, blockSize int) (*FlacEncoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("flac: unsupported channel count %d", channels)
	}
	e := &FlacEncoder{rate: rate, channels: channels}
	info := &meta.StreamInfo{
		BlockSizeMin:  uint16(blockSize),
		BlockSizeMax:  uint16(blockSize),
		SampleRate:    uint32(rate),
		NChannels:     uint8(channels),
		BitsPerSample: bitsPerSample,
		NSamples:      0,
	}
	enc, err := flac.NewEncoder(&e.buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

func (e *FlacEncoder) EncodeBlock(block []int16) error {
	if len(block)%e.channels != 0 {
		return fmt.Errorf("flac: block length %d not a multiple of %d channels", len(block), e.channels)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	nFrames := len(block) / e.channels
	channels := frame.ChannelsMono
	if e.channels == 2 {
		channels = frame.ChannelsLR
	}

	subframes := make([]*frame.Subframe, e.channels)
	for ch := 0; ch < e.channels; ch++ {
		samples := make([]int32, nFrames)
		for i := 0; i < nFrames; i++ {
			samples[i] = int32(block[i*e.channels+ch])
		}
		subframes[ch] = &frame.Subframe{
			SubHeader: frame.SubHeader{
				Pred: frame.PredVerbatim,
			},
			Samples:  samples,
			NSamples: nFrames,
		}
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(nFrames),
			SampleRate:    uint32(e.rate),
			Channels:      channels,
			BitsPerSample: bitsPerSample,
		},
		Subframes: subframes,
	}

	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.totalFrames += uint64(nFrames)
	return nil
}

func (e *FlacEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Close()
}

func (e *FlacEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Bytes()
}

func (e *FlacEncoder) ContentType() string { return "audio/flac" }

func (e *FlacEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}
