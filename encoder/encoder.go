// Package encoder turns captured call audio into the durable recording
// artifact. The encoder runs at the mix engine's native rate and channel
// count; the transcription path has its own, lossier format.
package encoder

// Encoder accumulates interleaved 16-bit PCM blocks into an encoded
// artifact. Implementations are safe for use from the mix goroutine.
type Encoder interface {
	// EncodeBlock consumes one interleaved block; len must be a multiple
	// of the channel count.
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	ContentType() string
	// TotalFrames is the number of frames (samples per channel) encoded.
	TotalFrames() uint64
}
