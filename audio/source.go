package audio

import "encoding/binary"

// CaptureSource feeds mono capture data into the mixer as float32 samples.
type CaptureSource struct {
	device CaptureDevice
}

func NewCaptureSource(device CaptureDevice) *CaptureSource {
	return &CaptureSource{device: device}
}

func (s *CaptureSource) Start(deliver func([]float32)) error {
	s.device.SetCallback(func(data []byte, frameCount uint32) {
		n := len(data) / 2
		if n == 0 {
			return
		}
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		}
		deliver(samples)
	})
	return s.device.Start()
}

func (s *CaptureSource) Stop() {
	s.device.ClearCallback()
	s.device.Stop()
}
