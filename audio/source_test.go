package audio

import (
	"encoding/binary"
	"testing"
)

type stubDevice struct {
	cb      DataCallback
	started bool
	stopped bool
}

func (d *stubDevice) Start() error              { d.started = true; return nil }
func (d *stubDevice) Stop()                     { d.stopped = true }
func (d *stubDevice) Close()                    {}
func (d *stubDevice) SetCallback(cb DataCallback) { d.cb = cb }
func (d *stubDevice) ClearCallback()            { d.cb = nil }

func TestCaptureSourceConvertsSamples(t *testing.T) {
	dev := &stubDevice{}
	src := NewCaptureSource(dev)

	var got []float32
	if err := src.Start(func(samples []float32) { got = append(got, samples...) }); err != nil {
		t.Fatal(err)
	}
	if !dev.started {
		t.Fatal("device not started")
	}

	data := make([]byte, 6)
	negMax := int16(-32768)
	binary.LittleEndian.PutUint16(data[0:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(data[2:], uint16(negMax))
	binary.LittleEndian.PutUint16(data[4:], 0)
	dev.cb(data, 3)

	want := []float32{0.5, -1, 0}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}

	src.Stop()
	if !dev.stopped {
		t.Error("device not stopped")
	}
	if dev.cb != nil {
		t.Error("callback not cleared")
	}
}

func TestIsBluetooth(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Jabra Elite 85t", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
	}
	for _, c := range cases {
		if got := IsBluetooth(c.name); got != c.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}
