package audio

import (
	"os"
	"testing"

	"golang.org/x/term"
)

type stubContext struct {
	devices []DeviceInfo
}

func (c *stubContext) Devices() ([]DeviceInfo, error) { return c.devices, nil }
func (c *stubContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return &stubDevice{}, nil
}
func (c *stubContext) Close() {}

func TestSelectDeviceSingleCandidate(t *testing.T) {
	ctx := &stubContext{devices: []DeviceInfo{{ID: "a", Name: "Built-in Microphone"}}}
	dev, err := SelectDevice(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dev.ID != "a" {
		t.Errorf("device = %+v", dev)
	}
}

func TestSelectDeviceNonInteractive(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("stdin is a terminal")
	}
	ctx := &stubContext{devices: []DeviceInfo{
		{ID: "a", Name: "USB Audio"},
		{ID: "b", Name: "AirPods Pro"},
	}}
	dev, err := SelectDevice(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dev.ID != "a" {
		t.Errorf("device = %+v, want the first candidate", dev)
	}
}

func TestSelectDeviceNoDevices(t *testing.T) {
	if _, err := SelectDevice(&stubContext{}); err == nil {
		t.Fatal("expected error with no devices")
	}
}

func TestDecodeKey(t *testing.T) {
	cases := []struct {
		buf  []byte
		want pickerKey
	}{
		{[]byte{13}, keyConfirm},
		{[]byte{3}, keyAbort},
		{[]byte{'j'}, keyDown},
		{[]byte{'k'}, keyUp},
		{[]byte{'x'}, keyNone},
		{[]byte{0x1b, '[', 'A'}, keyUp},
		{[]byte{0x1b, '[', 'B'}, keyDown},
		{[]byte{0x1b, '[', 'C'}, keyNone},
	}
	for _, c := range cases {
		if got := decodeKey(c.buf, len(c.buf)); got != c.want {
			t.Errorf("decodeKey(%v) = %v, want %v", c.buf, got, c.want)
		}
	}
}
