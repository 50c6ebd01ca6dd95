package audio

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

type pickerKey int

const (
	keyNone pickerKey = iota
	keyUp
	keyDown
	keyConfirm
	keyAbort
)

// decodeKey maps one raw stdin read to a picker action. Arrow keys arrive as
// 3-byte escape sequences; j/k mirror them for vim hands.
func decodeKey(buf []byte, n int) pickerKey {
	if n == 1 {
		switch buf[0] {
		case 13:
			return keyConfirm
		case 3: // Ctrl+C
			return keyAbort
		case 'j':
			return keyDown
		case 'k':
			return keyUp
		}
		return keyNone
	}
	if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
		switch buf[2] {
		case 'A':
			return keyUp
		case 'B':
			return keyDown
		}
	}
	return keyNone
}

// SelectDevice returns the capture device to record the call from. With a
// single candidate, or without a terminal to ask on, it picks the platform's
// first device; otherwise it prompts interactively.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}

	fd := int(os.Stdin.Fd())
	if len(devices) == 1 || !term.IsTerminal(fd) {
		return &devices[0], nil
	}

	return promptDevice(devices, fd)
}

func promptDevice(devices []DeviceInfo, fd int) (*DeviceInfo, error) {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderDevices(devices, cursor)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		switch decodeKey(buf, n) {
		case keyConfirm:
			fmt.Print("\r\n")
			term.Restore(fd, oldState)
			return &devices[cursor], nil
		case keyAbort:
			fmt.Print("\r\n")
			term.Restore(fd, oldState)
			os.Exit(130)
		case keyUp:
			if cursor > 0 {
				cursor--
			}
		case keyDown:
			if cursor < len(devices)-1 {
				cursor++
			}
		}

		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderDevices(devices, cursor)
	}
}

func renderDevices(devices []DeviceInfo, cursor int) {
	fmt.Print("\r\x1b[J")
	fmt.Print("Select call microphone (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range devices {
		btTag := ""
		if IsBluetooth(d.Name) {
			btTag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
		}
		if i == cursor {
			fmt.Printf("  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
		} else {
			fmt.Printf("    %s%s\r\n", d.Name, btTag)
		}
	}
}
