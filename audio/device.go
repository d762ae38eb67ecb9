package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrPickerCancelled = errors.New("device selection cancelled")

// FindDevice resolves a configured device name. Matching is case-insensitive
// and accepts a unique substring; an empty name means the system default.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	want := strings.ToLower(name)
	var matches []DeviceInfo
	for _, d := range devices {
		lower := strings.ToLower(d.Name)
		if lower == want || d.ID == name {
			return &d, nil
		}
		if strings.Contains(lower, want) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no device matches %q", ErrDeviceUnavailable, name)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("device %q is ambiguous (%d matches)", name, len(matches))
	}
}

// PickDevice shows an arrow-key picker on the terminal. With a single device
// it returns that device without prompting.
func PickDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no capture devices found", ErrDeviceUnavailable)
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := &picker{devices: devices, out: os.Stdout}
	idx, err := p.run(os.Stdin)
	if err != nil {
		return nil, err
	}
	return &devices[idx], nil
}

type picker struct {
	devices []DeviceInfo
	cursor  int
	out     io.Writer
}

func (p *picker) render() {
	fmt.Fprint(p.out, "\r\x1b[J")
	fmt.Fprint(p.out, "Select microphone (↑/↓, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range p.devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[bluetooth, lower quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(p.out, "  \x1b[1;32m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(p.out, "    %s%s\r\n", d.Name, tag)
		}
	}
}

func (p *picker) up() {
	if p.cursor > 0 {
		p.cursor--
	}
}

func (p *picker) down() {
	if p.cursor < len(p.devices)-1 {
		p.cursor++
	}
}

// run reads raw key input until a choice is made.
func (p *picker) run(in io.Reader) (int, error) {
	p.render()
	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}
		switch {
		case n == 1 && buf[0] == '\r', n == 1 && buf[0] == '\n':
			fmt.Fprint(p.out, "\r\n")
			return p.cursor, nil
		case n == 1 && (buf[0] == 3 || buf[0] == 'q'):
			fmt.Fprint(p.out, "\r\n")
			return 0, ErrPickerCancelled
		case n == 1 && buf[0] == 'j':
			p.down()
		case n == 1 && buf[0] == 'k':
			p.up()
		case n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'A':
			p.up()
		case n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'B':
			p.down()
		}
		fmt.Fprintf(p.out, "\x1b[%dA", len(p.devices)+2)
		p.render()
	}
}
