package main

import (
	"fmt"
	"io"

	"earthprint/audio"
)

// resolveDevice picks the capture device: the interactive picker when pick
// is set, else a name match, else nil for the system default.
func resolveDevice(ctx audio.Context, name string, pick bool) (*audio.DeviceInfo, error) {
	if pick {
		return audio.PickDevice(ctx)
	}
	return audio.FindDevice(ctx, name)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func listDevices(out io.Writer, ctx audio.Context, selected *audio.DeviceInfo) error {
	devices, err := ctx.Devices()
	if err != nil {
		return fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "no capture devices found")
		return nil
	}
	for _, d := range devices {
		marker := " "
		if selected != nil && d.ID == selected.ID {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s", marker, d.Name)
		if audio.IsBluetooth(d.Name) {
			line += "  (bluetooth)"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
