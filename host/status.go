package host

import (
	"fmt"

	"chance-machine/midi"
)

// DeviceStatus returns the status message a device event should leave
// behind. ok is false when the event does not affect the status.
func DeviceStatus(ev midi.DeviceEvent, selected string) (msg string, ok bool) {
	switch ev.Type {
	case midi.DeviceOpenFailed:
		return fmt.Sprintf("Could not open %s: %v", ev.Port.Name, ev.Err), true
	case midi.DeviceOpened:
		return "", true
	case midi.DeviceDisconnected:
		if ev.Port.ID == selected {
			return fmt.Sprintf("%s disconnected, waiting for it to return", ev.Port.Name), true
		}
	}
	return "", false
}
