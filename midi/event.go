package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0
)

// Event is a MIDI message placed at a sample offset inside one audio block
type Event struct {
	Message gomidi.Message
	Offset  int // sample offset within the block
}

// Buffer is the host MIDI buffer for one block, ordered by sample offset
type Buffer []Event

// Add appends an event, keeping the buffer ordered by offset. Events that
// share an offset keep their insertion order.
func (b Buffer) Add(msg gomidi.Message, offset int) Buffer {
	b = append(b, Event{Message: msg, Offset: offset})
	for i := len(b) - 1; i > 0 && b[i-1].Offset > b[i].Offset; i-- {
		b[i-1], b[i] = b[i], b[i-1]
	}
	return b
}

// IsChannelMessage reports whether msg carries a channel nibble (0x80-0xEF)
func IsChannelMessage(msg gomidi.Message) bool {
	return len(msg) > 0 && msg[0] >= 0x80 && msg[0] < 0xF0
}

// IsNoteOn reports whether msg starts a note (note-on with velocity > 0).
// A note-on with velocity 0 is a note-off.
func IsNoteOn(msg gomidi.Message) bool {
	var ch, key, vel uint8
	return msg.GetNoteStart(&ch, &key, &vel)
}

// WithChannel returns a copy of msg moved to the 1-based channel.
// Messages without a channel are returned unchanged.
func WithChannel(msg gomidi.Message, channel uint8) gomidi.Message {
	_, out := AppendChannel(nil, msg, channel)
	return out
}

// AppendChannel writes msg moved to the 1-based channel at the end of dst
// and returns the grown dst plus the moved message, which shares dst's
// storage. Messages without a channel are returned as is and dst is left
// alone.
func AppendChannel(dst []byte, msg gomidi.Message, channel uint8) ([]byte, gomidi.Message) {
	if !IsChannelMessage(msg) || channel < 1 || channel > 16 {
		return dst, msg
	}
	start := len(dst)
	dst = append(dst, msg...)
	out := gomidi.Message(dst[start:len(dst):len(dst)])
	out[0] = (msg[0] & 0xF0) | (channel - 1)
	return dst, out
}

// ControlChange builds a CC message on a 1-based channel
func ControlChange(channel, controller, value uint8) gomidi.Message {
	return gomidi.ControlChange(channel-1, controller, value)
}
