package sequencer

import (
	gomidi "gitlab.com/gomidi/midi/v2"

	"chance-machine/midi"
)

// Sink receives the events bound for external MIDI outputs. midi.Router is
// the production Sink.
type Sink interface {
	SendBlock(buf midi.Buffer) int
}

// Transformer turns the incoming host buffer into the outgoing one using the
// engine's decision for the block
type Transformer struct {
	sink    Sink
	ext     midi.Buffer // scratch for CC sends
	scratch []byte      // rechannelled message bytes, reused every block
}

// NewTransformer creates a transformer. A nil sink disables external output.
func NewTransformer(sink Sink) *Transformer {
	return &Transformer{
		sink:    sink,
		ext:     make(midi.Buffer, 0, 1),
		scratch: make([]byte, 0, 3*256),
	}
}

// Transform writes the outgoing events into out (reusing its storage) and
// hands the externally bound ones to the sink. Rewritten messages live in
// the transformer's scratch and stay valid until the next call.
//
// ForwardNote: note-ons pass only through an open gate, everything else
// always passes, channel messages move to cfg.Channel.
// CC and InvertedCC: incoming events are kept and one CC is added at offset
// 0 on each step boundary.
func (t *Transformer) Transform(in midi.Buffer, r Result, cfg *Config, out midi.Buffer) midi.Buffer {
	out = out[:0]
	channel := uint8(cfg.Channel)

	if cfg.Mode == ForwardNote {
		t.scratch = t.scratch[:0]
		for _, ev := range in {
			if midi.IsNoteOn(ev.Message) && !r.GateOpen {
				continue
			}
			var msg gomidi.Message
			t.scratch, msg = midi.AppendChannel(t.scratch, ev.Message, channel)
			out = append(out, midi.Event{Message: msg, Offset: ev.Offset})
		}
		if t.sink != nil && len(out) > 0 {
			t.sink.SendBlock(out)
		}
		return out
	}

	out = append(out, in...)
	if !r.Changed {
		return out
	}

	on := r.GateOpen
	if cfg.Mode == InvertedCC {
		on = !on
	}
	var value uint8
	if on {
		value = 127
	}
	cc := midi.ControlChange(channel, uint8(cfg.CCNumber), value)

	out = out.Add(cc, 0)
	if t.sink != nil {
		t.ext = append(t.ext[:0], midi.Event{Message: cc})
		t.sink.SendBlock(t.ext)
	}
	return out
}
