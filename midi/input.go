package midi

import (
	"fmt"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// TimedMessage is an incoming message stamped with its arrival time
type TimedMessage struct {
	Msg gomidi.Message
	At  time.Time
}

// Input listens on one MIDI input port
type Input struct {
	id       string
	stopFunc func()
	msgs     chan TimedMessage
	dropped  atomic.Uint64
}

// ListInputs lists input ports, skipping excluded ones
func ListInputs(drv drivers.Driver) ([]PortInfo, error) {
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list MIDI inputs: %w", err)
	}
	var infos []PortInfo
	for _, in := range ins {
		name := in.String()
		if isExcluded(name) {
			continue
		}
		infos = append(infos, PortInfo{ID: name, Name: name})
	}
	return infos, nil
}

// OpenInput opens the input whose name contains match and starts listening
func OpenInput(drv drivers.Driver, match string) (*Input, error) {
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list MIDI inputs: %w", err)
	}

	var port drivers.In
	for _, in := range ins {
		if in.String() == match {
			port = in
			break
		}
	}
	if port == nil {
		return nil, fmt.Errorf("%w: input %q", ErrPortNotFound, match)
	}
	return listen(port)
}

func listen(port drivers.In) (*Input, error) {
	in := &Input{
		id:   port.String(),
		msgs: make(chan TimedMessage, 256),
	}

	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		select {
		case in.msgs <- TimedMessage{Msg: msg, At: time.Now()}:
		default:
			in.dropped.Add(1)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: input %q: %v", ErrOpenFailed, in.id, err)
	}
	in.stopFunc = stop
	return in, nil
}

func (in *Input) ID() string {
	return in.id
}

// Messages returns received messages; delivery drops when the reader lags
func (in *Input) Messages() <-chan TimedMessage {
	return in.msgs
}

// Dropped returns how many messages were discarded because nobody read them
func (in *Input) Dropped() uint64 {
	return in.dropped.Load()
}

// Drain returns everything received so far without blocking
func (in *Input) Drain(into []TimedMessage) []TimedMessage {
	for {
		select {
		case m := <-in.msgs:
			into = append(into, m)
		default:
			return into
		}
	}
}

func (in *Input) Close() error {
	if in.stopFunc != nil {
		in.stopFunc()
	}
	return nil
}
