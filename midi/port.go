package midi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Error definitions for output enumeration and opening.
var (
	ErrNoOutputs    = errors.New("no MIDI outputs found")
	ErrPortNotFound = errors.New("MIDI output not found")
	ErrOpenFailed   = errors.New("error opening MIDI output")
	ErrNotOpen      = errors.New("MIDI output is not open")
)

// PortInfo identifies an output endpoint as reported by the system
type PortInfo struct {
	ID   string // stable identity, used for selection and persistence
	Name string // display name
}

// Port is an opened output endpoint. Send may block.
type Port interface {
	Send(msg []byte) error
	Close() error
}

// System enumerates and opens MIDI outputs
type System interface {
	Outputs() ([]PortInfo, error)
	OpenOutput(id string) (Port, error)
}

// ExcludedPatterns are virtual/system ports that are never listed
var ExcludedPatterns = []string{"Midi Through", "Through Port"}

// DriverSystem is a System backed by a gomidi driver
type DriverSystem struct {
	mu  sync.Mutex
	drv drivers.Driver
}

// NewDriverSystem opens the rtmidi driver. Call Close when done.
func NewDriverSystem() (*DriverSystem, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &DriverSystem{drv: drv}, nil
}

// NewDriverSystemFrom wraps an existing gomidi driver
func NewDriverSystemFrom(drv drivers.Driver) *DriverSystem {
	return &DriverSystem{drv: drv}
}

// Driver exposes the underlying gomidi driver (for opening inputs)
func (s *DriverSystem) Driver() drivers.Driver {
	return s.drv
}

// Outputs lists output ports. Ports that share a name get a " #n" suffix on
// their ID so each identity stays unique.
func (s *DriverSystem) Outputs() ([]PortInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outs, err := s.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("list MIDI outputs: %w", err)
	}
	return portInfos(outs), nil
}

// OpenOutput finds the port with the given ID and opens it
func (s *DriverSystem) OpenOutput(id string) (Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outs, err := s.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("list MIDI outputs: %w", err)
	}

	infos := portInfos(outs)
	for i, info := range infos {
		if info.ID != id {
			continue
		}
		out := findOut(outs, info.Name, i)
		if out == nil {
			break
		}
		if err := out.Open(); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrOpenFailed, id, err)
		}
		return &driverPort{out: out}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, id)
}

// Close shuts down the driver
func (s *DriverSystem) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv.Close()
}

// portInfos filters excluded ports and assigns identities
func portInfos(outs []drivers.Out) []PortInfo {
	seen := make(map[string]int)
	var infos []PortInfo
	for _, out := range outs {
		name := out.String()
		if isExcluded(name) {
			continue
		}
		seen[name]++
		id := name
		if n := seen[name]; n > 1 {
			id = fmt.Sprintf("%s #%d", name, n)
		}
		infos = append(infos, PortInfo{ID: id, Name: name})
	}
	return infos
}

// findOut returns the port backing infos[idx] by walking outs in the same
// order portInfos did
func findOut(outs []drivers.Out, name string, idx int) drivers.Out {
	i := -1
	for _, out := range outs {
		if isExcluded(out.String()) {
			continue
		}
		i++
		if i == idx && out.String() == name {
			return out
		}
	}
	return nil
}

func isExcluded(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range ExcludedPatterns {
		if strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

type driverPort struct {
	out drivers.Out
}

func (p *driverPort) Send(msg []byte) error {
	return p.out.Send(msg)
}

func (p *driverPort) Close() error {
	return p.out.Close()
}
