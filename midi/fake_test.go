package midi

import (
	"errors"
	"sync"
)

type fakePort struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	block  chan struct{} // when non-nil, Send waits for it to close
	err    error
}

func (p *fakePort) Send(msg []byte) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, append([]byte(nil), msg...))
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) Sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.sent...)
}

func (p *fakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeSystem struct {
	mu      sync.Mutex
	ports   []PortInfo
	listErr error
	hang    chan struct{}
	openErr map[string]error
	opened  map[string][]*fakePort
	block   map[string]chan struct{}
}

func newFakeSystem(ports ...PortInfo) *fakeSystem {
	return &fakeSystem{
		ports:   ports,
		openErr: make(map[string]error),
		opened:  make(map[string][]*fakePort),
		block:   make(map[string]chan struct{}),
	}
}

func (s *fakeSystem) Outputs() ([]PortInfo, error) {
	if s.hang != nil {
		<-s.hang
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]PortInfo(nil), s.ports...), nil
}

func (s *fakeSystem) OpenOutput(id string) (Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openErr[id]; err != nil {
		return nil, err
	}
	found := false
	for _, p := range s.ports {
		if p.ID == id {
			found = true
		}
	}
	if !found {
		return nil, ErrPortNotFound
	}
	p := &fakePort{block: s.block[id]}
	s.opened[id] = append(s.opened[id], p)
	return p, nil
}

func (s *fakeSystem) setPorts(ports ...PortInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports = ports
}

// last returns the most recently opened port for id
func (s *fakeSystem) last(id string) *fakePort {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.opened[id]
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

func (s *fakeSystem) openCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opened[id])
}

var errBusy = errors.New("device busy")

func port(id string) PortInfo {
	return PortInfo{ID: id, Name: id}
}
