package midi

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSendBudget is how long a queued message may wait before it is
	// abandoned for that output.
	DefaultSendBudget = time.Second
	// DefaultQueueSize bounds each output's pending messages.
	DefaultQueueSize = 256
)

// ErrQueueFull is returned by QueuedPort.Send when the message was dropped
var ErrQueueFull = errors.New("MIDI send queue full")

// pending holds short messages by value so callers may reuse their buffers
// once enqueue returns. Longer messages (sysex) are kept by reference.
type pending struct {
	short    [3]byte
	n        int
	long     []byte
	deadline time.Time
}

func (p *pending) bytes() []byte {
	if p.long != nil {
		return p.long
	}
	return p.short[:p.n]
}

// sender owns one opened Port and performs its blocking writes on a
// dedicated goroutine. Enqueue never blocks.
type sender struct {
	id     string
	port   Port
	queue  chan pending
	quit   chan struct{}
	done   chan struct{}
	budget time.Duration
	log    *zap.Logger
	now    func() time.Time

	stopOnce sync.Once
	sent     atomic.Uint64
	dropped  atomic.Uint64
	expired  atomic.Uint64
	failed   atomic.Uint64
}

func newSender(id string, port Port, queueSize int, budget time.Duration, log *zap.Logger) *sender {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if budget <= 0 {
		budget = DefaultSendBudget
	}
	return &sender{
		id:     id,
		port:   port,
		queue:  make(chan pending, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		budget: budget,
		log:    log,
		now:    time.Now,
	}
}

// start launches the send goroutine
func (s *sender) start() {
	go s.loop()
}

// enqueue hands msg to the send goroutine. A full queue drops the message.
func (s *sender) enqueue(msg []byte) bool {
	p := pending{deadline: s.now().Add(s.budget)}
	if len(msg) <= len(p.short) {
		p.n = copy(p.short[:], msg)
	} else {
		p.long = msg
	}
	select {
	case s.queue <- p:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// stop asks the goroutine to drain what is queued and exit, then waits for it
func (s *sender) stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}

func (s *sender) loop() {
	defer close(s.done)
	for {
		select {
		case p := <-s.queue:
			s.write(p)
		case <-s.quit:
			s.drain()
			return
		}
	}
}

func (s *sender) drain() {
	for {
		select {
		case p := <-s.queue:
			s.write(p)
		default:
			return
		}
	}
}

func (s *sender) write(p pending) {
	if s.now().After(p.deadline) {
		s.expired.Add(1)
		s.log.Debug("send budget exceeded, message abandoned", zap.String("port", s.id))
		return
	}
	if err := s.port.Send(p.bytes()); err != nil {
		s.failed.Add(1)
		s.log.Warn("send failed", zap.String("port", s.id), zap.Error(err))
		return
	}
	s.sent.Add(1)
}

// SendStats counts what happened to messages routed to one output
type SendStats struct {
	Sent    uint64
	Dropped uint64 // queue full
	Expired uint64 // waited longer than the send budget
	Failed  uint64 // port returned an error
}

func (s *sender) stats() SendStats {
	return SendStats{
		Sent:    s.sent.Load(),
		Dropped: s.dropped.Load(),
		Expired: s.expired.Load(),
		Failed:  s.failed.Load(),
	}
}

// QueuedPort gives a single Port its own send goroutine, the same way the
// registry does for selected outputs. Send never blocks.
type QueuedPort struct {
	s *sender
}

// NewQueuedPort starts the send goroutine for port
func NewQueuedPort(id string, port Port, log *zap.Logger) *QueuedPort {
	if log == nil {
		log = zap.NewNop()
	}
	s := newSender(id, port, DefaultQueueSize, DefaultSendBudget, log)
	s.start()
	return &QueuedPort{s: s}
}

// Send enqueues msg. It returns ErrQueueFull if the message was dropped.
func (q *QueuedPort) Send(msg []byte) error {
	if !q.s.enqueue(msg) {
		return ErrQueueFull
	}
	return nil
}

// Close drains the queue, stops the goroutine and closes the port
func (q *QueuedPort) Close() error {
	q.s.stop()
	return q.s.port.Close()
}

// Stats returns the port's send counters
func (q *QueuedPort) Stats() SendStats {
	return q.s.stats()
}
