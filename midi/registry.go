package midi

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chance-machine/internal/check"
)

// DeviceEvent is emitted when outputs appear, disappear, open or close
type DeviceEvent struct {
	Type DeviceEventType
	Port PortInfo
	Err  error // set for DeviceOpenFailed
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
	DeviceOpened
	DeviceClosed
	DeviceOpenFailed
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceConnected:
		return "connected"
	case DeviceDisconnected:
		return "disconnected"
	case DeviceOpened:
		return "opened"
	case DeviceClosed:
		return "closed"
	case DeviceOpenFailed:
		return "open-failed"
	}
	return "unknown"
}

// OutputEntry is one known output endpoint. The sender is owned exclusively
// by the entry and is non-nil exactly while its goroutine runs.
type OutputEntry struct {
	Info   PortInfo
	port   Port
	sender *sender
}

// EntryView is a read-only copy of an entry for display
type EntryView struct {
	Info     PortInfo
	Open     bool
	Selected bool
	Stats    SendStats
}

// routeTable is the immutable snapshot the audio path reads
type routeTable struct {
	entries []*OutputEntry
	open    []*sender
}

// ReconcileResult describes what a reconcile pass changed
type ReconcileResult struct {
	Added   []PortInfo
	Removed []PortInfo
	Opened  []PortInfo
}

// Changed reports whether the pass touched anything
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Opened) > 0
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the registry's logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// WithSendBudget sets how long a routed message may wait for its output
func WithSendBudget(d time.Duration) Option {
	return func(r *Registry) {
		r.budget = d
	}
}

// WithQueueSize sets the per-output pending message bound
func WithQueueSize(n int) Option {
	return func(r *Registry) {
		r.queueSize = n
	}
}

// Registry is the authoritative list of MIDI outputs and their open state.
// Mutations are serialized by a mutex; the audio path only loads the
// published routeTable.
type Registry struct {
	system    System
	log       *zap.Logger
	budget    time.Duration
	queueSize int

	mu       sync.Mutex
	entries  []*OutputEntry
	selected string
	lastErr  error

	table  atomic.Pointer[routeTable]
	events chan DeviceEvent
}

// NewRegistry creates an empty registry over the given system
func NewRegistry(system System, opts ...Option) *Registry {
	r := &Registry{
		system:    system,
		log:       zap.NewNop(),
		budget:    DefaultSendBudget,
		queueSize: DefaultQueueSize,
		events:    make(chan DeviceEvent, 64),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.table.Store(&routeTable{})
	return r
}

// Events returns a channel of device events. Events are dropped when nobody
// keeps up with the channel.
func (r *Registry) Events() <-chan DeviceEvent {
	return r.events
}

// Refresh enumerates the system outputs and reconciles against them
func (r *Registry) Refresh() (ReconcileResult, error) {
	ports, err := r.system.Outputs()
	if err != nil {
		return ReconcileResult{}, err
	}
	return r.Reconcile(ports), nil
}

// Reconcile brings the entries in line with the system list: entries that
// disappeared are closed and removed, new ports are added closed, and the
// order follows the system order. If the selected output is present but
// closed, it is opened. Calling it again with the same list changes nothing.
func (r *Registry) Reconcile(ports []PortInfo) ReconcileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res ReconcileResult

	present := make(map[string]bool, len(ports))
	for _, p := range ports {
		present[p.ID] = true
	}

	byID := make(map[string]*OutputEntry, len(r.entries))
	for _, e := range r.entries {
		if !present[e.Info.ID] {
			if e.sender != nil {
				r.closeLocked(e)
			}
			res.Removed = append(res.Removed, e.Info)
			r.log.Info("output disappeared", zap.String("port", e.Info.ID))
			continue
		}
		byID[e.Info.ID] = e
	}

	next := make([]*OutputEntry, 0, len(ports))
	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		e, ok := byID[p.ID]
		if !ok {
			e = &OutputEntry{Info: p}
			res.Added = append(res.Added, p)
			r.log.Info("output appeared", zap.String("port", p.ID), zap.String("name", p.Name))
		}
		e.Info.Name = p.Name
		next = append(next, e)
	}
	r.entries = next

	if r.selected != "" {
		if e := r.findLocked(r.selected); e != nil && e.sender == nil {
			if err := r.openLocked(e); err == nil {
				res.Opened = append(res.Opened, e.Info)
			}
		}
	}

	r.publishLocked()

	for _, p := range res.Added {
		r.emit(DeviceEvent{Type: DeviceConnected, Port: p})
	}
	for _, p := range res.Removed {
		r.emit(DeviceEvent{Type: DeviceDisconnected, Port: p})
	}
	return res
}

// Differs reports whether ports is not exactly the current entry list
func (r *Registry) Differs(ports []PortInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(ports) != len(r.entries) {
		return true
	}
	for i, p := range ports {
		if r.entries[i].Info != p {
			return true
		}
	}
	return false
}

// SelectionPending reports whether the selected output is listed but not
// open, as after a failed open
func (r *Registry) SelectionPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == "" {
		return false
	}
	e := r.findLocked(r.selected)
	return e != nil && e.sender == nil
}

// Len returns the number of known outputs
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Open acquires the output and starts its send goroutine. Opening an open
// output is a no-op. A failure leaves the entry closed.
func (r *Registry) Open(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.findLocked(id)
	if e == nil {
		return fmt.Errorf("%w: %q", ErrPortNotFound, id)
	}
	if err := r.openLocked(e); err != nil {
		return err
	}
	r.publishLocked()
	return nil
}

// Close stops the output's send goroutine and releases the port. Closing a
// closed output is a caller error.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.findLocked(id)
	if e == nil {
		return fmt.Errorf("%w: %q", ErrPortNotFound, id)
	}
	check.Assertf(e.sender != nil, "Registry.Close: %q is not open", id)
	if e.sender == nil {
		return fmt.Errorf("%w: %q", ErrNotOpen, id)
	}
	r.closeLocked(e)
	r.publishLocked()
	return nil
}

// CloseAll closes every open output
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeAllLocked()
	r.publishLocked()
}

// Select closes all outputs, records id as the selection and opens it.
// An empty id means no external output. If id is not present right now the
// selection is kept and the output opens once a reconcile finds it.
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeAllLocked()
	r.selected = id
	r.lastErr = nil
	defer r.publishLocked()

	if id == "" {
		r.log.Info("output selection cleared")
		return nil
	}

	e := r.findLocked(id)
	if e == nil {
		r.log.Info("selected output not present, waiting for it", zap.String("port", id))
		return nil
	}
	return r.openLocked(e)
}

// Selected returns the selected output ID ("" for none)
func (r *Registry) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// LastError returns the most recent open failure, cleared by Select
func (r *Registry) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Entries returns a copy of the entry list for display
func (r *Registry) Entries() []EntryView {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]EntryView, len(r.entries))
	for i, e := range r.entries {
		views[i] = EntryView{
			Info:     e.Info,
			Open:     e.sender != nil,
			Selected: e.Info.ID == r.selected,
		}
		if e.sender != nil {
			views[i].Stats = e.sender.stats()
		}
	}
	return views
}

// OpenCount returns how many outputs are open
func (r *Registry) OpenCount() int {
	return len(r.table.Load().open)
}

// Shutdown closes every output. The registry stays usable.
func (r *Registry) Shutdown() {
	r.CloseAll()
}

func (r *Registry) findLocked(id string) *OutputEntry {
	for _, e := range r.entries {
		if e.Info.ID == id {
			return e
		}
	}
	return nil
}

func (r *Registry) openLocked(e *OutputEntry) error {
	if e.sender != nil {
		return nil
	}

	port, err := r.system.OpenOutput(e.Info.ID)
	if err != nil {
		r.lastErr = err
		r.log.Warn("open output failed", zap.String("port", e.Info.ID), zap.Error(err))
		r.emit(DeviceEvent{Type: DeviceOpenFailed, Port: e.Info, Err: err})
		return err
	}

	s := newSender(e.Info.ID, port, r.queueSize, r.budget, r.log)
	s.start()
	e.port = port
	e.sender = s
	r.lastErr = nil

	r.log.Info("output opened", zap.String("port", e.Info.ID))
	r.emit(DeviceEvent{Type: DeviceOpened, Port: e.Info})
	return nil
}

// closeLocked unpublishes the sender before stopping it so the audio path
// stops routing to it; messages already queued are drained.
func (r *Registry) closeLocked(e *OutputEntry) {
	s := e.sender
	e.sender = nil
	r.publishLocked()
	s.stop()

	if err := e.port.Close(); err != nil {
		r.log.Warn("close output failed", zap.String("port", e.Info.ID), zap.Error(err))
	}
	e.port = nil

	r.log.Info("output closed", zap.String("port", e.Info.ID))
	r.emit(DeviceEvent{Type: DeviceClosed, Port: e.Info})
}

func (r *Registry) closeAllLocked() {
	for _, e := range r.entries {
		if e.sender != nil {
			r.closeLocked(e)
		}
	}
}

func (r *Registry) publishLocked() {
	t := &routeTable{
		entries: append([]*OutputEntry(nil), r.entries...),
	}
	for _, e := range r.entries {
		if e.sender != nil {
			t.open = append(t.open, e.sender)
		}
	}
	r.table.Store(t)
}

func (r *Registry) emit(ev DeviceEvent) {
	select {
	case r.events <- ev:
	default:
	}
}
