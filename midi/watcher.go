package midi

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPollRate is how often the watcher re-enumerates outputs
	DefaultPollRate = 500 * time.Millisecond
	// DefaultScanTimeout bounds one enumeration; some backends hang
	DefaultScanTimeout = 3 * time.Second
)

// Watcher polls the system output list and reconciles the registry when it
// changes
type Watcher struct {
	reg      *Registry
	system   System
	pollRate time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithPollRate sets the polling interval
func WithPollRate(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollRate = d
	}
}

// WithScanTimeout sets how long one enumeration may take
func WithScanTimeout(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.timeout = d
	}
}

// WithWatcherLogger sets the watcher's logger
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = l
	}
}

// NewWatcher creates a watcher for reg
func NewWatcher(reg *Registry, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		reg:      reg,
		system:   reg.system,
		pollRate: DefaultPollRate,
		timeout:  DefaultScanTimeout,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is done, then closes every output (blocking - run in goroutine)
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()

	w.Scan()

	for {
		select {
		case <-ctx.Done():
			w.reg.Shutdown()
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}

// Scan enumerates once and reconciles if the list differs from the
// registry, the registry is empty or the selected output still has to be
// opened. It reports whether it reconciled.
func (w *Watcher) Scan() bool {
	type result struct {
		ports []PortInfo
		err   error
	}

	ch := make(chan result, 1)
	go func() {
		ports, err := w.system.Outputs()
		ch <- result{ports: ports, err: err}
	}()

	var ports []PortInfo
	select {
	case res := <-ch:
		if res.err != nil {
			w.log.Warn("enumerate outputs failed", zap.Error(res.err))
			return false
		}
		ports = res.ports
	case <-time.After(w.timeout):
		w.log.Warn("enumerate outputs timed out, skipping scan", zap.Duration("timeout", w.timeout))
		return false
	}

	if !w.reg.Differs(ports) && w.reg.Len() > 0 && !w.reg.SelectionPending() {
		return false
	}
	w.reg.Reconcile(ports)
	return true
}
