package midi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWatcher_ScanReconcilesOnlyOnChange(t *testing.T) {
	sys := newFakeSystem(port("a"))
	r := newTestRegistry(t, sys)
	w := NewWatcher(r, WithWatcherLogger(zaptest.NewLogger(t)))

	assert.True(t, w.Scan())
	assert.False(t, w.Scan())

	sys.setPorts(port("a"), port("b"))
	assert.True(t, w.Scan())
	assert.Equal(t, []string{"a", "b"}, ids(r.Entries()))
}

func TestWatcher_RetriesFailedSelection(t *testing.T) {
	sys := newFakeSystem(port("a"))
	sys.openErr["a"] = errBusy
	r := newTestRegistry(t, sys)
	_, err := r.Refresh()
	require.NoError(t, err)

	assert.ErrorIs(t, r.Select("a"), errBusy)
	assert.True(t, r.SelectionPending())

	w := NewWatcher(r, WithWatcherLogger(zaptest.NewLogger(t)))
	assert.True(t, w.Scan(), "busy output is retried with an unchanged list")
	assert.Equal(t, 0, r.OpenCount())

	sys.mu.Lock()
	delete(sys.openErr, "a")
	sys.mu.Unlock()

	assert.True(t, w.Scan())
	assert.Equal(t, 1, r.OpenCount())
	assert.False(t, r.SelectionPending())
	assert.False(t, w.Scan())
}

func TestWatcher_EmptyRegistryAlwaysReconciles(t *testing.T) {
	r := newTestRegistry(t, newFakeSystem())
	w := NewWatcher(r)
	assert.True(t, w.Scan())
	assert.True(t, w.Scan())
}

func TestWatcher_ListErrorSkipsScan(t *testing.T) {
	sys := newFakeSystem(port("a"))
	sys.listErr = errors.New("backend down")
	r := newTestRegistry(t, sys)
	assert.False(t, NewWatcher(r).Scan())
	assert.Equal(t, 0, r.Len())
}

func TestWatcher_HungEnumerationTimesOut(t *testing.T) {
	sys := newFakeSystem(port("a"))
	sys.hang = make(chan struct{})
	t.Cleanup(func() { close(sys.hang) })
	r := newTestRegistry(t, sys)

	w := NewWatcher(r, WithScanTimeout(20*time.Millisecond))
	start := time.Now()
	assert.False(t, w.Scan())
	assert.Less(t, time.Since(start), time.Second)
}

func TestWatcher_RunClosesOutputsOnCancel(t *testing.T) {
	sys := newFakeSystem(port("a"))
	r := newTestRegistry(t, sys)
	require.NoError(t, r.Select("a"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewWatcher(r, WithPollRate(5*time.Millisecond)).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.OpenCount() == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 0, r.OpenCount())
	assert.True(t, sys.last("a").Closed())
}
