package sequencer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_RejectsInvalidAndKeepsLive(t *testing.T) {
	p, err := NewParams(DefaultConfig())
	require.NoError(t, err)
	before := p.Snapshot()

	var cerr *ConfigError
	require.ErrorAs(t, p.SetReset(0), &cerr)
	assert.Equal(t, ErrCodeReset, cerr.Code)
	require.ErrorAs(t, p.SetCondition(2, "5:4"), &cerr)
	require.ErrorAs(t, p.SetChance(16, 50), &cerr)
	assert.Equal(t, ErrCodeStepIndex, cerr.Code)
	require.ErrorAs(t, p.SetStepLength("1/3"), &cerr)

	assert.Same(t, before, p.Snapshot())
	assert.Empty(t, p.Changed())
}

func TestParams_Setters(t *testing.T) {
	p, err := NewParams(DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, p.SetChance(2, 40))
	require.NoError(t, p.SetCondition(2, "2:4"))
	require.NoError(t, p.SetStepLength("1 / 8"))
	require.NoError(t, p.SetReset(4))
	require.NoError(t, p.SetMode(InvertedCC))
	require.NoError(t, p.SetCCNumber(74))
	require.NoError(t, p.SetChannel(10))

	cfg := p.Snapshot()
	assert.Equal(t, Step{Chance: 40, Condition: TriggerCondition{2, 4}}, cfg.Steps[2])
	assert.Equal(t, StepEighth, cfg.StepLength)
	assert.Equal(t, 4, cfg.Reset)
	assert.Equal(t, InvertedCC, cfg.Mode)
	assert.Equal(t, 74, cfg.CCNumber)
	assert.Equal(t, 10, cfg.Channel)

	select {
	case <-p.Changed():
	default:
		t.Fatal("expected a change notification")
	}
}

func TestParams_SnapshotsAreImmutable(t *testing.T) {
	p, err := NewParams(DefaultConfig())
	require.NoError(t, err)
	old := p.Snapshot()
	require.NoError(t, p.SetChance(0, 10))
	assert.Equal(t, 100, old.Steps[0].Chance)
	assert.Equal(t, 10, p.Snapshot().Steps[0].Chance)
}

func TestParams_ConcurrentReaders(t *testing.T) {
	p, err := NewParams(DefaultConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = p.SetChance(i%NumSteps, i%101)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			cfg := p.Snapshot()
			assert.NoError(t, cfg.Validate())
		}
	}()
	wg.Wait()
}

func TestNewParams_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channel = 0
	_, err := NewParams(cfg)
	assert.Error(t, err)
}
