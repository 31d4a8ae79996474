// Package host stands in for a plugin host: it runs a wall-clock transport
// and calls the processor once per simulated audio block.
package host

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"chance-machine/midi"
	"chance-machine/sequencer"
)

const (
	MinTempo = 20
	MaxTempo = 300
)

// InputSource supplies the MIDI that arrived since the last block
type InputSource interface {
	Drain(into []midi.TimedMessage) []midi.TimedMessage
}

// Output receives the processor's host buffer, one message at a time. Send
// is called on the block goroutine and must not block; wrap device ports in
// midi.QueuedPort.
type Output interface {
	Send(msg []byte) error
}

// Options configures the simulated audio callback
type Options struct {
	SampleRate  int
	BlockSize   int
	Tempo       float64
	Numerator   int
	Denominator int
	Log         *zap.Logger
}

// DefaultOptions is 48kHz, 512-sample blocks, 120 BPM in 4/4
func DefaultOptions() Options {
	return Options{
		SampleRate:  48000,
		BlockSize:   512,
		Tempo:       sequencer.DefaultTempo,
		Numerator:   sequencer.DefaultNumerator,
		Denominator: sequencer.DefaultDenominator,
	}
}

// Host drives a Processor from a simulated transport
type Host struct {
	proc *sequencer.Processor
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	playing  bool
	tempo    float64
	position float64 // quarter notes at the start of the next block
	step     int
	input    InputSource
	output   Output

	pending []midi.TimedMessage
	inBuf   midi.Buffer
	blocks  uint64

	// Notify TUI of step changes and transport changes
	UpdateChan chan struct{}
}

// New creates a host around proc
func New(proc *sequencer.Processor, opts Options) *Host {
	def := DefaultOptions()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = def.BlockSize
	}
	if opts.Tempo <= 0 {
		opts.Tempo = def.Tempo
	}
	if opts.Numerator <= 0 || opts.Denominator <= 0 {
		opts.Numerator, opts.Denominator = def.Numerator, def.Denominator
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		proc:       proc,
		opts:       opts,
		log:        log,
		tempo:      clampTempo(opts.Tempo),
		inBuf:      make(midi.Buffer, 0, 64),
		UpdateChan: make(chan struct{}, 1),
	}
}

// Processor returns the hosted processor
func (h *Host) Processor() *sequencer.Processor {
	return h.proc
}

// BlockDuration is the wall-clock length of one block
func (h *Host) BlockDuration() time.Duration {
	return time.Duration(float64(h.opts.BlockSize) / float64(h.opts.SampleRate) * float64(time.Second))
}

// SetInput sets where incoming MIDI comes from (nil for none)
func (h *Host) SetInput(src InputSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.input = src
}

// SetOutput sets where the host buffer is written (nil to discard)
func (h *Host) SetOutput(out Output) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.output = out
}

// Play starts the transport from the top
func (h *Host) Play() {
	h.mu.Lock()
	if h.playing {
		h.mu.Unlock()
		return
	}
	h.playing = true
	h.position = 0
	h.proc.Restart()
	h.mu.Unlock()

	h.log.Info("transport started")
	h.notifyUpdate()
}

// Stop halts the transport; the playhead stays where it is
func (h *Host) Stop() {
	h.mu.Lock()
	if !h.playing {
		h.mu.Unlock()
		return
	}
	h.playing = false
	h.mu.Unlock()

	h.log.Info("transport stopped")
	h.notifyUpdate()
}

// Toggle switches between Play and Stop
func (h *Host) Toggle() {
	h.mu.Lock()
	playing := h.playing
	h.mu.Unlock()
	if playing {
		h.Stop()
	} else {
		h.Play()
	}
}

// SetTempo sets the BPM
func (h *Host) SetTempo(bpm int) {
	h.mu.Lock()
	h.tempo = clampTempo(float64(bpm))
	h.mu.Unlock()
	h.notifyUpdate()
}

// GetState returns the current step, transport state and tempo
func (h *Host) GetState() (step int, playing bool, tempo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.step, h.playing, int(h.tempo)
}

// Position returns the playhead in quarter notes
func (h *Host) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

// Blocks returns how many blocks have been processed
func (h *Host) Blocks() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blocks
}

// Run calls ProcessBlock at the block rate until ctx is done (blocking - run in goroutine)
func (h *Host) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(h.BlockDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.ProcessBlock(now)
		}
	}
}

// ProcessBlock runs one block ending at now: incoming MIDI is placed by
// arrival time, the processor runs, its host buffer goes to the output and
// the playhead advances.
func (h *Host) ProcessBlock(now time.Time) (midi.Buffer, sequencer.Result) {
	h.mu.Lock()
	tr := sequencer.Transport{
		PositionQN:  h.position,
		Tempo:       h.tempo,
		Numerator:   h.opts.Numerator,
		Denominator: h.opts.Denominator,
		Playing:     h.playing,
	}
	input, output := h.input, h.output
	h.mu.Unlock()

	blockDur := h.BlockDuration()
	start := now.Add(-blockDur)

	h.inBuf = h.inBuf[:0]
	if input != nil {
		h.pending = input.Drain(h.pending[:0])
		for _, m := range h.pending {
			h.inBuf = h.inBuf.Add(m.Msg, h.offset(start, m.At))
		}
	}

	out, res := h.proc.ProcessBlock(&tr, h.inBuf)

	if output != nil {
		for _, ev := range out {
			if err := output.Send(ev.Message); err != nil {
				h.log.Debug("host output send failed", zap.Error(err))
			}
		}
	}

	h.mu.Lock()
	if h.playing {
		h.position += blockDur.Seconds() * h.tempo / 60
	}
	h.step = res.Step
	h.blocks++
	h.mu.Unlock()

	if res.Changed {
		h.notifyUpdate()
	}
	return out, res
}

// offset converts an arrival time to a sample offset inside the block
func (h *Host) offset(start, at time.Time) int {
	off := int(at.Sub(start).Seconds() * float64(h.opts.SampleRate))
	if off < 0 {
		return 0
	}
	if off >= h.opts.BlockSize {
		return h.opts.BlockSize - 1
	}
	return off
}

func (h *Host) notifyUpdate() {
	select {
	case h.UpdateChan <- struct{}{}:
	default:
	}
}

func clampTempo(bpm float64) float64 {
	if bpm < MinTempo {
		return MinTempo
	}
	if bpm > MaxTempo {
		return MaxTempo
	}
	return bpm
}
