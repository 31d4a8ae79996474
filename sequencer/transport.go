package sequencer

// Defaults used when the host has no playhead
const (
	DefaultTempo       = 120.0
	DefaultNumerator   = 4
	DefaultDenominator = 4
)

// Transport is the host playhead for one block
type Transport struct {
	PositionQN  float64 // position in quarter notes
	Tempo       float64 // BPM
	Numerator   int
	Denominator int
	Playing     bool
}

// resolve fills in defaults. A nil transport is position 0 at 120 BPM in 4/4.
func (t *Transport) resolve() Transport {
	if t == nil {
		return Transport{Tempo: DefaultTempo, Numerator: DefaultNumerator, Denominator: DefaultDenominator}
	}
	r := *t
	if r.Tempo <= 0 {
		r.Tempo = DefaultTempo
	}
	if r.Numerator <= 0 || r.Denominator <= 0 {
		r.Numerator, r.Denominator = DefaultNumerator, DefaultDenominator
	}
	return r
}

// QuarterNotesPerBar derived from the time signature
func (t *Transport) QuarterNotesPerBar() float64 {
	r := t.resolve()
	return float64(r.Numerator) / float64(r.Denominator) * 4
}
