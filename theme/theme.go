package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	StepOpen     rune // ● gate open
	StepClosed   rune // · gate closed
	StepPlayhead rune // ▶ current step
	StepBeyond   rune // - past the reset length

	CursorOpen   rune // ◉ cursor on an open step
	CursorClosed rune // ○ cursor on a closed step

	Meter []rune // chance meter, empty to full
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			StepOpen:     '●',
			StepClosed:   '·',
			StepPlayhead: '▶',
			StepBeyond:   '-',

			CursorOpen:   '◉',
			CursorClosed: '○',

			Meter: []rune(" ▁▂▃▄▅▆▇█"),
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleSurface = 0.1
	RoleMuted   = 0.3
	RoleFG      = 0.5
	RoleAccent  = 0.55
	RoleCursor  = 0.65
	RoleActive  = 0.75
	RoleWarning = 0.85
	RoleSuccess = 1.0
)

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// ChanceColor maps a 0-100 chance onto the palette
func (t *Theme) ChanceColor(chance int) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted + (1-RoleMuted)*float64(chance)/100))
}

// MeterRune picks the meter glyph for a 0-100 value
func (t *Theme) MeterRune(value int) rune {
	m := t.Symbols.Meter
	if value <= 0 {
		return m[0]
	}
	if value >= 100 {
		return m[len(m)-1]
	}
	return m[1+value*(len(m)-2)/100]
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
