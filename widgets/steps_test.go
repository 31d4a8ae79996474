package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"chance-machine/theme"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestRenderStep_Glyphs(t *testing.T) {
	th := theme.New(theme.DefaultPalette())
	tests := []struct {
		name string
		cell StepCell
		want string
	}{
		{"idle", StepCell{Chance: 50}, "·"},
		{"playing open", StepCell{Playing: true, Open: true}, "●"},
		{"playing closed", StepCell{Playing: true}, "▶"},
		{"beyond reset", StepCell{Beyond: true}, "-"},
		{"cursor idle", StepCell{Cursor: true}, "○"},
		{"cursor on open", StepCell{Cursor: true, Playing: true, Open: true}, "◉"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderStep(th, tt.cell))
		})
	}
}

func TestRenderStepRow(t *testing.T) {
	th := theme.New(theme.DefaultPalette())
	out := RenderStepRow(th, []StepCell{{Chance: 100}, {Chance: 0, Playing: true}})
	assert.Equal(t, "· ▶\n█  ", out)
}

func TestRenderDeviceList(t *testing.T) {
	th := theme.New(theme.DefaultPalette())
	out := RenderDeviceList(th, []DeviceItem{
		{Name: "None"},
		{Name: "Synth", Selected: true, Open: true},
	}, 0)
	assert.Equal(t, []string{"  None", "> Synth (open)"}, strings.Split(out, "\n"))
}

func TestRenderKeyHelp(t *testing.T) {
	out := RenderKeyHelp([]KeySection{{Title: "Steps", Keys: []KeyBinding{{Key: "←/→", Desc: "move"}}}})
	assert.Equal(t, "Steps\n  ←/→          move", out)
}
