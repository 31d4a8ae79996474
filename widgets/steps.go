package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chance-machine/theme"
)

// StepCell is what the step row shows for one step
type StepCell struct {
	Chance    int
	Condition string
	Playing   bool // the current step
	Open      bool // gate decision of the current step
	Cursor    bool
	Beyond    bool // index is past the reset length
}

// RenderStep renders one step as a glyph over its chance meter
func RenderStep(th *theme.Theme, c StepCell) string {
	sym := th.Symbols
	glyph := sym.StepClosed
	color := th.ChanceColor(c.Chance)

	switch {
	case c.Beyond:
		glyph = sym.StepBeyond
		color = th.Muted()
	case c.Playing && c.Open:
		glyph = sym.StepOpen
		color = th.Success()
	case c.Playing:
		glyph = sym.StepPlayhead
		color = th.Warning()
	}
	if c.Cursor {
		if c.Playing && c.Open {
			glyph = sym.CursorOpen
		} else if !c.Playing {
			glyph = sym.CursorClosed
		}
		color = th.Cursor()
	}

	return lipgloss.NewStyle().Foreground(color).Render(string(glyph))
}

// RenderStepRow renders steps separated by spaces with a meter line below
func RenderStepRow(th *theme.Theme, cells []StepCell) string {
	var top, meter strings.Builder
	for i, c := range cells {
		if i > 0 {
			top.WriteString(" ")
			meter.WriteString(" ")
		}
		top.WriteString(RenderStep(th, c))
		style := lipgloss.NewStyle().Foreground(th.ChanceColor(c.Chance))
		meter.WriteString(style.Render(string(th.MeterRune(c.Chance))))
	}
	return top.String() + "\n" + meter.String()
}

// RenderDeviceList renders output choices with the selected one marked
func RenderDeviceList(th *theme.Theme, items []DeviceItem, cursor int) string {
	var lines []string
	for i, it := range items {
		mark := "  "
		if it.Selected {
			mark = "> "
		}
		state := ""
		if it.Open {
			state = " (open)"
		}
		line := fmt.Sprintf("%s%s%s", mark, it.Name, state)
		style := lipgloss.NewStyle().Foreground(th.FG())
		if i == cursor {
			style = style.Foreground(th.Cursor()).Bold(true)
		} else if it.Selected {
			style = style.Foreground(th.Accent())
		}
		lines = append(lines, style.Render(line))
	}
	return strings.Join(lines, "\n")
}

// DeviceItem is one row of the device list
type DeviceItem struct {
	Name     string
	Selected bool
	Open     bool
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
