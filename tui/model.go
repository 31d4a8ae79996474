package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chance-machine/debug"
	"chance-machine/host"
	"chance-machine/midi"
	"chance-machine/sequencer"
	"chance-machine/theme"
	"chance-machine/widgets"
)

type panel int

const (
	panelSteps panel = iota
	panelOutputs
)

// NoneLabel is the device list entry for "no external output"
const NoneLabel = "None"

type Model struct {
	Host     *host.Host
	Registry *midi.Registry
	Theme    *theme.Theme

	// SaveState persists the current state; nil disables ctrl+s
	SaveState func() error

	panel     panel
	cursor    int // step under edit
	devCursor int // 0 is None, then registry entries

	step     int
	gateOpen bool
	flash    string
	quitting bool
}

type UpdateMsg struct{}

type StepMsg sequencer.StepEvent

type DeviceEventMsg midi.DeviceEvent

func NewModel(h *host.Host, reg *midi.Registry, th *theme.Theme) Model {
	return Model{
		Host:     h,
		Registry: reg,
		Theme:    th,
	}
}

func ListenForUpdates(h *host.Host) tea.Cmd {
	return func() tea.Msg {
		<-h.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForSteps(p *sequencer.Processor) tea.Cmd {
	return func() tea.Msg {
		return StepMsg(<-p.StepEvents())
	}
}

func ListenForDevices(reg *midi.Registry) tea.Cmd {
	return func() tea.Msg {
		return DeviceEventMsg(<-reg.Events())
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Host),
		ListenForSteps(m.Host.Processor()),
		ListenForDevices(m.Registry),
	)
}

func (m Model) params() *sequencer.Params {
	return m.Host.Processor().Params()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Host)

	case StepMsg:
		debug.LogEvery(16, "tui", "step %d cycle %d gate=%v", msg.Step, msg.Cycle, msg.GateOpen)
		m.step = msg.Step
		m.gateOpen = msg.GateOpen
		return m, ListenForSteps(m.Host.Processor())

	case DeviceEventMsg:
		ev := midi.DeviceEvent(msg)
		debug.Log("device", "%s %s", ev.Type, ev.Port.ID)
		if status, ok := host.DeviceStatus(ev, m.Registry.Selected()); ok {
			m.Host.Processor().SetStatus(status)
		}
		if n := len(m.Registry.Entries()); m.devCursor > n {
			m.devCursor = n
		}
		return m, ListenForDevices(m.Registry)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	m.flash = ""

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.Host.Stop()
		return m, tea.Quit

	case "p", " ":
		m.Host.Toggle()
		return m, nil

	case "+", "=":
		_, _, tempo := m.Host.GetState()
		m.Host.SetTempo(tempo + 5)
		return m, nil

	case "-", "_":
		_, _, tempo := m.Host.GetState()
		m.Host.SetTempo(tempo - 5)
		return m, nil

	case "tab":
		if m.panel == panelSteps {
			m.panel = panelOutputs
		} else {
			m.panel = panelSteps
		}
		return m, nil

	case "ctrl+s":
		if m.SaveState != nil {
			if err := m.SaveState(); err != nil {
				m.flash = "save failed: " + err.Error()
			} else {
				m.flash = "state saved"
			}
		}
		return m, nil
	}

	if m.panel == panelOutputs {
		m.handleOutputKey(key)
	} else {
		m.handleStepKey(key)
	}
	return m, nil
}

func (m *Model) handleStepKey(key string) {
	p := m.params()
	cfg := p.Snapshot()
	step := cfg.Steps[m.cursor]

	var err error
	switch key {
	case "left", "h":
		m.cursor = (m.cursor + sequencer.NumSteps - 1) % sequencer.NumSteps
	case "right", "l":
		m.cursor = (m.cursor + 1) % sequencer.NumSteps
	case "up", "k":
		err = p.SetChance(m.cursor, min(step.Chance+5, 100))
	case "down", "j":
		err = p.SetChance(m.cursor, max(step.Chance-5, 0))
	case "]":
		err = p.SetCondition(m.cursor, nextCondition(step.Condition, 1).String())
	case "[":
		err = p.SetCondition(m.cursor, nextCondition(step.Condition, -1).String())
	case "s":
		err = p.SetStepLength(string(nextStepLength(cfg.StepLength)))
	case "r":
		err = p.SetReset(cfg.Reset%sequencer.NumSteps + 1)
	case "R":
		err = p.SetReset((cfg.Reset+sequencer.NumSteps-2)%sequencer.NumSteps + 1)
	case "m":
		err = p.SetMode((cfg.Mode + 1) % 3)
	case "c":
		err = p.SetCCNumber((cfg.CCNumber + 1) % 128)
	case "C":
		err = p.SetCCNumber((cfg.CCNumber + 127) % 128)
	case "n":
		err = p.SetChannel(cfg.Channel%16 + 1)
	case "N":
		err = p.SetChannel((cfg.Channel+14)%16 + 1)
	}
	if err != nil {
		m.flash = err.Error()
	}
}

func (m *Model) handleOutputKey(key string) {
	n := len(m.Registry.Entries())
	switch key {
	case "up", "k":
		if m.devCursor > 0 {
			m.devCursor--
		}
	case "down", "j":
		if m.devCursor < n {
			m.devCursor++
		}
	case "enter":
		id := ""
		if m.devCursor > 0 {
			entries := m.Registry.Entries()
			if m.devCursor-1 < len(entries) {
				id = entries[m.devCursor-1].Info.ID
			}
		}
		if err := m.Registry.Select(id); err != nil {
			m.Host.Processor().SetStatus(fmt.Sprintf("Could not open %s: %v", id, err))
		} else {
			m.Host.Processor().SetStatus("")
		}
	}
}

func nextCondition(c sequencer.TriggerCondition, dir int) sequencer.TriggerCondition {
	opts := sequencer.ConditionOptions
	for i, o := range opts {
		if o == c {
			return opts[(i+dir+len(opts))%len(opts)]
		}
	}
	return sequencer.Always
}

func nextStepLength(l sequencer.StepLength) sequencer.StepLength {
	ls := sequencer.StepLengths
	for i, x := range ls {
		if x == l {
			return ls[(i+1)%len(ls)]
		}
	}
	return sequencer.StepSixteenth
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	_, playing, tempo := m.Host.GetState()
	cfg := m.params().Snapshot()

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	titleStyle := lipgloss.NewStyle().Foreground(m.Theme.FG()).Bold(true)

	playState := "STOP"
	if playing {
		playState = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("chance-machine  %s  %3dbpm  step:%02d  %s  reset:%d  %s  ch:%d",
		playState, tempo, m.step+1, cfg.StepLength, cfg.Reset, modeLabel(cfg), cfg.Channel))

	cells := make([]widgets.StepCell, sequencer.NumSteps)
	for i, s := range cfg.Steps {
		cells[i] = widgets.StepCell{
			Chance:    s.Chance,
			Condition: s.Condition.String(),
			Playing:   playing && i == m.step,
			Open:      m.gateOpen,
			Cursor:    m.panel == panelSteps && i == m.cursor,
			Beyond:    i >= cfg.Reset,
		}
	}
	cur := cfg.Steps[m.cursor]
	detail := fmt.Sprintf("step %02d  chance %3d%%  condition %s", m.cursor+1, cur.Chance, cur.Condition)

	items := []widgets.DeviceItem{{Name: NoneLabel, Selected: m.Registry.Selected() == ""}}
	for _, e := range m.Registry.Entries() {
		items = append(items, widgets.DeviceItem{Name: e.Info.Name, Selected: e.Selected, Open: e.Open})
	}
	devCursor := -1
	if m.panel == panelOutputs {
		devCursor = m.devCursor
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(widgets.RenderStepRow(m.Theme, cells))
	out.WriteString("\n")
	out.WriteString(dimStyle.Render(detail))
	out.WriteString("\n\n")
	out.WriteString(titleStyle.Render("MIDI out"))
	out.WriteString("\n")
	out.WriteString(widgets.RenderDeviceList(m.Theme, items, devCursor))
	out.WriteString("\n\n")

	status := m.Host.Processor().Status()
	if len(items) == 1 && status == "" {
		status = "No MIDI outputs found"
	}
	if m.flash != "" {
		status = m.flash
	}
	if status != "" {
		out.WriteString(warnStyle.Render(status))
		out.WriteString("\n")
	}

	out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp(m.panel))))
	return out.String()
}

func modeLabel(cfg *sequencer.Config) string {
	if cfg.Mode == sequencer.ForwardNote {
		return cfg.Mode.String()
	}
	return fmt.Sprintf("%s %d", cfg.Mode, cfg.CCNumber)
}

func keyHelp(p panel) []widgets.KeySection {
	common := widgets.KeySection{Keys: []widgets.KeyBinding{
		{Key: "p/space", Desc: "play/stop"},
		{Key: "+/-", Desc: "tempo"},
		{Key: "tab", Desc: "steps/outputs"},
		{Key: "ctrl+s", Desc: "save state"},
		{Key: "q", Desc: "quit"},
	}}
	if p == panelOutputs {
		return []widgets.KeySection{{Keys: []widgets.KeyBinding{
			{Key: "j/k", Desc: "move"},
			{Key: "enter", Desc: "select output"},
		}}, common}
	}
	return []widgets.KeySection{{Keys: []widgets.KeyBinding{
		{Key: "h/l", Desc: "step"},
		{Key: "j/k", Desc: "chance -/+5"},
		{Key: "[/]", Desc: "condition"},
		{Key: "s r/R m", Desc: "length, reset, mode"},
		{Key: "c/C n/N", Desc: "CC, channel"},
	}}, common}
}
