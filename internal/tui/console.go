package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/simhost/internal/config"
	"github.com/san-kum/simhost/internal/control"
	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/session"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

var simInfo = map[string]string{
	"cartpole": "balance and swing-up on a cart",
	"pendulum": "torque driven pendulum",
}

var stateLabels = map[string][]string{
	"cartpole": {"x", "θ", "ẋ", "θ̇"},
	"pendulum": {"θ", "θ̇"},
}

// modeKeys maps console keys onto controller toggles.
var modeKeys = map[string]control.Mode{
	"m": control.Manual,
	"l": control.Regulator,
	"p": control.Tracking,
	"f": control.Policy,
	"z": control.Zero,
}

const (
	frameInterval = 33 * time.Millisecond
	keyHold       = 150 * time.Millisecond
	historyLen    = 120
	defaultPreset = "default"
)

type screen int

const (
	screenMenu screen = iota
	screenPresets
	screenSim
)

type frameMsg time.Time

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Console is a local client for the session manager. It drives one session at
// a time through the same command path remote clients use.
type Console struct {
	mgr  *session.Manager
	sims []string

	screen  screen
	cursor  int
	simType string
	presets []string

	id      string
	snap    session.Snapshot
	forces  []float64
	angles  []float64
	trail   []float64
	held    string
	release time.Time
	status  string

	width  int
	height int
}

func NewConsole(mgr *session.Manager, reg *engine.Registry) Console {
	return Console{
		mgr:    mgr,
		sims:   reg.Names(),
		width:  80,
		height: 24,
	}
}

func (m Console) Init() tea.Cmd { return nil }

func (m Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case frameMsg:
		if m.screen != screenSim {
			return m, nil
		}
		return m.refresh(time.Time(msg))
	}
	return m, nil
}

func (m Console) handleKey(msg tea.KeyMsg) (Console, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.stop()
		return m, tea.Quit
	}
	switch m.screen {
	case screenMenu:
		return m.menuKey(msg)
	case screenPresets:
		return m.presetKey(msg)
	case screenSim:
		return m.simKey(msg)
	}
	return m, nil
}

func (m Console) menuKey(msg tea.KeyMsg) (Console, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.sims)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.sims) == 0 {
			return m, nil
		}
		m.simType = m.sims[m.cursor]
		m.presets = append([]string{defaultPreset}, config.ListPresets(m.simType)...)
		m.cursor = 0
		m.screen = screenPresets
	}
	return m, nil
}

func (m Console) presetKey(msg tea.KeyMsg) (Console, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.screen = screenMenu
		m.cursor = 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.presets)-1 {
			m.cursor++
		}
	case "enter", " ":
		if err := m.start(m.presets[m.cursor]); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.screen = screenSim
		return m, tea.Batch(tea.ClearScreen, frame())
	}
	return m, nil
}

func (m Console) simKey(msg tea.KeyMsg) (Console, tea.Cmd) {
	key := msg.String()
	if mode, ok := modeKeys[key]; ok {
		m.route(session.UI("toggle_controller", string(mode)))
		return m, nil
	}
	switch key {
	case "q", "esc":
		m.stop()
		m.screen = screenPresets
		return m, tea.ClearScreen
	case "left", "a":
		m.press("ArrowLeft")
	case "right", "d":
		m.press("ArrowRight")
	case " ":
		if m.snap.Paused {
			m.route(session.UI("play", nil))
		} else {
			m.route(session.UI("pause", nil))
		}
	case "r":
		m.route(session.Command{Kind: session.Reset})
	}
	return m, nil
}

// press sends a key down. Terminals report no key release, so the console
// releases the key once it stops repeating.
func (m *Console) press(key string) {
	if m.held != "" && m.held != key {
		m.route(session.KeyUp(m.held))
	}
	if m.held != key {
		m.route(session.KeyDown(key))
	}
	m.held = key
	m.release = time.Now().Add(keyHold)
}

func (m *Console) route(cmd session.Command) {
	if m.id == "" {
		return
	}
	if !m.mgr.Route(m.id, cmd) {
		m.status = "session is gone"
	}
}

func (m *Console) start(preset string) error {
	params := engine.Params{"sim_type": m.simType}
	if preset != defaultPreset {
		params = engine.Params(config.GetPreset(m.simType, preset)).Merge(params)
	}
	id := "local-" + uuid.NewString()[:8]
	s, err := m.mgr.Create(context.Background(), id, params)
	if err != nil {
		return err
	}
	m.id = id
	m.snap = s.Snapshot()
	m.forces = nil
	m.angles = nil
	m.trail = nil
	m.held = ""
	m.status = ""
	if preset != defaultPreset {
		m.status = preset
	}
	return nil
}

func (m *Console) stop() {
	if m.id != "" {
		m.mgr.Shutdown(m.id)
		m.id = ""
	}
}

func (m Console) refresh(now time.Time) (Console, tea.Cmd) {
	if m.held != "" && now.After(m.release) {
		m.route(session.KeyUp(m.held))
		m.held = ""
	}
	snap, ok := m.mgr.Snapshot(m.id)
	if !ok {
		m.status = "simulation stopped"
		m.id = ""
		m.screen = screenPresets
		return m, tea.ClearScreen
	}
	if snap.Seq != m.snap.Seq {
		m.snap = snap
		m.forces = appendBounded(m.forces, snap.Force, historyLen)
		if a, ok := m.angle(); ok {
			m.angles = appendBounded(m.angles, a, historyLen)
			m.trail = appendBounded(m.trail, a, 30)
		}
	}
	return m, frame()
}

// angle returns the pole angle of the latest snapshot.
func (m Console) angle() (float64, bool) {
	idx := 0
	if m.simType == "cartpole" {
		idx = 1
	}
	if idx >= len(m.snap.State) {
		return 0, false
	}
	return m.snap.State[idx], true
}

func appendBounded(s []float64, v float64, n int) []float64 {
	s = append(s, v)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

func (m Console) View() string {
	switch m.screen {
	case screenMenu:
		return m.viewMenu()
	case screenPresets:
		return m.viewPresets()
	case screenSim:
		return m.viewSim()
	}
	return ""
}

func (m Console) viewMenu() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("          " + cyan.Render("s i m h o s t") + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("\n")

	for i, name := range m.sims {
		desc := simInfo[name]
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-12s", name)) + dim.Render(desc) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-12s", name)) + dimmer.Render(desc) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dim.Render("      ↑↓ select   enter choose   q quit") + "\n")
	return b.String()
}

func (m Console) viewPresets() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("      " + cyan.Render(m.simType) + "  " + dim.Render(simInfo[m.simType]) + "\n")
	b.WriteString(dimmer.Render("      "+strings.Repeat("─", 30)) + "\n\n")

	for i, name := range m.presets {
		desc := "plant defaults, no controller"
		if p, ok := config.Presets[m.simType][name]; ok {
			desc = p.Description
		}
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-10s", name)) + magenta.Render(desc) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-10s", name)) + dimmer.Render(desc) + "\n")
		}
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString("      " + red.Render(m.status) + "\n\n")
	}
	b.WriteString(dim.Render("      ↑↓ select  enter start  esc back") + "\n")
	return b.String()
}

func (m Console) viewSim() string {
	cw := max(50, m.width-6)
	ch := max(12, m.height-20)
	c := newCanvas(cw, ch)
	switch m.simType {
	case "cartpole":
		drawCartPole(c, m.snap.State)
	case "pendulum":
		drawPendulum(c, m.snap.State, m.trail)
	default:
		drawBars(c, m.snap.State)
	}

	var b strings.Builder

	statusIcon := green.Render("●")
	statusText := green.Render("running")
	if m.snap.Paused {
		statusIcon = yellow.Render("○")
		statusText = yellow.Render("paused")
	}
	modes := "none"
	if len(m.snap.Modes) > 0 {
		modes = strings.Join(m.snap.Modes, "+")
	}
	fmt.Fprintf(&b, "\n   %s %s  %s  %s %s  %s\n\n",
		statusIcon, cyan.Render(m.simType), statusText,
		dim.Render("modes"), magenta.Render(modes),
		dim.Render(fmt.Sprintf("t=%.1fs", m.snap.Time)))

	b.WriteString(c.String())

	labels := stateLabels[m.simType]
	var line strings.Builder
	line.WriteString("\n   ")
	for i, v := range m.snap.State {
		label := fmt.Sprintf("x%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		line.WriteString(dim.Render(label + "="))
		line.WriteString(white.Render(fmt.Sprintf("%.2f", v)))
		line.WriteString("  ")
	}
	line.WriteString(dim.Render("u=") + white.Render(fmt.Sprintf("%.1f", m.snap.Force)))
	b.WriteString(line.String() + "\n")

	if len(m.angles) > 1 {
		errs := make([]float64, len(m.angles))
		for i, a := range m.angles {
			errs[i] = math.Abs(math.Remainder(a-math.Pi, 2*math.Pi))
		}
		b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render("|θ-π|"), cyan.Render(sparkline(errs, 40))))
	}
	if len(m.forces) > 1 {
		graph := asciigraph.Plot(m.forces,
			asciigraph.Height(5),
			asciigraph.Width(min(cw-10, 80)),
			asciigraph.Caption("actuation"),
		)
		b.WriteString("\n" + indent(graph, "   ") + "\n")
	}

	b.WriteString("\n" + dim.Render("   ←→ push  m manual  l lqr  p pid  f fvi  z zero  space pause  r reset  q back") + "\n")
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// Run starts the console on the alternate screen and stops any session it
// left running.
func Run(mgr *session.Manager, reg *engine.Registry) error {
	p := tea.NewProgram(NewConsole(mgr, reg), tea.WithAltScreen())
	final, err := p.Run()
	if c, ok := final.(Console); ok {
		c.stop()
	}
	return err
}
