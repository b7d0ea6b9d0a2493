package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jglrxavpok/carrot-handles/handle"
	"github.com/jglrxavpok/carrot-handles/scenario"
	"github.com/jglrxavpok/carrot-handles/scene"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateCommand
)

type interactiveModel struct {
	ctx    context.Context
	err    error
	runner *scenario.Runner
	path   string
	result string
	input  textinput.Model
	state  modelState

	// busy is set while a step command runs on its own goroutine.
	// quitting defers the quit until that command reports back.
	busy     bool
	quitting bool
}

type loadedMsg struct {
	err    error
	runner *scenario.Runner
}

type stepResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, path string) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "mesh: {name: cube, vertices: 36}"
	ti.Prompt = "step> "
	ti.Width = 60
	return &interactiveModel{
		ctx:   ctx,
		path:  path,
		input: ti,
		state: stateBrowse,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadScenario
}

func (m *interactiveModel) loadScenario() tea.Msg {
	sc, err := loadScenario(m.path)
	if err != nil {
		return loadedMsg{err: err}
	}
	r, err := scenario.NewRunner(m.ctx, sc, scenario.Options{})
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{runner: r}
}

func (m *interactiveModel) close() {
	if m.runner != nil {
		m.runner.Close(context.Background())
		m.runner = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}

		if m.state == stateCommand {
			switch msg.String() {
			case "esc":
				m.state = stateBrowse
				m.input.Blur()
				return m, nil
			case "enter":
				if m.busy {
					return m, nil
				}
				text := m.input.Value()
				m.input.SetValue("")
				return m, m.start(m.execCommand(text))
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		if m.runner == nil {
			if msg.String() == "q" {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.String() {
		case "q":
			return m.quit()

		case ":":
			m.state = stateCommand
			return m, m.input.Focus()
		}

		if m.busy {
			return m, nil
		}

		switch msg.String() {
		case "n", " ":
			return m, m.start(m.step())

		case "r":
			return m, m.start(m.runAll())

		case "t":
			return m, m.start(m.execCommand("tick: 1"))
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.runner = msg.runner

	case stepResultMsg:
		m.busy = false
		m.result = msg.result
		m.err = msg.err
		if m.quitting {
			return m.quit()
		}
	}

	return m, nil
}

// start marks the model busy until cmd reports a stepResultMsg.
func (m *interactiveModel) start(cmd tea.Cmd) tea.Cmd {
	m.busy = true
	return cmd
}

// quit closes the runner and exits, or waits for the running command
// to report back first.
func (m *interactiveModel) quit() (tea.Model, tea.Cmd) {
	if m.busy {
		m.quitting = true
		return m, nil
	}
	m.close()
	return m, tea.Quit
}

// Commands capture the runner so they never read m.runner from their
// own goroutine.

func (m *interactiveModel) step() tea.Cmd {
	r, ctx := m.runner, m.ctx
	return func() tea.Msg {
		if r.Done() {
			return stepResultMsg{result: "scenario finished"}
		}
		index := r.Position()
		kind := r.Scenario().Steps[index].Kind()
		if err := r.Step(ctx); err != nil {
			return stepResultMsg{err: fmt.Errorf("step %d (%s): %w", index, kind, err)}
		}
		return stepResultMsg{result: fmt.Sprintf("step %d (%s) ok", index, kind)}
	}
}

func (m *interactiveModel) runAll() tea.Cmd {
	r, ctx := m.runner, m.ctx
	return func() tea.Msg {
		if err := r.Run(ctx); err != nil {
			return stepResultMsg{err: fmt.Errorf("step %d: %w", r.Position(), err)}
		}
		return stepResultMsg{result: "scenario finished"}
	}
}

func (m *interactiveModel) execCommand(text string) tea.Cmd {
	r, ctx := m.runner, m.ctx
	return func() tea.Msg {
		step, err := scenario.ParseStep(text)
		if err != nil {
			return stepResultMsg{err: err}
		}
		if err := r.Exec(ctx, step); err != nil {
			return stepResultMsg{err: err}
		}
		return stepResultMsg{result: fmt.Sprintf("%s ok", step.Kind())}
	}
}

func (m *interactiveModel) View() string {
	if m.runner == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Loading scenario..."
	}

	var b strings.Builder

	sc := m.runner.Scenario()
	b.WriteString(titleStyle.Render("Pool Simulator"))
	b.WriteString(" ")
	b.WriteString(sc.Name)
	b.WriteString("\n\n")

	b.WriteString(m.viewSteps(sc))
	b.WriteString("\n")
	b.WriteString(m.viewStats())
	b.WriteString("\n")
	b.WriteString(m.viewNames())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.result != "" {
		b.WriteString(resultStyle.Render(m.result))
	}
	b.WriteString("\n\n")

	if m.state == stateCommand {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter run step • esc back"))
	} else if m.busy {
		b.WriteString(helpStyle.Render("running... • q quit when done"))
	} else {
		b.WriteString(helpStyle.Render("n next step • r run all • t tick • : command • q quit"))
	}
	return b.String()
}

func (m *interactiveModel) viewSteps(sc *scenario.Scenario) string {
	if len(sc.Steps) == 0 {
		return helpStyle.Render("(no scripted steps)") + "\n"
	}

	const window = 8
	next := m.runner.Position()
	start := max(0, next-window/2)
	end := min(len(sc.Steps), start+window)

	var b strings.Builder
	for i := start; i < end; i++ {
		line := fmt.Sprintf("%3d %s", i, describeStep(sc.Steps[i]))
		switch {
		case i == next:
			b.WriteString(selectedStyle.Render("> " + line))
		case i < next:
			b.WriteString(helpStyle.Render("  " + line))
		default:
			b.WriteString("  " + stepStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *interactiveModel) viewStats() string {
	s := m.runner.Scene()
	s.Lock()
	st := s.Stats()
	s.Unlock()
	last := m.runner.LastTick()

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %6s %6s %8s %6s\n", "storage", "slots", "live", "pending", "free")
	for _, row := range []handle.Stats{st.Meshes, st.Instances, st.Lights} {
		fmt.Fprintf(&b, "%-10s %s %s %s %s\n", row.Name,
			countStyle.Render(fmt.Sprintf("%6d", row.Slots)),
			countStyle.Render(fmt.Sprintf("%6d", row.Live)),
			countStyle.Render(fmt.Sprintf("%8d", row.Pending)),
			countStyle.Render(fmt.Sprintf("%6d", row.Free)))
	}
	fmt.Fprintf(&b, "tick %d • last reclaimed %d • active lights %d • mesh frees %d\n",
		st.Tick, last.Reclaimed(), len(last.Frame.Active), st.MeshFrees)
	return b.String()
}

func (m *interactiveModel) viewNames() string {
	names := m.runner.Names()
	var b strings.Builder
	for _, storage := range []string{"meshes", "instances", "lights"} {
		held := names[storage]
		sort.Strings(held)
		fmt.Fprintf(&b, "%-10s %s\n", storage, stepStyle.Render(strings.Join(held, " ")))
	}
	return b.String()
}

func describeStep(s scenario.Step) string {
	switch {
	case s.Mesh != nil:
		return fmt.Sprintf("mesh %s (%d vertices)", s.Mesh.Name, s.Mesh.Vertices)
	case s.Instance != nil:
		return fmt.Sprintf("instance %s of %s", s.Instance.Name, s.Instance.Mesh)
	case s.Light != nil:
		kind := scene.LightPoint
		if s.Light.Type != nil {
			kind = *s.Light.Type
		}
		return fmt.Sprintf("light %s (%s)", s.Light.Name, kind)
	case s.Release != "":
		return "release " + s.Release
	case s.Tick > 0:
		return fmt.Sprintf("tick x%d", s.Tick)
	case s.Expect != nil:
		return "expect"
	case s.Script != nil:
		return fmt.Sprintf("script %s(%s)", s.Script.Call, s.Script.Target)
	default:
		return "?"
	}
}

func runInteractive(ctx context.Context, path string) error {
	m := newInteractiveModel(ctx, path)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.close()
	return err
}
