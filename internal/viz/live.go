package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/md"
	"github.com/san-kum/densfit/internal/metrics"
	"github.com/san-kum/densfit/internal/particles"
)

const (
	canvasWidth     = 60
	canvasHeight    = 22
	historyCapacity = 600
	frameRate       = 30
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// SessionFunc starts a fresh fitting session.
type SessionFunc func() (*md.Session, error)

// Model steps a fitting session on every tick and draws the current
// structure over the target positions.
type Model struct {
	title        string
	start        SessionFunc
	session      *md.Session
	target       []dynamo.Vec3
	canvas       *Canvas
	camera       *Camera
	theme        Theme
	running      bool
	showHelp     bool
	stepsPerTick int
	fitHistory   []float64
	rmsdHistory  []float64
	rmsdBuf      []float64
	err          error
}

func NewModel(title string, target []dynamo.Vec3, start SessionFunc) (Model, error) {
	sess, err := start()
	if err != nil {
		return Model{}, err
	}
	radius := 1.0
	center := particles.Center(&particles.Set{X: target})
	for _, x := range target {
		radius = max(radius, x.Sub(center).Norm())
	}
	return Model{
		title:        title,
		start:        start,
		session:      sess,
		target:       target,
		canvas:       NewCanvas(canvasWidth, canvasHeight),
		camera:       NewCamera(center, radius),
		theme:        ThemeDensity,
		running:      true,
		stepsPerTick: 1,
		fitHistory:   make([]float64, 0, historyCapacity),
		rmsdHistory:  make([]float64, 0, historyCapacity),
	}, nil
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.restart()
		case "?":
			m.showHelp = !m.showHelp
		case "t":
			m.theme = m.theme.next()
		case "x":
			m.camera.RotateX(0.1)
		case "X":
			m.camera.RotateX(-0.1)
		case "y":
			m.camera.RotateY(0.1)
		case "Y":
			m.camera.RotateY(-0.1)
		case "z":
			m.camera.RotateZ(0.1)
		case "Z":
			m.camera.RotateZ(-0.1)
		case "+", "=":
			m.camera.ZoomIn()
		case "-", "_":
			m.camera.ZoomOut()
		case "f":
			m.stepsPerTick = min(m.stepsPerTick*2, 64)
		case "s":
			m.stepsPerTick = max(m.stepsPerTick/2, 1)
		}
	case TickMsg:
		if m.running {
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) advance() {
	for i := 0; i < m.stepsPerTick && !m.session.Done(); i++ {
		if err := m.session.Step(context.Background()); err != nil {
			m.err = err
			m.running = false
			return
		}
		rec, _ := m.session.Last()
		m.fitHistory = appendCapped(m.fitHistory, rec.DensityFitting)
		m.rmsdHistory = appendCapped(m.rmsdHistory, m.rmsd())
	}
}

func (m *Model) rmsd() float64 {
	if len(m.rmsdBuf) < len(m.target) {
		m.rmsdBuf = make([]float64, len(m.target))
	}
	return metrics.Deviation(m.session.System().X, m.target, m.rmsdBuf)
}

func appendCapped(xs []float64, v float64) []float64 {
	xs = append(xs, v)
	if len(xs) > historyCapacity {
		xs = xs[1:]
	}
	return xs
}

func (m *Model) restart() {
	sess, err := m.start()
	if err != nil {
		m.err = err
		return
	}
	m.session = sess
	m.err = nil
	m.fitHistory = m.fitHistory[:0]
	m.rmsdHistory = m.rmsdHistory[:0]
}

func (m *Model) draw() {
	m.canvas.Clear()
	DrawPoints(m.canvas, m.camera, m.target)
	DrawChain(m.canvas, m.camera, m.session.System().X)
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return "FAILED"
	case m.session.Done():
		return "CONVERGED"
	case !m.running:
		return "PAUSED"
	}
	return "RUNNING"
}

func (m Model) View() string {
	st := m.theme.styles()
	m.draw()

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	if len(m.fitHistory) > 1 {
		chart := asciigraph.Plot(m.fitHistory, asciigraph.Height(5), asciigraph.Width(32), asciigraph.Caption("fit energy"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}
	if len(m.rmsdHistory) > 1 {
		chart := asciigraph.Plot(m.rmsdHistory, asciigraph.Height(3), asciigraph.Width(32), asciigraph.Caption("rmsd"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("Step", fmt.Sprintf("%d / %d", m.session.Steps(), m.session.Total()))
	row("Progress", ProgressBar(float64(m.session.Steps())/float64(max(m.session.Total(), 1)), 20))
	if rec, ok := m.session.Last(); ok {
		row("Fit energy", fmt.Sprintf("%.4f", rec.DensityFitting))
		row("Kinetic", fmt.Sprintf("%.4f", rec.Kinetic))
	}
	if n := len(m.rmsdHistory); n > 0 {
		row("RMSD", fmt.Sprintf("%.3f", m.rmsdHistory[n-1]))
	}
	row("Speed", fmt.Sprintf("%d steps/frame", m.stepsPerTick))
	if m.err != nil {
		s.WriteString("\n" + st.warn.Render(m.err.Error()) + "\n")
	}
	s.WriteString(st.help.Render("SP:Pause R:Restart Q:Quit\nF/S:Speed T:Theme ?:Help"))

	canvasView := lipgloss.NewStyle().Padding(1, 2).Render(m.canvas.String())
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.panel.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + mainView
	}
	return mainView
}

const helpText = `
  Space    pause / resume
  R        restart from the perturbed structure
  F / S    faster / slower
  X Y Z    rotate (shift reverses)
  + / -    zoom
  T        cycle themes
  ?        toggle this help
  Q        quit
`

// ProgressBar renders fraction in [0, 1] as a bar of width cells.
func ProgressBar(fraction float64, width int) string {
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction * float64(width))
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", width-filled) + "]" +
		fmt.Sprintf(" %3.0f%%", fraction*100)
}

// Run starts the TUI on m.
func Run(m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
