package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Builder creates the live model for a named preset.
type Builder func(name string) (Model, error)

// Picker lists presets and hands over to a live Model once one is chosen.
type Picker struct {
	names  []string
	info   map[string]string
	cursor int
	build  Builder
	live   *Model
	err    error
	theme  Theme
}

func NewPicker(names []string, info map[string]string, build Builder) Picker {
	return Picker{names: names, info: info, build: build, theme: ThemeDensity}
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if p.live != nil {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			p.live = nil
			return p, nil
		}
		next, cmd := p.live.Update(msg)
		live := next.(Model)
		p.live = &live
		return p, cmd
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch k.String() {
	case "q", "ctrl+c", "esc":
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.names)-1 {
			p.cursor++
		}
	case "enter", " ":
		if len(p.names) == 0 {
			return p, nil
		}
		m, err := p.build(p.names[p.cursor])
		if err != nil {
			p.err = err
			return p, nil
		}
		p.err = nil
		p.live = &m
		return p, m.Init()
	}
	return p, nil
}

// Selected is the preset under the cursor.
func (p Picker) Selected() string {
	if len(p.names) == 0 {
		return ""
	}
	return p.names[p.cursor]
}

func (p Picker) View() string {
	if p.live != nil {
		return p.live.View()
	}
	st := p.theme.styles()
	cursor := lipgloss.NewStyle().Foreground(p.theme.Accent).Bold(true)

	var s strings.Builder
	s.WriteString(st.header.Render("DENSITY FITTING PRESETS") + "\n")
	for i, name := range p.names {
		line := fmt.Sprintf("%-18s %s", name, st.label.UnsetWidth().Render(p.info[name]))
		if i == p.cursor {
			s.WriteString(cursor.Render("> "+name) + strings.TrimPrefix(line, name) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	if p.err != nil {
		s.WriteString("\n" + st.warn.Render(p.err.Error()) + "\n")
	}
	s.WriteString(st.help.Render("↑↓:Select Enter:Run Esc:Back Q:Quit"))
	return s.String()
}
