// Package wizard implements the supervisor's first-run interactive setup:
// a small bubbletea list view that confirms which repos and executor
// profiles to write into the generated config file.
package wizard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andywolf/agentium-supervisor/internal/config"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
)

// repoItem adapts a config.RepoConfig to bubbles/list's list.Item.
type repoItem struct {
	repo     config.RepoConfig
	selected bool
}

func (i repoItem) Title() string {
	mark := "[ ]"
	if i.selected {
		mark = "[x]"
	}
	return fmt.Sprintf("%s %s", mark, i.repo.Name)
}
func (i repoItem) Description() string { return i.repo.Path }
func (i repoItem) FilterValue() string { return i.repo.Name }

// Model is the wizard's bubbletea model: a toggleable list of candidate
// repos, confirmed with enter.
type Model struct {
	list     list.Model
	done     bool
	quitting bool
}

// NewModel builds a wizard over candidates, presented for the operator to
// toggle on/off before confirming.
func NewModel(candidates []config.RepoConfig) Model {
	items := make([]list.Item, len(candidates))
	for i, c := range candidates {
		items[i] = repoItem{repo: c, selected: true}
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select repos for the supervisor to manage"
	l.Styles.Title = titleStyle
	return Model{list: l}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case " ":
			idx := m.list.Index()
			items := m.list.Items()
			if item, ok := items[idx].(repoItem); ok {
				item.selected = !item.selected
				items[idx] = item
				m.list.SetItems(items)
			}
			return m, nil
		case "enter":
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\nspace: toggle  enter: confirm  q: quit\n")
	return b.String()
}

// Selected returns the repos left toggled on once the wizard finishes.
func (m Model) Selected() []config.RepoConfig {
	var out []config.RepoConfig
	for _, it := range m.list.Items() {
		if ri, ok := it.(repoItem); ok && ri.selected {
			out = append(out, ri.repo)
		}
	}
	return out
}

// Confirmed reports whether the operator pressed enter rather than quitting.
func (m Model) Confirmed() bool { return m.done }

// Run drives the wizard to completion over candidates and returns the
// operator's final repo selection.
func Run(candidates []config.RepoConfig) ([]config.RepoConfig, error) {
	m := NewModel(candidates)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}
	fm, ok := final.(Model)
	if !ok || !fm.Confirmed() {
		return nil, nil
	}
	return fm.Selected(), nil
}
