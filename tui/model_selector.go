package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/visionchat/visionchat/chat"
	"github.com/visionchat/visionchat/ollama"
)

// ModelItem represents a model in the selector list.
type ModelItem struct {
	Model ollama.ModelInfo
}

func (i ModelItem) Title() string { return i.Model.DisplayName() }
func (i ModelItem) Description() string {
	if i.Model.Description != "" {
		return i.Model.Description
	}
	return i.Model.Name
}
func (i ModelItem) FilterValue() string { return i.Model.Name }

// ModelSelector lets the user pick among the vision-capable models.
type ModelSelector struct {
	list        list.Model
	coordinator *chat.Coordinator
	loading     bool
	err         error
	width       int
	height      int
	onSelect    func(name string) tea.Cmd
}

// NewModelSelector creates a selector that loads models through the
// coordinator and invokes onSelect with the chosen model name.
func NewModelSelector(coordinator *chat.Coordinator, onSelect func(name string) tea.Cmd) *ModelSelector {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("170")).
		BorderLeftForeground(lipgloss.Color("170"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("170")).
		BorderLeftForeground(lipgloss.Color("170"))

	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Select a Vision Model"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().
		Background(lipgloss.Color("62")).
		Foreground(lipgloss.Color("230")).
		Padding(0, 1)

	return &ModelSelector{
		list:        l,
		coordinator: coordinator,
		loading:     true,
		onSelect:    onSelect,
		width:       80,
		height:      20,
	}
}

// Load returns the command that fetches the model list.
func (m *ModelSelector) Load(force bool) tea.Cmd {
	m.loading = true
	m.err = nil
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		models, err := m.coordinator.RefreshModels(ctx, force)
		if err != nil {
			return modelsErrMsg{err: err}
		}
		if len(models) == 0 {
			return modelsErrMsg{err: fmt.Errorf("no vision-capable models installed; pull one with `ollama pull llama3.2-vision`")}
		}
		return modelsLoadedMsg{models: models}
	}
}

func (m *ModelSelector) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}

func (m *ModelSelector) Update(msg tea.Msg) (*ModelSelector, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "enter" {
			if item, ok := m.list.SelectedItem().(ModelItem); ok && m.onSelect != nil {
				return m, m.onSelect(item.Model.Name)
			}
		}

	case modelsLoadedMsg:
		items := make([]list.Item, 0, len(msg.models))
		for _, model := range msg.models {
			items = append(items, ModelItem{Model: model})
		}
		m.list.SetItems(items)
		m.loading = false
		return m, nil

	case modelsErrMsg:
		m.err = msg.err
		m.loading = false
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ModelSelector) View() string {
	if m.loading {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("Loading models...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(lipgloss.Color("9")).
			Render(fmt.Sprintf("Error loading models: %v", m.err))
	}

	return m.list.View()
}

// Messages for the model selector.
type modelsLoadedMsg struct {
	models []ollama.ModelInfo
}

type modelsErrMsg struct {
	err error
}
