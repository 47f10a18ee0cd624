package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/visionchat/visionchat/chat"
	"github.com/visionchat/visionchat/tui/styles"
)

type view int

const (
	viewChat view = iota
	viewModels
)

// App is the main TUI model. It is the single presentation-facing context
// required by the coordinator: every worker event flows through Update,
// which applies it and re-renders.
type App struct {
	coordinator *chat.Coordinator

	viewport    viewport.Model
	textarea    textarea.Model
	spinner     spinner.Model
	progressBar progress.Model
	selector    *ModelSelector
	styles      *styles.Styles
	renderer    *glamour.TermRenderer

	currentView view
	status      string
	width       int
	height      int
	ready       bool
}

// coordinatorEventMsg wraps a worker event for the update loop.
type coordinatorEventMsg chat.Event

// New creates the TUI around a coordinator.
func New(coordinator *chat.Coordinator) *App {
	ta := textarea.New()
	ta.Placeholder = "Type your message... (/upload <path> to attach images)"
	ta.Focus()
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false) // Enter sends message

	s := spinner.New(spinner.WithSpinner(spinner.Line))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	app := &App{
		coordinator: coordinator,
		textarea:    ta,
		spinner:     s,
		progressBar: progress.New(progress.WithDefaultGradient()),
		styles:      styles.New(styles.DefaultTheme),
		renderer:    renderer,
	}
	app.selector = NewModelSelector(coordinator, app.onModelSelected)
	return app
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		a.spinner.Tick,
		a.waitForEvent(),
	)
}

// waitForEvent blocks on the coordinator's event channel and feeds the
// next worker event into the update loop.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-a.coordinator.Events()
		if !ok {
			return nil
		}
		return coordinatorEventMsg(ev)
	}
}

func (a *App) onModelSelected(name string) tea.Cmd {
	a.coordinator.SetModel(name)
	a.currentView = viewChat
	a.status = fmt.Sprintf("model set to %s", name)
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

		if !a.ready {
			a.viewport = viewport.New(msg.Width, msg.Height-8)
			a.ready = true
		} else {
			a.viewport.Width = msg.Width
			a.viewport.Height = msg.Height - 8
		}
		a.textarea.SetWidth(msg.Width - 4)
		a.selector.SetSize(msg.Width, msg.Height-2)
		a.refreshConversation()
		return a, nil

	case tea.KeyMsg:
		if a.currentView == viewModels {
			if msg.String() == "esc" {
				a.currentView = viewChat
				return a, nil
			}
			var cmd tea.Cmd
			a.selector, cmd = a.selector.Update(msg)
			return a, cmd
		}

		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return a, tea.Quit

		case "esc":
			if a.coordinator.Busy() {
				a.coordinator.CancelActive()
				a.status = "response cancelled"
				a.refreshConversation()
			}
			return a, nil

		case "ctrl+l":
			a.coordinator.NewChat()
			a.status = "started a new chat"
			a.refreshConversation()
			return a, nil

		case "ctrl+p":
			a.currentView = viewModels
			return a, a.selector.Load(false)

		case "enter":
			input := strings.TrimSpace(a.textarea.Value())
			if input == "" {
				return a, nil
			}
			a.textarea.Reset()
			if cmd := a.handleInput(input); cmd != nil {
				cmds = append(cmds, cmd)
			}
			a.refreshConversation()
			return a, tea.Batch(cmds...)
		}

	case coordinatorEventMsg:
		if _, ok := a.coordinator.Apply(chat.Event(msg)); ok {
			a.refreshConversation()
		}
		return a, a.waitForEvent()

	case modelsLoadedMsg, modelsErrMsg:
		var cmd tea.Cmd
		a.selector, cmd = a.selector.Update(msg)
		return a, cmd

	case spinner.TickMsg:
		if a.coordinator.Busy() || a.encodingInProgress() {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if a.currentView == viewChat {
		var cmd tea.Cmd
		a.textarea, cmd = a.textarea.Update(msg)
		cmds = append(cmds, cmd)

		a.viewport, cmd = a.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// handleInput routes slash commands and regular messages.
func (a *App) handleInput(input string) tea.Cmd {
	switch {
	case strings.HasPrefix(input, "/upload "):
		paths := strings.Fields(strings.TrimPrefix(input, "/upload "))
		if len(paths) == 0 {
			a.status = "usage: /upload <path> [path...]"
			return nil
		}
		a.coordinator.SelectImages(paths)
		a.status = fmt.Sprintf("uploading %d image(s)", len(paths))
		return a.spinner.Tick

	case input == "/models":
		a.currentView = viewModels
		return a.selector.Load(false)

	case input == "/new":
		a.coordinator.NewChat()
		a.status = "started a new chat"
		return nil

	case input == "/quit", input == "/exit":
		return tea.Quit

	case input == "/help":
		a.status = helpText
		return nil
	}

	if !a.coordinator.CanSend(input) {
		a.status = "waiting for attachments to finish uploading"
		return nil
	}

	if _, err := a.coordinator.SendMessage(input); err != nil {
		a.status = err.Error()
		return nil
	}
	a.status = ""
	return a.spinner.Tick
}

func (a *App) encodingInProgress() bool {
	for _, att := range a.coordinator.Attachments() {
		if att.State == chat.AttachmentPending || att.State == chat.AttachmentEncoding {
			return true
		}
	}
	return false
}

// refreshConversation re-renders the viewport from coordinator state.
func (a *App) refreshConversation() {
	if !a.ready {
		return
	}

	var b strings.Builder
	for _, turn := range a.coordinator.Turns() {
		switch turn.Role {
		case chat.RoleUser:
			b.WriteString(a.styles.UserLabel.Render("You"))
			b.WriteString("\n" + turn.Text + "\n")
			for _, path := range turn.Images {
				b.WriteString(a.styles.Dim.Render("  [image] "+path) + "\n")
			}
		case chat.RoleAssistant:
			b.WriteString(a.styles.Header.Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(a.renderAssistant(turn))
		}
		b.WriteString("\n")
	}

	for _, att := range a.coordinator.Attachments() {
		b.WriteString(a.renderAttachment(att))
	}

	a.viewport.SetContent(b.String())
	a.viewport.GotoBottom()
}

func (a *App) renderAssistant(turn *chat.Turn) string {
	var b strings.Builder
	if turn.Text != "" {
		text := turn.Text
		// Markdown rendering only once the turn stopped streaming.
		if !a.coordinator.Busy() && a.renderer != nil {
			if rendered, err := a.renderer.Render(turn.Text); err == nil {
				text = rendered
			}
		}
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
	}
	if turn.Err != "" {
		b.WriteString(a.styles.Error.Render("error: "+turn.Err) + "\n")
	}
	return b.String()
}

func (a *App) renderAttachment(att *chat.Attachment) string {
	name := att.Path
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}

	switch att.State {
	case chat.AttachmentReady:
		return a.styles.Success.Render(fmt.Sprintf("✓ %s ready", name)) + "\n"
	case chat.AttachmentFailed:
		return a.styles.Error.Render(fmt.Sprintf("✗ %s: %s", name, att.Err)) + "\n"
	default:
		bar := a.progressBar.ViewAs(float64(att.Progress) / 100)
		return fmt.Sprintf("%s %s %s\n", a.spinner.View(), name, bar)
	}
}

func (a *App) View() string {
	if !a.ready {
		return "\nInitializing..."
	}

	if a.currentView == viewModels {
		return a.selector.View() + "\n" + a.styles.Help.Render("enter: select · esc: back")
	}

	var b strings.Builder

	header := fmt.Sprintf("VisionChat | Model: %s", a.coordinator.Model())
	b.WriteString(a.styles.Header.Render(header) + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	b.WriteString(a.viewport.View())
	b.WriteString("\n")

	if a.coordinator.Busy() {
		b.WriteString(fmt.Sprintf("%s Thinking... (esc to cancel)\n", a.spinner.View()))
	} else {
		b.WriteString(a.textarea.View() + "\n")
	}

	if a.status != "" {
		b.WriteString(a.styles.System.Render(a.status) + "\n")
	}
	b.WriteString(a.styles.Help.Render("enter: send · ctrl+p: models · ctrl+l: new chat · ctrl+c: quit"))

	return b.String()
}

const helpText = `commands: /upload <path>... attach images · /models pick a model · /new start over · /quit exit`
