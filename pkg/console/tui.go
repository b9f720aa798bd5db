package console

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aeolun/echochat/pkg/chat"
)

const maxHistoryLines = 1000

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	operatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	echoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// noticeMsg carries a displayed notice into the event loop
type noticeMsg string

// handledMsg reports the result of running an operator line
type handledMsg struct {
	err error
}

// TUI is a full-screen operator console
type TUI struct {
	mu      sync.Mutex
	program *tea.Program
	pending []string
	opts    []tea.ProgramOption
}

// NewTUI creates a terminal console. opts are passed to the bubbletea program.
func NewTUI(opts ...tea.ProgramOption) *TUI {
	return &TUI{opts: opts}
}

// Display shows one notice. Notices displayed before Run are shown once the
// console starts.
func (t *TUI) Display(msg string) {
	t.mu.Lock()
	if t.program == nil {
		t.pending = append(t.pending, msg)
		t.mu.Unlock()
		return
	}
	p := t.program
	t.mu.Unlock()

	p.Send(noticeMsg(msg))
}

// Write lets the console receive log output; each line becomes a notice
func (t *TUI) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		t.Display(line)
	}
	return len(p), nil
}

// Run starts the console and blocks until handle returns an error or the
// operator presses Ctrl+C
func (t *TUI) Run(handle Handler) error {
	t.mu.Lock()
	m := newModel(handle, t.pending)
	t.pending = nil
	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, t.opts...)...)
	t.program = p
	t.mu.Unlock()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("run console: %w", err)
	}
	if fm, ok := final.(model); ok && fm.err != nil {
		return fm.err
	}
	return ErrClosed
}

type model struct {
	viewport viewport.Model
	input    textinput.Model
	lines    []string
	handle   Handler
	err      error
	ready    bool
}

func newModel(handle Handler, lines []string) model {
	input := textinput.New()
	input.Placeholder = "message or #command"
	input.Prompt = "> "
	input.CharLimit = 4096
	input.Focus()

	m := model{
		input:  input,
		handle: handle,
	}
	for _, line := range lines {
		m.lines = append(m.lines, styleNotice(line))
	}
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 3 // title and input rows
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - len(m.input.Prompt) - 1
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(line) == "" {
				return m, nil
			}
			m.appendLine(echoStyle.Render("> " + line))
			return m, m.execute(line)
		}

	case noticeMsg:
		m.appendLine(styleNotice(string(msg)))
		return m, nil

	case handledMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// execute runs the handler off the event loop; it may display notices, which
// are delivered back through Program.Send
func (m model) execute(line string) tea.Cmd {
	handle := m.handle
	return func() tea.Msg {
		return handledMsg{err: handle(line)}
	}
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxHistoryLines {
		m.lines = m.lines[len(m.lines)-maxHistoryLines:]
	}
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "Starting console..."
	}
	return fmt.Sprintf("%s\n%s\n%s",
		titleStyle.Render("EchoChat server console"),
		m.viewport.View(),
		m.input.View())
}

func styleNotice(msg string) string {
	switch {
	case isError(msg):
		return errorStyle.Render(msg)
	case strings.HasPrefix(msg, chat.OperatorPrefix):
		return operatorStyle.Render(msg)
	default:
		return msg
	}
}

// Quit stops a running console; Run then returns ErrClosed
func (t *TUI) Quit() {
	t.mu.Lock()
	p := t.program
	t.mu.Unlock()
	if p != nil {
		p.Quit()
	}
}
