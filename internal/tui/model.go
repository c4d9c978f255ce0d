package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"forumrag/internal/synth"
)

// Model is the Bubble Tea model for the interactive REPL.
type Model struct {
	session    *Session
	input      textinput.Model
	viewport   viewport.Model
	transcript *strings.Builder
	status     string
	banner     string
	ready      bool

	// set while an answer is streaming
	stream *synth.Stream
	cancel context.CancelFunc
}

type outputMsg struct{ text string }

type streamOpenedMsg struct {
	stream *synth.Stream
	err    error
}

type fragmentMsg struct {
	frag synth.Fragment
	ok   bool
}

// New creates the REPL model. banner is shown under the title.
func New(session *Session, banner string) Model {
	session.highlight = highlightBestSentence
	ti := textinput.New()
	ti.Prompt = "Query: "
	ti.Placeholder = "search <query>, ask <question>, post <id>, help, quit"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		session:    session,
		input:      ti,
		viewport:   vp,
		transcript: &strings.Builder{},
		banner:     banner,
		status:     "Type 'quit' to exit, 'help' for commands",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, banner, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil

	case outputMsg:
		m.appendOutput(msg.text + "\n\n")
		m.status = "Ready"
		return m, nil

	case streamOpenedMsg:
		if msg.err != nil {
			m.appendOutput(errorLine(msg.err) + "\n\n")
			m.finishStream()
			return m, nil
		}
		m.stream = msg.stream
		m.appendOutput("Answer: ")
		return m, nextFragment(m.stream)

	case fragmentMsg:
		if !msg.ok || m.stream == nil {
			m.finishStream()
			return m, nil
		}
		switch msg.frag.Kind {
		case synth.FragmentText:
			m.appendOutput(msg.frag.Text)
			return m, nextFragment(m.stream)
		case synth.FragmentError:
			m.appendOutput("\n" + errorLine(msg.frag.Err))
		}
		m.appendOutput("\n\n")
		m.finishStream()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.abortStream()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.cancel != nil {
				m.abortStream()
				m.status = "Answer cancelled"
				return m, nil
			}
		case tea.KeyPgUp:
			m.viewport.HalfViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.viewport.HalfViewDown()
			return m, nil
		case tea.KeyEnter:
			if m.cancel != nil {
				return m, nil
			}
			line := m.input.Value()
			m.input.SetValue("")
			return m.run(ParseCommand(line))
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) run(c Command) (tea.Model, tea.Cmd) {
	s := m.session
	switch c.Kind {
	case CmdQuit:
		return m, tea.Quit
	case CmdHelp:
		m.appendOutput(s.Help() + "\n\n")
		return m, nil
	case CmdSearch:
		m.status = "Searching..."
		return m, func() tea.Msg { return outputMsg{s.Search(context.Background(), c.Arg)} }
	case CmdPost:
		return m, func() tea.Msg { return outputMsg{s.Post(context.Background(), c.Arg)} }
	case CmdAsk:
		if c.Arg == "" {
			m.appendOutput("Please provide a question.\n\n")
			return m, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.status = "Thinking... (esc to cancel)"
		m.appendOutput("Question: " + c.Arg + "\n")
		return m, func() tea.Msg {
			stream, _, err := s.Ask(ctx, c.Arg)
			return streamOpenedMsg{stream: stream, err: err}
		}
	}
	return m, nil
}

// nextFragment pulls one fragment off the stream in a command goroutine.
func nextFragment(s *synth.Stream) tea.Cmd {
	return func() tea.Msg {
		frag, ok := s.Next()
		return fragmentMsg{frag: frag, ok: ok}
	}
}

// abortStream cancels the in-flight answer. The pending Next observes the
// cancellation and delivers an Error fragment.
func (m *Model) abortStream() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Model) finishStream() {
	if m.stream != nil {
		_ = m.stream.Close()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.stream = nil
	m.cancel = nil
	m.status = "Ready"
	m.refresh()
}

func (m *Model) appendOutput(s string) {
	m.transcript.WriteString(s)
	m.refresh()
}

func (m *Model) refresh() {
	if m.transcript.Len() == 0 {
		m.viewport.SetContent("No results yet.")
		return
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(m.transcript.String()))
	m.viewport.GotoBottom()
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Forum Query System")
	banner := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.banner)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + banner + "\n" + results + "\n" + input + "\n" + status
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
