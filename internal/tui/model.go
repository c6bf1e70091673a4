// Package tui is the interactive chat shell. It owns the session history as
// an explicit ordered turn log; the pipeline itself stays stateless.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
)

// AskPort is the TUI-facing subset of the service.
type AskPort interface {
	Ask(ctx context.Context, question string, mode domain.Mode) (domain.Answer, error)
}

// Turn is one entry of the session history.
type Turn struct {
	Role      string
	Content   string
	Sources   []domain.Chunk
	Citations []domain.Citation
}

type answerMsg struct {
	answer domain.Answer
	err    error
}

// Model is the Bubble Tea model for the chat shell.
type Model struct {
	service    AskPort
	input      textinput.Model
	viewport   viewport.Model
	turns      []Turn
	mode       domain.Mode
	status     string
	waiting    bool
	ready      bool
	cancelTurn context.CancelFunc
}

// New creates a new chat model starting in the given answer mode.
func New(service AskPort, mode domain.Mode) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	if mode == "" {
		mode = domain.ModeAnswer
	}
	return Model{
		service:  service,
		input:    ti,
		viewport: vp,
		mode:     mode,
		status:   "Index loaded. Ask away. Tab switches mode.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-th)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case answerMsg:
		m.waiting = false
		if m.cancelTurn != nil {
			m.cancelTurn()
			m.cancelTurn = nil
		}
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.turns = append(m.turns, Turn{
				Role:      "assistant",
				Content:   msg.answer.Text,
				Sources:   msg.answer.Sources,
				Citations: msg.answer.Citations,
			})
			m.status = fmt.Sprintf("Answered in %s mode.", m.mode)
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			if m.cancelTurn != nil {
				m.cancelTurn()
			}
			return m, tea.Quit
		}
		switch msg.String() {
		case "esc":
			if m.waiting && m.cancelTurn != nil {
				m.cancelTurn()
				m.status = "Cancelling..."
			}
			return m, nil
		case "tab":
			m.mode = nextMode(m.mode)
			m.status = fmt.Sprintf("Mode: %s", m.mode)
			return m, nil
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.waiting {
				m.turns = append(m.turns, Turn{Role: "user", Content: q})
				m.input.SetValue("")
				m.waiting = true
				m.status = "Thinking... (esc cancels)"
				m.viewport.SetContent(m.renderTranscript())
				m.viewport.GotoBottom()
				ctx, cancel := context.WithCancel(context.Background())
				m.cancelTurn = cancel
				return m, m.askCmd(ctx, q)
			}
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// askCmd runs one question-answering turn off the UI loop. The context is
// cancelled from the shell on esc or quit; a failed or cancelled turn only
// reports an error, the history of prior turns is untouched.
func (m Model) askCmd(ctx context.Context, question string) tea.Cmd {
	mode := m.mode
	return func() tea.Msg {
		ans, err := m.service.Ask(ctx, question, mode)
		return answerMsg{answer: ans, err: err}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docqa") +
		modeStyle.Render(fmt.Sprintf("  [%s]", m.mode))
	transcript := transcriptStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, turn := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch turn.Role {
		case "user":
			b.WriteString(userStyle.Render("You: ") + turn.Content)
		default:
			b.WriteString(assistantStyle.Render("Assistant: ") + turn.Content)
			b.WriteString(renderSources(turn.Sources))
			b.WriteString(renderCitations(turn.Citations))
		}
	}
	return b.String()
}

func renderSources(sources []domain.Chunk) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n" + sectionStyle.Render("Sources:"))
	for _, s := range sources {
		b.WriteString(fmt.Sprintf("\n  - %s (page %d)", s.Title, s.Page))
	}
	return b.String()
}

func renderCitations(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n" + sectionStyle.Render("Citations:"))
	for _, c := range citations {
		b.WriteString(fmt.Sprintf("\n  - %s, page %d: %q", c.Title, c.Page, c.Quotes))
	}
	return b.String()
}

func nextMode(mode domain.Mode) domain.Mode {
	switch mode {
	case domain.ModeAnswer:
		return domain.ModeSources
	case domain.ModeSources:
		return domain.ModeCitations
	default:
		return domain.ModeAnswer
	}
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	sectionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true)
	modeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
