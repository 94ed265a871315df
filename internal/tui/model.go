package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"studyrag/internal/domain"
	"studyrag/internal/textutil"
)

// Answerer is the TUI-facing subset of the orchestrator.
type Answerer interface {
	AnswerQuery(ctx context.Context, q domain.Query) (*domain.Answer, error)
}

// maxHistory bounds the chat turns sent back with each question.
const maxHistory = 10

var modes = []domain.Mode{domain.ModeChat, domain.ModeQuiz, domain.ModeHint, domain.ModeAnswer}

type answerMsg struct {
	query  string
	answer *domain.Answer
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	answerer    Answerer
	documentIDs []string
	timeout     time.Duration

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	summary   string
	status    string
	mode      int
	history   []domain.Turn
	answer    *domain.Answer
	lastQuery string
	cursor    int
	reveal    bool
	busy      bool
	ready     bool
}

// New creates a TUI over the given documents.
func New(answerer Answerer, documentIDs []string, summary string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your notes and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return Model{
		answerer:    answerer,
		documentIDs: documentIDs,
		timeout:     timeout,
		input:       ti,
		viewport:    viewport.New(0, 0),
		spinner:     sp,
		summary:     summary,
		status:      "Loaded. Tab switches mode.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) currentMode() domain.Mode { return modes[m.mode] }

func (m Model) ask(text string) tea.Cmd {
	q := domain.Query{
		Text:        text,
		DocumentIDs: m.documentIDs,
		Mode:        m.currentMode(),
	}
	if q.Mode == domain.ModeQuiz {
		q.Topic = text
	}
	if q.Mode == domain.ModeChat {
		q.History = append([]domain.Turn(nil), m.history...)
	}
	answerer, timeout := m.answerer, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ans, err := answerer.AnswerQuery(ctx, q)
		return answerMsg{query: text, answer: ans, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.answer = msg.answer
		m.lastQuery = msg.query
		m.cursor = 0
		m.reveal = false
		if msg.answer.Mode == domain.ModeChat {
			m.history = append(m.history,
				domain.Turn{Role: domain.RoleUser, Content: msg.query},
				domain.Turn{Role: domain.RoleAssistant, Content: msg.answer.Text},
			)
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
		}
		m.status = fmt.Sprintf("%s answer from %d excerpts", msg.answer.Mode, len(msg.answer.Sources))
		m.viewport.SetContent(m.renderCurrent())
		m.viewport.GotoTop()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if m.busy {
				return m, nil
			}
			q := strings.TrimSpace(m.input.Value())
			if q == "" && m.currentMode() != domain.ModeQuiz {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Asking (%s)...", m.currentMode())
			m.input.SetValue("")
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		case "tab":
			m.mode = (m.mode + 1) % len(modes)
			m.status = "Mode: " + string(m.currentMode())
			return m, nil
		case "ctrl+r":
			m.reveal = !m.reveal
			m.viewport.SetContent(m.renderCurrent())
			return m, nil
		case "down":
			if m.answer != nil && len(m.answer.Sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.answer.Sources)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if m.answer != nil && len(m.answer.Sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.answer.Sources)) % len(m.answer.Sources)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "pgdown":
			m.viewport.HalfViewDown()
			return m, nil
		case "pgup":
			m.viewport.HalfViewUp()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Study Assistant") + "  " +
		modeStyle.Render("["+string(m.currentMode())+"]")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	statusText := m.status
	if m.busy {
		statusText = m.spinner.View() + " " + statusText
	}
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(statusText)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if m.answer == nil {
		return "No answer yet. Tab: mode  Enter: ask  Up/Down: excerpts  Ctrl+R: reveal quiz answers"
	}
	var b strings.Builder
	if m.answer.Quiz != nil {
		b.WriteString(renderQuiz(m.answer.Quiz, m.reveal))
	} else {
		b.WriteString(m.answer.Text)
	}
	if n := len(m.answer.Sources); n > 0 {
		fmt.Fprintf(&b, "\n\n%s\n\n", dimStyle.Render(fmt.Sprintf("Excerpt %d/%d", m.cursor+1, n)))
		b.WriteString(highlightBestSentence(m.answer.Sources[m.cursor], m.lastQuery))
	}
	return b.String()
}

func renderQuiz(q *domain.Quiz, reveal bool) string {
	var b strings.Builder
	if q.Topic != "" {
		fmt.Fprintf(&b, "Quiz: %s\n\n", q.Topic)
	}
	for i, question := range q.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, question.Question)
		for j, opt := range question.Options {
			line := fmt.Sprintf("   %c) %s", 'A'+j, opt)
			if reveal && j == question.CorrectAnswer {
				line = highlightStyle.Render(line + "  ✓")
			}
			b.WriteString(line + "\n")
		}
		if reveal && question.Explanation != "" {
			b.WriteString(dimStyle.Render("   "+question.Explanation) + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	modeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// highlightBestSentence emphasizes the sentence sharing the most terms with
// the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(text)
	qTerms := textutil.TermSet(query)
	if len(qTerms) == 0 || len(sentences) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := 0
		for t := range textutil.TermSet(s) {
			if _, ok := qTerms[t]; ok {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	out := make([]string, len(sentences))
	copy(out, sentences)
	out[bestIdx] = highlightStyle.Render(out[bestIdx])
	return strings.Join(out, " ")
}
