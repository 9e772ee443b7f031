package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfchat/internal/config"
	"pdfchat/internal/engine"
	"pdfchat/internal/progress"
	"pdfchat/internal/session"
)

const (
	tabDocuments = iota
	tabEngine
	tabChat
)

var tabTitles = []string{"1. Documents", "2. Engine", "3. Chat"}

// Model is the Bubble Tea model for the three-stage session UI.
// Long-running actions run as commands; a busy flag keeps at most one
// action in flight, so chat exchanges never queue up concurrently.
type Model struct {
	ctrl *session.Controller
	sess session.Session
	cfg  *config.AppConfig

	activeTab  int
	pathsInput textinput.Model
	chatInput  textinput.Model
	viewport   viewport.Model

	busy    bool
	busyTab int // tab that launched the in-flight action; progress goes there
	ready   bool
	pending string // question awaiting an answer, echoed in the chat view

	statusDocs   string
	statusEngine string
	statusChat   string

	answer     engine.Answer // last answer, source of the citation panel
	progressCh progress.Channel
}

type buildDoneMsg struct {
	sess session.Session
	err  error
}

type engineDoneMsg struct {
	sess session.Session
	err  error
}

type answerDoneMsg struct {
	sess session.Session
	ans  engine.Answer
	err  error
}

type progressMsg progress.Event

// New creates the TUI model. Paths pre-fills the document input so files
// can be passed on the command line.
func New(ctrl *session.Controller, cfg *config.AppConfig, paths []string) Model {
	pi := textinput.New()
	pi.Prompt = "> "
	pi.Placeholder = "path/to/document.pdf [more.pdf ...]"
	pi.CharLimit = 0
	pi.SetValue(strings.Join(paths, " "))
	pi.Focus()

	ci := textinput.New()
	ci.Prompt = "> "
	ci.Placeholder = "Type message and press Enter"
	ci.CharLimit = 0

	vp := viewport.New(0, 0)
	return Model{
		ctrl:         ctrl,
		sess:         session.NewSession(),
		cfg:          cfg,
		pathsInput:   pi,
		chatInput:    ci,
		viewport:     vp,
		statusDocs:   "None",
		statusEngine: "None",
		statusChat:   "None",
		progressCh:   make(progress.Channel, 8),
	}
}

// Init starts the cursor blink and the progress listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenProgress())
}

func (m Model) listenProgress() tea.Cmd {
	ch := m.progressCh
	return func() tea.Msg {
		return progressMsg(<-ch)
	}
}

// Update handles key events, window sizing and action completion messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.pathsInput.Width = msg.Width - 6
		m.chatInput.Width = msg.Width - 6
		_, fh := chatBoxStyle.GetFrameSize()
		vh := msg.Height - 14
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width-2)
		m.viewport.Height = maxInt(3, vh-fh)
		m.viewport.SetContent(m.renderChat())
		return m, nil

	case progressMsg:
		m.setStatus(msg.Label)
		return m, m.listenProgress()

	case buildDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.statusDocs = "Error: " + msg.err.Error()
			return m, nil
		}
		m.sess = msg.sess
		m.answer = engine.Answer{}
		m.statusEngine = "None"
		m.statusChat = "None"
		m.statusDocs = fmt.Sprintf("Complete! Collection %q, %d segments.", m.sess.Collection, m.sess.Index.Len())
		m.viewport.SetContent(m.renderChat())
		return m, nil

	case engineDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.statusEngine = "Error: " + msg.err.Error()
			return m, nil
		}
		m.sess = msg.sess
		m.answer = engine.Answer{}
		m.statusEngine = "Complete!"
		m.activeTab = tabChat
		m.focusActive()
		m.viewport.SetContent(m.renderChat())
		return m, nil

	case answerDoneMsg:
		m.busy = false
		m.pending = ""
		if msg.err != nil {
			m.statusChat = "Error: " + msg.err.Error()
			m.viewport.SetContent(m.renderChat())
			return m, nil
		}
		m.sess = msg.sess
		m.answer = msg.ans
		m.statusChat = "Complete!"
		m.viewport.SetContent(m.renderChat())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			m.activeTab = (m.activeTab + 1) % len(tabTitles)
			m.focusActive()
			return m, nil
		case "shift+tab":
			m.activeTab = (m.activeTab - 1 + len(tabTitles)) % len(tabTitles)
			m.focusActive()
			return m, nil
		case "ctrl+l":
			if m.activeTab == tabChat {
				m.sess = m.ctrl.ClearChat(m.sess)
				m.answer = engine.Answer{}
				m.statusChat = "None"
				m.viewport.SetContent(m.renderChat())
				return m, nil
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			return m.submit()
		case "up":
			if m.activeTab == tabChat {
				m.viewport.LineUp(1)
				return m, nil
			}
		case "down":
			if m.activeTab == tabChat {
				m.viewport.LineDown(1)
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	switch m.activeTab {
	case tabDocuments:
		m.pathsInput, cmd = m.pathsInput.Update(msg)
	case tabChat:
		m.chatInput, cmd = m.chatInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) focusActive() {
	m.pathsInput.Blur()
	m.chatInput.Blur()
	switch m.activeTab {
	case tabDocuments:
		m.pathsInput.Focus()
	case tabChat:
		m.chatInput.Focus()
	}
}

func (m *Model) setStatus(label string) {
	// The user may have switched tabs since the action started.
	switch m.busyTab {
	case tabDocuments:
		m.statusDocs = label
	case tabEngine:
		m.statusEngine = label
	case tabChat:
		m.statusChat = label
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	switch m.activeTab {
	case tabDocuments:
		paths := strings.Fields(m.pathsInput.Value())
		if len(paths) == 0 {
			m.statusDocs = "Error: no documents selected"
			return m, nil
		}
		m.busy = true
		m.busyTab = tabDocuments
		m.statusDocs = "Loading document..."
		return m, m.buildCmd(paths)
	case tabEngine:
		m.busy = true
		m.busyTab = tabEngine
		m.statusEngine = "Initializing..."
		return m, m.initEngineCmd()
	case tabChat:
		question := strings.TrimSpace(m.chatInput.Value())
		if question == "" {
			return m, nil
		}
		m.busy = true
		m.busyTab = tabChat
		m.pending = question
		m.statusChat = "Thinking..."
		m.chatInput.SetValue("")
		m.viewport.SetContent(m.renderChat())
		m.viewport.GotoBottom()
		return m, m.askCmd(question)
	}
	return m, nil
}

func (m Model) buildCmd(paths []string) tea.Cmd {
	ctrl, sess, sink := m.ctrl, m.sess, m.progressCh
	params := session.BuildParams{
		Paths:        paths,
		ChunkSize:    m.cfg.Chunker.ChunkSize,
		ChunkOverlap: m.cfg.Chunker.ChunkOverlap,
	}
	return func() tea.Msg {
		next, err := ctrl.BuildIndex(sess, params, sink)
		return buildDoneMsg{sess: next, err: err}
	}
}

func (m Model) initEngineCmd() tea.Cmd {
	ctrl, sess, sink := m.ctrl, m.sess, m.progressCh
	params := session.EngineParams{
		Model:        m.cfg.LLM.Model,
		Temperature:  m.cfg.LLM.Temperature,
		MaxNewTokens: m.cfg.LLM.MaxNewTokens,
		TopK:         m.cfg.LLM.TopK,
		Timeout:      m.cfg.LLM.TimeoutDuration(),
	}
	return func() tea.Msg {
		next, err := ctrl.InitEngine(sess, params, sink)
		return engineDoneMsg{sess: next, err: err}
	}
}

func (m Model) askCmd(question string) tea.Cmd {
	ctrl, sess := m.ctrl, m.sess
	return func() tea.Msg {
		next, ans, err := ctrl.Ask(context.Background(), sess, question)
		return answerDoneMsg{sess: next, ans: ans, err: err}
	}
}

// View renders the tab bar and the active tab.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	var body string
	switch m.activeTab {
	case tabDocuments:
		body = m.viewDocuments()
	case tabEngine:
		body = m.viewEngine()
	case tabChat:
		body = m.viewChat()
	}
	return m.renderTabs() + "\n" + body
}

func (m Model) renderTabs() string {
	parts := make([]string, len(tabTitles))
	for i, t := range tabTitles {
		if i == m.activeTab {
			parts[i] = activeTabStyle.Render(t)
		} else {
			parts[i] = inactiveTabStyle.Render(t)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) viewDocuments() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Document pre-processing"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("chunk size %d, overlap %d (edit config.yaml to change)",
		m.cfg.Chunker.ChunkSize, m.cfg.Chunker.ChunkOverlap)))
	b.WriteString("\n\n")
	b.WriteString(inputBoxStyle.Render(m.pathsInput.View()))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Enter: generate vector database   Tab: next step"))
	b.WriteString("\n\n")
	b.WriteString(statusStyle.Render("Status: " + m.statusDocs))
	if m.sess.Digest != "" {
		b.WriteString("\n\n")
		b.WriteString(headerStyle.Render("Digest"))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(m.sess.Digest))
	}
	return b.String()
}

func (m Model) viewEngine() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Question-answering engine"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Model: %s\n", m.cfg.LLM.Model))
	b.WriteString(dimStyle.Render(fmt.Sprintf("temperature %.1f, max tokens %d, top-k %d",
		m.cfg.LLM.Temperature, m.cfg.LLM.MaxNewTokens, m.cfg.LLM.TopK)))
	b.WriteString("\n\n")
	if m.sess.Index == nil {
		b.WriteString(dimStyle.Render("Process documents first (step 1)."))
	} else {
		b.WriteString(dimStyle.Render("Enter: initialize engine"))
	}
	b.WriteString("\n\n")
	b.WriteString(statusStyle.Render("Status: " + m.statusEngine))
	return b.String()
}

func (m Model) viewChat() string {
	var b strings.Builder
	b.WriteString(chatBoxStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.renderCitations())
	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(m.chatInput.View()))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render("Status: " + m.statusChat + "   (ctrl+l clears the chat)"))
	return b.String()
}

func (m Model) renderChat() string {
	if m.sess.Memory == nil {
		return "Process documents and initialize the engine first."
	}
	var b strings.Builder
	for _, t := range m.sess.Memory.History() {
		b.WriteString(userStyle.Render("You: ") + t.User + "\n")
		b.WriteString(botStyle.Render("Assistant: ") + t.Assistant + "\n\n")
	}
	if m.pending != "" {
		b.WriteString(userStyle.Render("You: ") + m.pending + "\n")
		b.WriteString(botStyle.Render("Assistant: ") + dimStyle.Render("...") + "\n")
	}
	if b.Len() == 0 {
		return "No messages yet."
	}
	return b.String()
}

// renderCitations shows up to two supporting excerpts with 1-based page
// numbers, degrading gracefully when fewer sources were retrieved.
func (m Model) renderCitations() string {
	lines := make([]string, 2)
	for i := 0; i < 2; i++ {
		label := fmt.Sprintf("Reference %d", i+1)
		if i < len(m.answer.Sources) {
			src := m.answer.Sources[i]
			lines[i] = fmt.Sprintf("%s (page %d): %s", label, src.Segment.Page+1, excerpt(src.Segment.Text, 160))
		} else {
			lines[i] = label + ": (no source)"
		}
	}
	return dimStyle.Render(lines[0] + "\n" + lines[1])
}

func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Underline(true).Padding(0, 2)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(0, 2)
	headerStyle      = lipgloss.NewStyle().Bold(true)
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	inputBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	chatBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
