package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) UpdateConfidence(confidence float64) {
	t.program.Send(ConfidenceMsg(confidence))
}

func (t *TUI) Say(role, msg string) {
	t.program.Send(SayMsg{Role: role, Content: msg})
}

func (t *TUI) Log(msg string) {
	t.program.Send(LogMsg(msg))
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FAF")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87D7FF"))

	archivistStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#D7AF87"))
)

type Model struct {
	Title      string
	Status     string
	Confidence float64
	Lines      []string
	Progress   progress.Model
	Viewport   viewport.Model
	Quitting   bool
	Ready      bool
	Width      int
	Height     int
}

type LogMsg string
type StatusMsg string
type ConfidenceMsg float64

type SayMsg struct {
	Role    string
	Content string
}

func NewModel(title string) Model {
	p := progress.New(progress.WithDefaultGradient())
	return Model{
		Title:    title,
		Status:   "gathering",
		Progress: p,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-8)
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 8
		}

	case SayMsg:
		label := archivistStyle.Render("archivist")
		if msg.Role == "user" {
			label = userStyle.Render("you")
		}
		m.Lines = append(m.Lines, fmt.Sprintf("%s: %s", label, msg.Content))
		m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
		m.Viewport.GotoBottom()

	case LogMsg:
		m.Lines = append(m.Lines, string(msg))
		m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
		m.Viewport.GotoBottom()

	case StatusMsg:
		m.Status = string(msg)

	case ConfidenceMsg:
		m.Confidence = float64(msg)
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Opening the archive..."
	}

	header := titleStyle.Render(" Archivist ")
	status := infoStyle.Render(fmt.Sprintf(" Phase: %s ", m.Status))
	conf := fmt.Sprintf(" Confidence: %.0f%% ", m.Confidence*100)

	prog := m.Progress.ViewAs(m.Confidence)

	view := fmt.Sprintf("%s%s%s\n\n%s\n\n%s",
		header, status, conf,
		m.Viewport.View(),
		prog)

	if m.Quitting {
		return view + "\n  Closing the archive...\n"
	}

	return view
}
