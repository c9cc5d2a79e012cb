package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/usecase"
)

type connectedMsg struct{ err error }
type actionErrMsg struct{ err error }

// Model is the root bubbletea model for the recording screen.
type Model struct {
	ctx        context.Context
	controller *usecase.SessionController
	sink       *Sink

	state      domain.SessionState
	stage      domain.ProcessingStage
	progress   domain.ProgressEstimate
	paused     bool
	transcript string
	note       string
	errText    string

	bar  progress.Model
	spin spinner.Model

	width  int
	height int
}

func NewModel(ctx context.Context, controller *usecase.SessionController, sink *Sink) Model {
	bar := progress.New(progress.WithDefaultGradient())
	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	return Model{
		ctx:        ctx,
		controller: controller,
		sink:       sink,
		state:      domain.SessionStateIdle,
		bar:        bar,
		spin:       spin,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.connectCmd(),
		m.waitForEvent(),
		m.spin.Tick,
	)
}

func (m Model) connectCmd() tea.Cmd {
	return func() tea.Msg {
		return connectedMsg{err: m.controller.Connect(m.ctx)}
	}
}

// waitForEvent pulls the next controller notification into the loop.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.sink.msgs
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = msg.Width - 10
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case connectedMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
		}
		return m, nil

	case stateMsg:
		m.state = msg.State
		m.stage = msg.Stage
		if m.state != domain.SessionStateErrored {
			m.errText = ""
		}
		if m.state != domain.SessionStateRecording {
			m.paused = false
		}
		return m, m.waitForEvent()

	case progressMsg:
		m.progress = domain.ProgressEstimate(msg)
		return m, m.waitForEvent()

	case transcriptMsg:
		m.transcript = string(msg)
		return m, m.waitForEvent()

	case noteMsg:
		m.note = string(msg)
		return m, m.waitForEvent()

	case chatMsg:
		return m, m.waitForEvent()

	case errorMsg:
		m.errText = fmt.Sprintf("%s: %s", msg.Code, msg.Detail)
		return m, m.waitForEvent()

	case actionErrMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		_ = m.controller.Close()
		return m, tea.Quit

	case " ":
		switch m.state {
		case domain.SessionStateRecording:
			return m, func() tea.Msg {
				return actionErrMsg{err: m.controller.StopRecording(m.ctx)}
			}
		default:
			return m, func() tea.Msg {
				return actionErrMsg{err: m.controller.StartRecording(m.ctx)}
			}
		}

	case "p":
		if m.state != domain.SessionStateRecording {
			return m, nil
		}
		paused := !m.paused
		m.paused = paused
		return m, func() tea.Msg {
			if paused {
				return actionErrMsg{err: m.controller.PauseRecording()}
			}
			return actionErrMsg{err: m.controller.ResumeRecording()}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	snap := m.controller.Snapshot()

	b.WriteString(titleStyle.Render("Boise Prosthodontics AI Scribe"))
	b.WriteString("\n\n")

	b.WriteString(m.statusLine(snap))
	b.WriteString("\n")

	label := m.progress.StageLabel
	if label == "" {
		label = " "
	}
	b.WriteString(stageStyle.Render(label))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(float64(m.progress.Percent) / 100))
	b.WriteString(fmt.Sprintf(" %d%%\n\n", m.progress.Percent))

	b.WriteString(m.pane("Transcript", m.transcript))
	b.WriteString("\n")
	b.WriteString(m.pane("SOAP Note", m.note))
	b.WriteString("\n")

	if m.errText != "" {
		b.WriteString(errorStyle.Render("error: " + m.errText))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("space: record/stop • p: pause • q: quit"))
	return b.String()
}

func (m Model) statusLine(snap domain.Snapshot) string {
	var dot, text string
	switch m.state {
	case domain.SessionStateRecording:
		if m.paused {
			dot = pausedDotStyle.Render("●")
			text = "paused"
		} else {
			dot = recordingDotStyle.Render("●")
			text = "recording"
		}
	case domain.SessionStateProcessing:
		dot = m.spin.View()
		text = "processing"
	case domain.SessionStateReady, domain.SessionStateComplete:
		dot = readyDotStyle.Render("●")
		text = string(m.state)
	default:
		dot = idleDotStyle.Render("●")
		text = string(m.state)
	}

	provider := snap.Provider
	if provider == "" {
		provider = "no provider"
	}
	template := snap.Template
	if template == "" {
		template = "default template"
	}
	return fmt.Sprintf("%s %s  %s", dot, text,
		helpStyle.Render(fmt.Sprintf("%s · %s", provider, template)))
}

func (m Model) pane(title, content string) string {
	width := m.width - 4
	if width < 20 {
		width = 76
	}
	if content == "" {
		content = helpStyle.Render("(empty)")
	}
	body := lipgloss.JoinVertical(lipgloss.Left, paneTitleStyle.Render(title), content)
	return paneStyle.Width(width).Render(body)
}
