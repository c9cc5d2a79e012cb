package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
)

// Messages delivered to the bubbletea model.
type (
	stateMsg struct {
		State domain.SessionState
		Stage domain.ProcessingStage
	}
	progressMsg   domain.ProgressEstimate
	transcriptMsg string
	noteMsg       string
	chatMsg       domain.ChatTurn
	errorMsg      struct {
		Code   domain.ErrorCode
		Detail string
	}
)

// Sink bridges controller notifications into the bubbletea event loop.
// Sends never block the controller; if the UI falls behind, the model
// resynchronizes from the next snapshot render.
type Sink struct {
	msgs chan tea.Msg
}

func NewSink() *Sink {
	return &Sink{msgs: make(chan tea.Msg, 64)}
}

func (s *Sink) SessionStateChanged(state domain.SessionState, stage domain.ProcessingStage) {
	s.post(stateMsg{State: state, Stage: stage})
}

func (s *Sink) ProgressChanged(progress domain.ProgressEstimate) {
	s.post(progressMsg(progress))
}

func (s *Sink) TranscriptUpdated(text string) {
	s.post(transcriptMsg(text))
}

func (s *Sink) NoteUpdated(text string) {
	s.post(noteMsg(text))
}

func (s *Sink) ChatReply(turn domain.ChatTurn) {
	s.post(chatMsg(turn))
}

func (s *Sink) SessionError(code domain.ErrorCode, detail string) {
	s.post(errorMsg{Code: code, Detail: detail})
}

func (s *Sink) post(msg tea.Msg) {
	select {
	case s.msgs <- msg:
	default:
	}
}
