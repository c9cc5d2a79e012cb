package usecase

import (
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
)

// machine is the single-owner session state machine. It holds every
// field that used to live as scattered flags across screens: one tagged
// state, the derived stage label and progress, and the verbatim
// transcript/note text. It does no locking of its own; the controller
// serializes all access.
type machine struct {
	state   domain.SessionState
	stage   domain.ProcessingStage
	label   string
	percent int

	sessionID  string
	transcript string
	note       string
	errMsg     string
}

func newMachine() *machine {
	return &machine{state: domain.SessionStateIdle}
}

// applyResult reports what one event changed so the controller knows
// which notifications to emit.
type applyResult struct {
	StateChanged    bool
	ProgressChanged bool
	Completed       bool
}

func (m *machine) startConnecting() bool {
	if m.state != domain.SessionStateIdle && m.state != domain.SessionStateErrored {
		return false
	}
	m.state = domain.SessionStateConnecting
	return true
}

// transportOpen promotes the machine to Ready. Mid-cycle reconnects do
// not regress the session state.
func (m *machine) transportOpen() bool {
	if m.state != domain.SessionStateIdle && m.state != domain.SessionStateConnecting {
		return false
	}
	m.state = domain.SessionStateReady
	return true
}

// transportGone is called when the connection is released outside an
// active cycle.
func (m *machine) transportGone() bool {
	switch m.state {
	case domain.SessionStateReady, domain.SessionStateConnecting, domain.SessionStateComplete:
		m.state = domain.SessionStateIdle
		return true
	}
	return false
}

// canStart reports whether a new recording may begin right now.
func (m *machine) canStart() bool {
	switch m.state {
	case domain.SessionStateReady, domain.SessionStateComplete, domain.SessionStateErrored:
		return true
	}
	return false
}

// startRecording enters a fresh cycle: prior transcript, note, session
// id and error are replaced, progress is reset.
func (m *machine) startRecording() {
	m.state = domain.SessionStateRecording
	m.stage = domain.StageNone
	m.label = ""
	m.percent = 0
	m.sessionID = ""
	m.transcript = ""
	m.note = ""
	m.errMsg = ""
}

// stopRecording hands the cycle over to the backend pipeline.
func (m *machine) stopRecording() {
	m.state = domain.SessionStateProcessing
	m.stage = domain.StageConverting
	m.label = labelConverting
}

// applyStatus folds one stage-update event into the machine.
func (m *machine) applyStatus(status string) applyResult {
	chunkWindow := m.state == domain.SessionStateRecording ||
		(m.state == domain.SessionStateProcessing && m.stage == domain.StageConverting)

	mapped := mapStatus(status, chunkWindow)
	if !mapped.Known {
		// Unknown status lines still surface to the user, but never
		// move the progress estimate.
		if status != "" && status != m.label {
			m.label = status
			return applyResult{ProgressChanged: true}
		}
		return applyResult{}
	}

	res := applyResult{}
	if mapped.Complete {
		res.StateChanged = m.state != domain.SessionStateComplete
		res.Completed = res.StateChanged
		m.state = domain.SessionStateComplete
		m.stage = domain.StageNone
	} else if mapped.Stage != domain.StageNone && m.state == domain.SessionStateProcessing && m.stage != mapped.Stage {
		m.stage = mapped.Stage
		res.StateChanged = true
	}

	if mapped.Label != m.label {
		m.label = mapped.Label
		res.ProgressChanged = true
	}
	if m.raisePercent(mapped.Percent) {
		res.ProgressChanged = true
	}
	return res
}

// applyTranscript stores backend transcript text verbatim, in any state.
func (m *machine) applyTranscript(text string) {
	m.transcript = text
}

// applyNote stores backend note text verbatim. Note arrival during an
// active cycle is an independent completion signal.
func (m *machine) applyNote(text string) applyResult {
	m.note = text

	switch m.state {
	case domain.SessionStateRecording, domain.SessionStateProcessing:
		m.state = domain.SessionStateComplete
		m.stage = domain.StageNone
		m.label = labelComplete
		m.raisePercent(100)
		return applyResult{StateChanged: true, ProgressChanged: true, Completed: true}
	}
	return applyResult{}
}

// applyError forces the Errored state. Progress resets to zero and the
// in-flight stage label is cleared, but transcript and note from the
// interrupted cycle are retained.
func (m *machine) applyError(message string) applyResult {
	if m.state == domain.SessionStateIdle {
		return applyResult{}
	}
	m.state = domain.SessionStateErrored
	m.stage = domain.StageNone
	m.label = ""
	m.percent = 0
	m.errMsg = message
	return applyResult{StateChanged: true, ProgressChanged: true}
}

// resetDisplay clears the finished cycle's progress after the
// completion display delay.
func (m *machine) resetDisplay() bool {
	if m.state != domain.SessionStateComplete {
		return false
	}
	m.percent = 0
	m.label = ""
	return true
}

// raisePercent enforces monotonic progress within a cycle.
func (m *machine) raisePercent(p int) bool {
	if p <= m.percent {
		return false
	}
	if p > 100 {
		p = 100
	}
	m.percent = p
	return true
}

func (m *machine) progress() domain.ProgressEstimate {
	return domain.ProgressEstimate{StageLabel: m.label, Percent: m.percent}
}
