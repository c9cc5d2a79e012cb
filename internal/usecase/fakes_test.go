package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

type sentFrame struct {
	binary bool
	data   []byte
}

// fakeTransport is an in-memory ports.Transport that records every frame
// and lets tests inject connect failures and spontaneous drops.
type fakeTransport struct {
	mu          sync.Mutex
	state       domain.ConnectionState
	frames      []sentFrame
	connects    int
	connectErrs []error
	failSends   int

	events    chan domain.StatusEvent
	lifecycle chan ports.ConnEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		state:     domain.ConnDisconnected,
		events:    make(chan domain.StatusEvent, 64),
		lifecycle: make(chan ports.ConnEvent, 64),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.connects++
	var err error
	if len(t.connectErrs) > 0 {
		err = t.connectErrs[0]
		t.connectErrs = t.connectErrs[1:]
	}
	if err != nil {
		t.state = domain.ConnFailed
		t.mu.Unlock()
		t.lifecycle <- ports.ConnEvent{State: domain.ConnFailed, Err: err}
		return err
	}
	t.state = domain.ConnOpen
	t.mu.Unlock()
	t.lifecycle <- ports.ConnEvent{State: domain.ConnOpen}
	return nil
}

func (t *fakeTransport) State() domain.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTransport) SendText(data []byte) error   { return t.send(false, data) }
func (t *fakeTransport) SendBinary(data []byte) error { return t.send(true, data) }

func (t *fakeTransport) send(binary bool, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.ConnOpen {
		return domain.ErrNotConnected
	}
	if t.failSends > 0 {
		t.failSends--
		t.state = domain.ConnDisconnected
		return domain.ErrTransportDropped
	}
	t.frames = append(t.frames, sentFrame{binary: binary, data: append([]byte(nil), data...)})
	return nil
}

func (t *fakeTransport) Events() <-chan domain.StatusEvent { return t.events }
func (t *fakeTransport) Lifecycle() <-chan ports.ConnEvent { return t.lifecycle }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.state = domain.ConnDisconnected
	t.mu.Unlock()
	t.lifecycle <- ports.ConnEvent{State: domain.ConnDisconnected, UserInitiated: true}
	return nil
}

// drop simulates a network-side connection loss.
func (t *fakeTransport) drop() {
	t.mu.Lock()
	t.state = domain.ConnDisconnected
	t.mu.Unlock()
	t.lifecycle <- ports.ConnEvent{State: domain.ConnDisconnected, Err: domain.ErrTransportDropped}
}

func (t *fakeTransport) pushStatus(event domain.StatusEvent) {
	t.events <- event
}

func (t *fakeTransport) sentFrames() []sentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentFrame(nil), t.frames...)
}

func (t *fakeTransport) connectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

type fakeSession struct {
	mu       sync.Mutex
	segments []domain.AudioSegment
	stopErr  error
	stopped  bool
	paused   bool
}

func (s *fakeSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *fakeSession) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (s *fakeSession) Stop() ([]domain.AudioSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, nil
	}
	s.stopped = true
	return s.segments, s.stopErr
}

func (s *fakeSession) SegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

type fakeCapture struct {
	mu       sync.Mutex
	session  *fakeSession
	startErr error
	starts   int
}

func (c *fakeCapture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.startErr != nil {
		return nil, c.startErr
	}
	return c.session, nil
}

type fakeAPI struct {
	mu          sync.Mutex
	corrected   string
	correctErr  error
	chatResp    ports.ChatResponse
	chatErr     error
	corrections []ports.CorrectionRequest
	chats       []ports.ChatRequest
}

func (a *fakeAPI) ListProviders(ctx context.Context) ([]domain.Provider, error) { return nil, nil }
func (a *fakeAPI) ListTemplates(ctx context.Context) ([]domain.Template, error) { return nil, nil }

func (a *fakeAPI) RequestCorrection(ctx context.Context, req ports.CorrectionRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.corrections = append(a.corrections, req)
	if a.correctErr != nil {
		return "", a.correctErr
	}
	return a.corrected, nil
}

func (a *fakeAPI) SendChatEdit(ctx context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chats = append(a.chats, req)
	if a.chatErr != nil {
		return ports.ChatResponse{}, a.chatErr
	}
	return a.chatResp, nil
}

type sinkError struct {
	Code   domain.ErrorCode
	Detail string
}

// recordSink captures controller notifications for assertion.
type recordSink struct {
	mu          sync.Mutex
	states      []domain.SessionState
	stages      []domain.ProcessingStage
	progress    []domain.ProgressEstimate
	transcripts []string
	notes       []string
	chats       []domain.ChatTurn
	errs        []sinkError
}

func (s *recordSink) SessionStateChanged(state domain.SessionState, stage domain.ProcessingStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
	s.stages = append(s.stages, stage)
}

func (s *recordSink) ProgressChanged(progress domain.ProgressEstimate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, progress)
}

func (s *recordSink) TranscriptUpdated(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, text)
}

func (s *recordSink) NoteUpdated(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, text)
}

func (s *recordSink) ChatReply(turn domain.ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, turn)
}

func (s *recordSink) SessionError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, sinkError{Code: code, Detail: detail})
}

func (s *recordSink) lastState() (domain.SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return "", false
	}
	return s.states[len(s.states)-1], true
}

func (s *recordSink) sawState(want domain.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st == want {
			return true
		}
	}
	return false
}

func (s *recordSink) lastProgress() (domain.ProgressEstimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.progress) == 0 {
		return domain.ProgressEstimate{}, false
	}
	return s.progress[len(s.progress)-1], true
}

func (s *recordSink) lastError() (sinkError, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return sinkError{}, false
	}
	return s.errs[len(s.errs)-1], true
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
