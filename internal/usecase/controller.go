package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

// SessionController is the façade the presentation layer talks to. It
// owns exactly one session at a time: one transport, one capture, one
// state machine. Capture callbacks and transport events both funnel
// through the controller mutex, so session state only ever mutates in
// arrival order.
type SessionController struct {
	capture   ports.AudioCapture
	transport ports.Transport
	api       ports.BackendAPI
	events    ports.EventSink
	cfg       Config
	log       *slog.Logger

	streamer *chunkStreamer
	policy   *reconnectPolicy

	mu          sync.Mutex
	machine     *machine
	rec         ports.CaptureSession
	starting    bool
	uploading   bool
	paused      bool
	provider    domain.Provider
	template    domain.Template
	chat        []domain.ChatTurn
	recordingID string
	cycle       int
	startedAt   time.Time
}

func NewSessionController(
	capture ports.AudioCapture,
	transport ports.Transport,
	api ports.BackendAPI,
	events ports.EventSink,
	cfg Config,
	log *slog.Logger,
) *SessionController {
	cfg = cfg.withDefaults()
	return &SessionController{
		capture:   capture,
		transport: transport,
		api:       api,
		events:    events,
		cfg:       cfg,
		log:       log,
		machine:   newMachine(),
		streamer:  newChunkStreamer(transport, cfg.ChunkSize, cfg.FrameDelay, log),
		policy:    newReconnectPolicy(transport, cfg.ReconnectDelay, log),
	}
}

// Run consumes transport events until ctx is cancelled. It must be
// running for the controller to make progress; callers start it once,
// in its own goroutine.
func (c *SessionController) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.transport.Events():
			if !ok {
				return
			}
			c.handleStatusEvent(event)
		case change, ok := <-c.transport.Lifecycle():
			if !ok {
				return
			}
			c.handleConnEvent(ctx, change)
		}
	}
}

// Connect acquires the transport for this session. Ready is reported
// asynchronously once the connection opens.
func (c *SessionController) Connect(ctx context.Context) error {
	c.mu.Lock()
	changed := c.machine.startConnecting()
	state, stage := c.machine.state, c.machine.stage
	c.mu.Unlock()

	// The transport's own Connecting lifecycle event finds the machine
	// already transitioned, so the notification has to happen here.
	if changed {
		c.events.SessionStateChanged(state, stage)
	}
	return c.transport.Connect(ctx)
}

// SelectProvider picks the clinician attached to the next recording.
func (c *SessionController) SelectProvider(provider domain.Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil || c.uploading {
		return ErrRecordingActive
	}
	c.provider = provider
	return nil
}

// SelectTemplate picks the note template for the next recording.
func (c *SessionController) SelectTemplate(template domain.Template) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil || c.uploading {
		return ErrRecordingActive
	}
	c.template = template
	return nil
}

// StartRecording acquires the microphone and begins a new cycle. The
// action is rejected, not queued, when the session is not Ready or no
// provider is selected.
func (c *SessionController) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.rec != nil || c.uploading || c.starting {
		c.mu.Unlock()
		return ErrRecordingActive
	}
	if c.provider.Name == "" {
		c.mu.Unlock()
		return ErrNoProvider
	}
	if c.transport.State() != domain.ConnOpen || !c.machine.canStart() {
		c.mu.Unlock()
		return fmt.Errorf("%w: state=%s transport=%s", ErrNotReady, c.machine.state, c.transport.State())
	}
	c.starting = true
	c.mu.Unlock()

	rec, err := c.capture.Start(ctx, c.cfg.Capture)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		c.events.SessionError(captureErrorCode(err), err.Error())
		return err
	}

	c.rec = rec
	c.paused = false
	c.cycle++
	c.recordingID = uuid.NewString()
	c.startedAt = time.Now().UTC()
	c.policy.resetCycle()
	c.machine.startRecording()
	state, stage := c.machine.state, c.machine.stage
	progress := c.machine.progress()
	c.mu.Unlock()

	c.log.Info("recording started", "recordingID", c.recordingID, "provider", c.provider.Name)
	c.events.SessionStateChanged(state, stage)
	c.events.ProgressChanged(progress)
	return nil
}

// PauseRecording suspends segment emission without releasing the
// microphone.
func (c *SessionController) PauseRecording() error {
	c.mu.Lock()
	rec := c.rec
	if rec == nil {
		c.mu.Unlock()
		return ErrNoActiveRecording
	}
	c.paused = true
	c.mu.Unlock()
	return rec.Pause()
}

// ResumeRecording continues segment emission after a pause.
func (c *SessionController) ResumeRecording() error {
	c.mu.Lock()
	rec := c.rec
	if rec == nil {
		c.mu.Unlock()
		return ErrNoActiveRecording
	}
	c.paused = false
	c.mu.Unlock()
	return rec.Resume()
}

// StopRecording releases the microphone and uploads the captured audio.
// It returns once the sentinel frame is on the wire; transcript and
// note arrive later through transport events. Once started, the upload
// runs to completion.
func (c *SessionController) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	rec := c.rec
	if rec == nil {
		c.mu.Unlock()
		return ErrNoActiveRecording
	}
	c.rec = nil
	c.paused = false
	c.uploading = true
	c.machine.stopRecording()
	state, stage := c.machine.state, c.machine.stage
	progress := c.machine.progress()
	info := sessionInfo{Type: "session_info", Doctor: c.provider.Name, Template: c.template.ID}
	c.mu.Unlock()

	c.events.SessionStateChanged(state, stage)
	c.events.ProgressChanged(progress)

	segments, err := rec.Stop()
	if err != nil {
		c.finishUpload()
		c.failCycle(domain.ErrorCodeDevice, fmt.Errorf("failed to stop capture: %w", err))
		return err
	}

	c.log.Info("uploading recording", "segments", len(segments))
	err = c.streamer.stream(ctx, info, segments, c.ensureOpen)
	c.finishUpload()
	if err != nil {
		c.failCycle(domain.ErrorCodeUpload, err)
		return err
	}
	return nil
}

// RequestCorrection submits the current transcript/note plus a
// free-text instruction and replaces the note with the result.
func (c *SessionController) RequestCorrection(ctx context.Context, instruction string) (string, error) {
	c.mu.Lock()
	req := ports.CorrectionRequest{
		RecordingID: c.recordingID,
		Note:        c.machine.note,
		Instruction: instruction,
		Transcript:  c.machine.transcript,
	}
	c.mu.Unlock()

	corrected, err := c.api.RequestCorrection(ctx, req)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeBackend, err.Error())
		return "", err
	}

	c.mu.Lock()
	c.machine.note = corrected
	c.mu.Unlock()
	c.events.NoteUpdated(corrected)
	return corrected, nil
}

// SendChatEdit submits one conversational editing turn with the recent
// history window and applies any revised note the backend returns.
func (c *SessionController) SendChatEdit(ctx context.Context, message string) (domain.ChatTurn, error) {
	c.mu.Lock()
	history := make([]domain.ChatTurn, len(c.chat))
	copy(history, c.chat)
	req := ports.ChatRequest{
		RecordingID: c.recordingID,
		Note:        c.machine.note,
		Transcript:  c.machine.transcript,
		Message:     message,
		History:     history,
	}
	c.mu.Unlock()

	resp, err := c.api.SendChatEdit(ctx, req)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeBackend, err.Error())
		return domain.ChatTurn{}, err
	}

	reply := domain.ChatTurn{Role: domain.ChatRoleAssistant, Text: resp.Reply}

	c.mu.Lock()
	c.chat = append(c.chat,
		domain.ChatTurn{Role: domain.ChatRoleUser, Text: message},
		reply,
	)
	if overflow := len(c.chat) - c.cfg.ChatHistory; overflow > 0 {
		c.chat = append([]domain.ChatTurn(nil), c.chat[overflow:]...)
	}
	noteChanged := resp.UpdatedNote != ""
	if noteChanged {
		c.machine.note = resp.UpdatedNote
	}
	c.mu.Unlock()

	c.events.ChatReply(reply)
	if noteChanged {
		c.events.NoteUpdated(resp.UpdatedNote)
	}
	return reply, nil
}

// Snapshot returns a point-in-time view for the presentation layer.
func (c *SessionController) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Snapshot{
		SessionID:  c.machine.sessionID,
		State:      c.machine.state,
		Stage:      c.machine.stage,
		Progress:   c.machine.progress(),
		Paused:     c.paused,
		Provider:   c.provider.Name,
		Template:   c.template.Name,
		Transcript: c.machine.transcript,
		Note:       c.machine.note,
		ErrMessage: c.machine.errMsg,
		StartedAt:  c.startedAt,
	}
}

// Close tears the session down: any active capture is discarded and the
// transport is released.
func (c *SessionController) Close() error {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()

	if rec != nil {
		if _, err := rec.Stop(); err != nil {
			c.log.Warn("failed to stop capture during close", "error", err)
		}
	}
	return c.transport.Close()
}

// ensureOpen is the streamer's hook into the reconnect policy.
func (c *SessionController) ensureOpen(ctx context.Context) error {
	if c.transport.State() == domain.ConnOpen {
		return nil
	}
	return c.policy.reestablish(ctx)
}

func (c *SessionController) handleStatusEvent(event domain.StatusEvent) {
	c.mu.Lock()

	switch event.Kind {
	case domain.EventSessionAssigned:
		c.machine.sessionID = event.SessionID
		c.mu.Unlock()
		c.log.Debug("session assigned", "sessionID", event.SessionID)

	case domain.EventStageUpdate:
		res := c.machine.applyStatus(event.Status)
		state, stage := c.machine.state, c.machine.stage
		progress := c.machine.progress()
		cycle := c.cycle
		c.mu.Unlock()

		if res.StateChanged {
			c.events.SessionStateChanged(state, stage)
		}
		if res.ProgressChanged {
			c.events.ProgressChanged(progress)
		}
		if res.Completed {
			c.scheduleDisplayReset(cycle)
		}

	case domain.EventTranscriptUpdate:
		c.machine.applyTranscript(event.Transcript)
		c.mu.Unlock()
		c.events.TranscriptUpdated(event.Transcript)

	case domain.EventNoteUpdate:
		res := c.machine.applyNote(event.Note)
		state, stage := c.machine.state, c.machine.stage
		progress := c.machine.progress()
		cycle := c.cycle
		c.mu.Unlock()

		c.events.NoteUpdated(event.Note)
		if res.StateChanged {
			c.events.SessionStateChanged(state, stage)
		}
		if res.ProgressChanged {
			c.events.ProgressChanged(progress)
		}
		if res.Completed {
			c.scheduleDisplayReset(cycle)
		}

	case domain.EventErrorOccurred:
		res := c.machine.applyError(event.Message)
		state, stage := c.machine.state, c.machine.stage
		progress := c.machine.progress()
		c.mu.Unlock()

		c.log.Error("backend reported error", "message", event.Message)
		c.events.SessionError(domain.ErrorCodeBackend, event.Message)
		if res.StateChanged {
			c.events.SessionStateChanged(state, stage)
		}
		if res.ProgressChanged {
			c.events.ProgressChanged(progress)
		}

	default:
		c.mu.Unlock()
	}
}

func (c *SessionController) handleConnEvent(ctx context.Context, change ports.ConnEvent) {
	switch change.State {
	case domain.ConnConnecting:
		c.mu.Lock()
		changed := c.machine.startConnecting()
		state, stage := c.machine.state, c.machine.stage
		c.mu.Unlock()
		if changed {
			c.events.SessionStateChanged(state, stage)
		}

	case domain.ConnOpen:
		c.mu.Lock()
		changed := c.machine.transportOpen()
		state, stage := c.machine.state, c.machine.stage
		c.mu.Unlock()
		if changed {
			c.events.SessionStateChanged(state, stage)
		}

	case domain.ConnDisconnected:
		c.handleDisconnect(ctx, change)

	case domain.ConnFailed:
		c.mu.Lock()
		cycleActive := c.machine.state == domain.SessionStateRecording ||
			c.machine.state == domain.SessionStateProcessing
		c.mu.Unlock()
		// Mid-cycle connect failures escalate through the reconnect
		// path that requested them; only an initial connect failure is
		// surfaced here.
		if !cycleActive && change.Err != nil {
			c.failCycle(domain.ErrorCodeConnect, change.Err)
		}
	}
}

func (c *SessionController) handleDisconnect(ctx context.Context, change ports.ConnEvent) {
	c.mu.Lock()
	cycleActive := c.machine.state == domain.SessionStateRecording ||
		c.machine.state == domain.SessionStateProcessing
	uploading := c.uploading
	changed := false
	var state domain.SessionState
	var stage domain.ProcessingStage
	if change.UserInitiated || !cycleActive {
		changed = c.machine.transportGone()
		state, stage = c.machine.state, c.machine.stage
	}
	c.mu.Unlock()

	if changed {
		c.events.SessionStateChanged(state, stage)
	}
	if change.UserInitiated || !cycleActive {
		return
	}

	// Mid-upload drops are recovered by the streamer's own send path;
	// kicking off a second attempt here would burn the retry budget.
	if uploading {
		return
	}

	c.log.Warn("transport dropped mid-session, attempting recovery", "error", change.Err)
	go func() {
		if err := c.policy.reestablish(ctx); err != nil {
			cause := change.Err
			if cause == nil {
				cause = domain.ErrTransportDropped
			}
			c.failCycle(domain.ErrorCodeTransport, fmt.Errorf("%v (reconnect failed: %v)", cause, err))
		}
	}()
}

// failCycle forces the Errored state with a human-readable message.
func (c *SessionController) failCycle(code domain.ErrorCode, cause error) {
	c.mu.Lock()
	res := c.machine.applyError(cause.Error())
	state, stage := c.machine.state, c.machine.stage
	progress := c.machine.progress()
	c.mu.Unlock()

	c.log.Error("session cycle failed", "code", code, "error", cause)
	c.events.SessionError(code, cause.Error())
	if res.StateChanged {
		c.events.SessionStateChanged(state, stage)
	}
	if res.ProgressChanged {
		c.events.ProgressChanged(progress)
	}
}

func (c *SessionController) finishUpload() {
	c.mu.Lock()
	c.uploading = false
	c.mu.Unlock()
}

// scheduleDisplayReset drops the progress display back to zero a short
// while after completion, unless a new cycle has already begun.
func (c *SessionController) scheduleDisplayReset(cycle int) {
	time.AfterFunc(c.cfg.DisplayDelay, func() {
		c.mu.Lock()
		if c.cycle != cycle || !c.machine.resetDisplay() {
			c.mu.Unlock()
			return
		}
		progress := c.machine.progress()
		c.mu.Unlock()
		c.events.ProgressChanged(progress)
	})
}

func captureErrorCode(err error) domain.ErrorCode {
	if errors.Is(err, domain.ErrPermissionDenied) {
		return domain.ErrorCodePermission
	}
	return domain.ErrorCodeDevice
}
