package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

type controllerFixture struct {
	controller *SessionController
	transport  *fakeTransport
	capture    *fakeCapture
	api        *fakeAPI
	sink       *recordSink
	cancel     context.CancelFunc
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	transport := newFakeTransport()
	capture := &fakeCapture{session: &fakeSession{
		segments: segmentsFrom("abcde", "fgh", "ij"),
	}}
	api := &fakeAPI{}
	sink := &recordSink{}

	controller := NewSessionController(capture, transport, api, sink, Config{
		ChunkSize:      1024,
		FrameDelay:     0,
		ReconnectDelay: time.Millisecond,
		DisplayDelay:   30 * time.Millisecond,
		ChatHistory:    4,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go controller.Run(ctx)
	t.Cleanup(cancel)

	return &controllerFixture{
		controller: controller,
		transport:  transport,
		capture:    capture,
		api:        api,
		sink:       sink,
		cancel:     cancel,
	}
}

func (f *controllerFixture) connectReady(t *testing.T) {
	t.Helper()
	require.NoError(t, f.controller.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().State == domain.SessionStateReady
	}, waitFor, tick)
}

func (f *controllerFixture) selectSession(t *testing.T) {
	t.Helper()
	require.NoError(t, f.controller.SelectProvider(domain.Provider{ID: "p1", Name: "Dr. Baker"}))
	require.NoError(t, f.controller.SelectTemplate(domain.Template{ID: "soap", Name: "SOAP"}))
}

func TestControllerFullRecordingCycle(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.connectReady(t)
	f.selectSession(t)

	// Three captured segments spanning more than one wire slice.
	audio := strings.Repeat("a", 700) + strings.Repeat("b", 700) + strings.Repeat("c", 400)
	f.capture.session = &fakeSession{segments: segmentsFrom(
		strings.Repeat("a", 700), strings.Repeat("b", 700), strings.Repeat("c", 400),
	)}

	ctx := context.Background()
	require.NoError(t, f.controller.StartRecording(ctx))
	require.Equal(t, domain.SessionStateRecording, f.controller.Snapshot().State)

	require.NoError(t, f.controller.StopRecording(ctx))

	// Upload frames: metadata, two audio slices in offset order, sentinel.
	frames := f.transport.sentFrames()
	require.Len(t, frames, 4)
	require.False(t, frames[0].binary)
	require.Contains(t, string(frames[0].data), `"doctor":"Dr. Baker"`)
	require.Contains(t, string(frames[0].data), `"template":"soap"`)
	require.True(t, frames[1].binary)
	require.True(t, frames[2].binary)
	require.Equal(t, audio, string(frames[1].data)+string(frames[2].data))
	require.Equal(t, []byte("END"), frames[3].data)

	require.Equal(t, domain.SessionStateProcessing, f.controller.Snapshot().State)

	// Backend pipeline events drive the rest of the cycle.
	f.transport.pushStatus(domain.StatusEvent{Kind: domain.EventStageUpdate, Status: "Converting audio format..."})
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().Progress.Percent == 20
	}, waitFor, tick)

	f.transport.pushStatus(domain.StatusEvent{Kind: domain.EventStageUpdate, Status: "Transcribing with speaker detection..."})
	require.Eventually(t, func() bool {
		snap := f.controller.Snapshot()
		return snap.Stage == domain.StageTranscribing && snap.Progress.Percent == 50
	}, waitFor, tick)

	f.transport.pushStatus(domain.StatusEvent{Kind: domain.EventTranscriptUpdate, Transcript: "Doctor: the crown fits well."})
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().Transcript == "Doctor: the crown fits well."
	}, waitFor, tick)

	f.transport.pushStatus(domain.StatusEvent{Kind: domain.EventNoteUpdate, Note: "S: crown fits\nO: ..."})
	require.Eventually(t, func() bool {
		snap := f.controller.Snapshot()
		return snap.State == domain.SessionStateComplete && snap.Progress.Percent == 100
	}, waitFor, tick)
	require.Equal(t, "S: crown fits\nO: ...", f.controller.Snapshot().Note)

	// Progress display resets after the completion hold, state stays.
	require.Eventually(t, func() bool {
		snap := f.controller.Snapshot()
		return snap.Progress.Percent == 0 && snap.State == domain.SessionStateComplete
	}, waitFor, tick)
}

func TestControllerConnectReportsConnecting(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	require.NoError(t, f.controller.Connect(context.Background()))

	// The presentation layer sees the Connecting state, not a silent
	// jump from Idle to Ready.
	require.True(t, f.sink.sawState(domain.SessionStateConnecting))
	require.Eventually(t, func() bool {
		return f.sink.sawState(domain.SessionStateReady)
	}, waitFor, tick)
}

func TestControllerStartRejections(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	ctx := context.Background()

	// Not connected yet.
	require.NoError(t, f.controller.SelectProvider(domain.Provider{Name: "Dr. Baker"}))
	require.ErrorIs(t, f.controller.StartRecording(ctx), ErrNotReady)

	f.connectReady(t)

	// Overlapping recordings are rejected, not queued.
	require.NoError(t, f.controller.StartRecording(ctx))
	require.ErrorIs(t, f.controller.StartRecording(ctx), ErrRecordingActive)
	require.Equal(t, 1, f.capture.starts)

	require.ErrorIs(t, f.controller.SelectProvider(domain.Provider{Name: "Dr. Lee"}), ErrRecordingActive)
}

func TestControllerStartRequiresProvider(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.connectReady(t)
	require.ErrorIs(t, f.controller.StartRecording(context.Background()), ErrNoProvider)
}

func TestControllerCaptureFailureSurfacesPermission(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.connectReady(t)
	f.selectSession(t)
	f.capture.startErr = domain.ErrPermissionDenied

	err := f.controller.StartRecording(context.Background())
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	last, ok := f.sink.lastError()
	require.True(t, ok)
	require.Equal(t, domain.ErrorCodePermission, last.Code)

	// A failed start leaves the session usable.
	f.capture.startErr = nil
	require.NoError(t, f.controller.StartRecording(context.Background()))
}

func TestControllerPauseResume(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)

	require.ErrorIs(t, f.controller.PauseRecording(), ErrNoActiveRecording)
	require.ErrorIs(t, f.controller.ResumeRecording(), ErrNoActiveRecording)

	f.connectReady(t)
	f.selectSession(t)
	require.NoError(t, f.controller.StartRecording(context.Background()))

	require.NoError(t, f.controller.PauseRecording())
	require.True(t, f.capture.session.paused)
	require.True(t, f.controller.Snapshot().Paused)

	require.NoError(t, f.controller.ResumeRecording())
	require.False(t, f.capture.session.paused)
	require.False(t, f.controller.Snapshot().Paused)
}

func TestControllerReconnectOnceWhileProcessing(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.connectReady(t)
	f.selectSession(t)

	ctx := context.Background()
	require.NoError(t, f.controller.StartRecording(ctx))
	require.NoError(t, f.controller.StopRecording(ctx))

	// First drop while waiting for results: one silent reconnect.
	f.transport.drop()
	require.Eventually(t, func() bool {
		return f.transport.connectCount() == 2
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return f.transport.State() == domain.ConnOpen
	}, waitFor, tick)
	require.Equal(t, domain.SessionStateProcessing, f.controller.Snapshot().State)
	_, sawErr := f.sink.lastError()
	require.False(t, sawErr)

	// Second drop in the same cycle exhausts the budget.
	f.transport.drop()
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().State == domain.SessionStateErrored
	}, waitFor, tick)
	last, ok := f.sink.lastError()
	require.True(t, ok)
	require.Equal(t, domain.ErrorCodeTransport, last.Code)

	// Transcript/note from the interrupted cycle would have been kept;
	// the budget itself resets with the next recording.
	require.NoError(t, f.controller.Connect(ctx))
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().State == domain.SessionStateReady
	}, waitFor, tick)
	f.capture.session = &fakeSession{segments: segmentsFrom("xyz")}
	require.NoError(t, f.controller.StartRecording(ctx))
}

func TestControllerUserCloseDoesNotReconnect(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.connectReady(t)

	require.NoError(t, f.controller.Close())
	require.Eventually(t, func() bool {
		return f.controller.Snapshot().State == domain.SessionStateIdle
	}, waitFor, tick)
	require.Equal(t, 1, f.transport.connectCount())
}

func TestControllerStopCaptureFailure(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.connectReady(t)
	f.selectSession(t)
	f.capture.session.stopErr = errors.New("device wedged")

	ctx := context.Background()
	require.NoError(t, f.controller.StartRecording(ctx))
	require.Error(t, f.controller.StopRecording(ctx))

	require.Eventually(t, func() bool {
		return f.controller.Snapshot().State == domain.SessionStateErrored
	}, waitFor, tick)
	last, ok := f.sink.lastError()
	require.True(t, ok)
	require.Equal(t, domain.ErrorCodeDevice, last.Code)
}

func TestControllerCorrectionReplacesNote(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.api.corrected = "S: corrected subjective"

	corrected, err := f.controller.RequestCorrection(context.Background(), "expand the subjective section")
	require.NoError(t, err)
	require.Equal(t, "S: corrected subjective", corrected)
	require.Equal(t, "S: corrected subjective", f.controller.Snapshot().Note)

	f.api.mu.Lock()
	require.Len(t, f.api.corrections, 1)
	require.Equal(t, "expand the subjective section", f.api.corrections[0].Instruction)
	f.api.mu.Unlock()
}

func TestControllerChatHistoryWindow(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.api.chatResp = ports.ChatResponse{Reply: "done", UpdatedNote: "revised"}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		reply, err := f.controller.SendChatEdit(ctx, "tighten the plan")
		require.NoError(t, err)
		require.Equal(t, domain.ChatRoleAssistant, reply.Role)
		require.Equal(t, "done", reply.Text)
	}

	require.Equal(t, "revised", f.controller.Snapshot().Note)

	// Two turns accrue per edit; the window sent with each request is
	// bounded by the configured history size.
	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	require.Len(t, f.api.chats, 3)
	require.Len(t, f.api.chats[0].History, 0)
	require.Len(t, f.api.chats[1].History, 2)
	require.Len(t, f.api.chats[2].History, 4)
}

func TestControllerBackendErrorEvent(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t)
	f.connectReady(t)
	f.selectSession(t)

	ctx := context.Background()
	require.NoError(t, f.controller.StartRecording(ctx))
	f.transport.pushStatus(domain.StatusEvent{Kind: domain.EventTranscriptUpdate, Transcript: "partial"})
	f.transport.pushStatus(domain.StatusEvent{Kind: domain.EventErrorOccurred, Message: "transcription backend down"})

	require.Eventually(t, func() bool {
		return f.controller.Snapshot().State == domain.SessionStateErrored
	}, waitFor, tick)

	snap := f.controller.Snapshot()
	require.Equal(t, "partial", snap.Transcript)
	require.Equal(t, "transcription backend down", snap.ErrMessage)
	require.Zero(t, snap.Progress.Percent)

	last, ok := f.sink.lastError()
	require.True(t, ok)
	require.Equal(t, domain.ErrorCodeBackend, last.Code)
}
