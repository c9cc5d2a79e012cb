package ports

import (
	"context"
	"time"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
)

// CaptureConfig describes how the microphone should be captured and
// how often encoded segments are emitted.
type CaptureConfig struct {
	SampleRate      int
	Channels        int
	SegmentInterval time.Duration
	InputDevice     string
}

// CaptureSession is a live microphone recording. Segments accumulate
// until Stop, which flushes the encoder, releases the device and hands
// the full ordered segment sequence to the caller. Stop is idempotent:
// a second call returns an empty sequence.
type CaptureSession interface {
	Pause() error
	Resume() error
	Stop() ([]domain.AudioSegment, error)
	SegmentCount() int
}

// AudioCapture creates microphone capture sessions. Start fails with
// domain.ErrPermissionDenied or domain.ErrDeviceUnavailable when the
// platform denies or lacks a microphone.
type AudioCapture interface {
	Start(ctx context.Context, cfg CaptureConfig) (CaptureSession, error)
}

// ConnEvent reports a transport lifecycle change.
type ConnEvent struct {
	State domain.ConnectionState
	Err   error
	// UserInitiated is true when the change was caused by an explicit
	// Close call rather than a network failure.
	UserInitiated bool
}

// Transport owns one bidirectional connection to the scribe backend.
//
// Connect is guarded: while Connecting or Open it is a no-op. Send
// methods are only valid while Open and fail with domain.ErrNotConnected
// otherwise; they never silently drop data. Close is always safe.
// Events carries inbound backend events in wire arrival order; Lifecycle
// carries connection state changes. Both channels persist across
// reconnects of the same Transport value.
type Transport interface {
	Connect(ctx context.Context) error
	State() domain.ConnectionState
	SendText(data []byte) error
	SendBinary(data []byte) error
	Events() <-chan domain.StatusEvent
	Lifecycle() <-chan ConnEvent
	Close() error
}

// CorrectionRequest asks the backend to rework a note against a
// free-text instruction.
type CorrectionRequest struct {
	RecordingID string
	Note        string
	Instruction string
	Transcript  string
}

// ChatRequest is one conversational editing turn.
type ChatRequest struct {
	RecordingID string
	Note        string
	Transcript  string
	Message     string
	History     []domain.ChatTurn
}

// ChatResponse is the assistant reply, optionally with a revised note.
type ChatResponse struct {
	Reply       string
	UpdatedNote string
}

// BackendAPI is the REST surface of the scribe backend.
type BackendAPI interface {
	ListProviders(ctx context.Context) ([]domain.Provider, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	RequestCorrection(ctx context.Context, req CorrectionRequest) (string, error)
	SendChatEdit(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// EventSink receives session notifications for the presentation layer.
// Implementations must not block: notifications are delivered from the
// controller's event loop.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, stage domain.ProcessingStage)
	ProgressChanged(progress domain.ProgressEstimate)
	TranscriptUpdated(text string)
	NoteUpdated(text string)
	ChatReply(turn domain.ChatTurn)
	SessionError(code domain.ErrorCode, detail string)
}
