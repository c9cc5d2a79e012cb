package domain

import "time"

// SessionState models the dictation session lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateConnecting SessionState = "connecting"
	SessionStateReady      SessionState = "ready"
	SessionStateRecording  SessionState = "recording"
	SessionStateProcessing SessionState = "processing"
	SessionStateComplete   SessionState = "complete"
	SessionStateErrored    SessionState = "errored"
)

// ProcessingStage identifies the backend pipeline phase while a session
// is in SessionStateProcessing.
type ProcessingStage string

const (
	StageNone           ProcessingStage = ""
	StageConverting     ProcessingStage = "converting"
	StageTranscribing   ProcessingStage = "transcribing"
	StageGeneratingNote ProcessingStage = "generating_note"
)

// ConnectionState models the transport lifecycle. Only the transport
// transitions it.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnOpen         ConnectionState = "open"
	ConnClosing      ConnectionState = "closing"
	ConnFailed       ConnectionState = "failed"
)

// ErrorCode identifies error classes surfaced to the presentation layer.
type ErrorCode string

const (
	ErrorCodePermission ErrorCode = "permission_denied"
	ErrorCodeDevice     ErrorCode = "device_unavailable"
	ErrorCodeConnect    ErrorCode = "connect_failed"
	ErrorCodeTransport  ErrorCode = "transport_dropped"
	ErrorCodeBackend    ErrorCode = "backend_error"
	ErrorCodeUpload     ErrorCode = "upload_failed"
)

// StatusEventKind discriminates inbound transport events.
type StatusEventKind string

const (
	EventSessionAssigned  StatusEventKind = "session_assigned"
	EventStageUpdate      StatusEventKind = "stage_update"
	EventTranscriptUpdate StatusEventKind = "transcript_update"
	EventNoteUpdate       StatusEventKind = "note_update"
	EventErrorOccurred    StatusEventKind = "error_occurred"
)

// StatusEvent is one inbound event from the backend. Exactly one payload
// field is meaningful, selected by Kind. Events are transient: they are
// consumed by the session state machine and not retained.
type StatusEvent struct {
	Kind       StatusEventKind
	SessionID  string
	Status     string
	Transcript string
	Note       string
	Message    string
}

// AudioSegment is one encoded slice of captured audio. Segments are
// immutable once emitted; ownership transfers to the uploader when
// recording stops.
type AudioSegment struct {
	Data       []byte
	Index      int
	CapturedAt time.Time
}

// ProgressEstimate is the derived stage label and completion percentage
// shown to the user. Percent is monotonically non-decreasing within one
// recording cycle except on explicit reset or error.
type ProgressEstimate struct {
	StageLabel string `json:"stageLabel"`
	Percent    int    `json:"percent"`
}

// Provider is a clinician the backend knows about.
type Provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
}

// Template is a note template the backend can generate against.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ChatRole identifies who produced a chat turn.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatTurn is one exchange in the note-editing conversation.
type ChatTurn struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// Snapshot is a point-in-time view of the session exposed to the
// presentation layer.
type Snapshot struct {
	SessionID  string
	State      SessionState
	Stage      ProcessingStage
	Progress   ProgressEstimate
	Paused     bool
	Provider   string
	Template   string
	Transcript string
	Note       string
	ErrMessage string
	StartedAt  time.Time
}
