package scribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

// Transport owns the websocket connection to the scribe backend. It is
// reusable: after a drop the same value can Connect again, and the
// Events and Lifecycle channels span all connections it makes.
type Transport struct {
	endpoint string
	dialer   *websocket.Dialer
	log      *slog.Logger

	mu         sync.Mutex
	state      domain.ConnectionState
	conn       *websocket.Conn
	userClosed bool

	writeMu sync.Mutex

	events    chan domain.StatusEvent
	lifecycle chan ports.ConnEvent
}

// NewTransport creates a disconnected transport for the given websocket
// endpoint.
func NewTransport(endpoint string, log *slog.Logger) *Transport {
	return &Transport{
		endpoint:  endpoint,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:       log,
		state:     domain.ConnDisconnected,
		events:    make(chan domain.StatusEvent, 256),
		lifecycle: make(chan ports.ConnEvent, 16),
	}
}

// Connect dials the backend. While a connect is in flight or a
// connection is open this is a no-op, so concurrent callers can never
// create a duplicate connection.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case domain.ConnConnecting, domain.ConnOpen:
		t.mu.Unlock()
		return nil
	}
	t.state = domain.ConnConnecting
	t.userClosed = false
	t.mu.Unlock()

	t.notify(ports.ConnEvent{State: domain.ConnConnecting})
	t.log.Debug("connecting to backend", "endpoint", t.endpoint)

	conn, _, err := t.dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", domain.ErrConnectFailed, err)
		t.mu.Lock()
		t.state = domain.ConnFailed
		t.mu.Unlock()
		t.notify(ports.ConnEvent{State: domain.ConnFailed, Err: wrapped})
		return wrapped
	}

	t.mu.Lock()
	t.conn = conn
	t.state = domain.ConnOpen
	t.mu.Unlock()

	t.notify(ports.ConnEvent{State: domain.ConnOpen})
	t.log.Info("connected to backend", "endpoint", t.endpoint)

	go t.readLoop(conn)
	return nil
}

// State reports the current connection state.
func (t *Transport) State() domain.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SendText writes one text frame. Valid only while Open.
func (t *Transport) SendText(data []byte) error {
	return t.send(websocket.TextMessage, data)
}

// SendBinary writes one binary frame. Valid only while Open.
func (t *Transport) SendBinary(data []byte) error {
	return t.send(websocket.BinaryMessage, data)
}

func (t *Transport) send(messageType int, data []byte) error {
	t.mu.Lock()
	if t.state != domain.ConnOpen || t.conn == nil {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: connection state is %s", domain.ErrNotConnected, state)
	}
	conn := t.conn
	t.mu.Unlock()

	// Single-writer discipline: frames go out in call order.
	t.writeMu.Lock()
	err := conn.WriteMessage(messageType, data)
	t.writeMu.Unlock()

	if err != nil {
		t.dropConn(conn, err)
		return fmt.Errorf("%w: %v", domain.ErrTransportDropped, err)
	}
	return nil
}

// Events carries inbound backend events in wire arrival order.
func (t *Transport) Events() <-chan domain.StatusEvent {
	return t.events
}

// Lifecycle carries connection state changes.
func (t *Transport) Lifecycle() <-chan ports.ConnEvent {
	return t.lifecycle
}

// Close shuts the connection down. Always safe to call, in any state.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.state = domain.ConnDisconnected
		t.mu.Unlock()
		return nil
	}
	t.userClosed = true
	t.state = domain.ConnClosing
	t.mu.Unlock()

	t.notify(ports.ConnEvent{State: domain.ConnClosing, UserInitiated: true})

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	err := conn.Close()
	// The read loop observes the closed socket and finishes the
	// transition to Disconnected.
	return err
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			t.dropConn(conn, err)
			return
		}
		if messageType != websocket.TextMessage {
			t.log.Warn("ignoring unexpected binary frame from backend", "bytes", len(payload))
			continue
		}
		t.dispatch(payload)
	}
}

// serverMessage is the backend's event frame. Fields are optional and
// independently present; pointers distinguish absent from empty.
type serverMessage struct {
	SessionID  *string `json:"session_id"`
	Status     *string `json:"status"`
	Transcript *string `json:"transcript"`
	Soap       *string `json:"soap"`
	Error      *string `json:"error"`
}

func (t *Transport) dispatch(payload []byte) {
	var msg serverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		// Protocol errors are logged and ignored; they never kill the
		// session.
		t.log.Warn("unparseable backend frame", "error", err, "payload", truncate(payload, 256))
		return
	}

	if msg.SessionID != nil {
		t.emit(domain.StatusEvent{Kind: domain.EventSessionAssigned, SessionID: *msg.SessionID})
	}
	if msg.Status != nil {
		t.emit(domain.StatusEvent{Kind: domain.EventStageUpdate, Status: *msg.Status})
	}
	if msg.Transcript != nil {
		t.emit(domain.StatusEvent{Kind: domain.EventTranscriptUpdate, Transcript: *msg.Transcript})
	}
	if msg.Soap != nil {
		t.emit(domain.StatusEvent{Kind: domain.EventNoteUpdate, Note: *msg.Soap})
	}
	if msg.Error != nil {
		t.emit(domain.StatusEvent{Kind: domain.EventErrorOccurred, Message: *msg.Error})
	}
}

// emitTimeout bounds how long a stalled consumer can hold up the read
// loop before an event is abandoned.
const emitTimeout = 5 * time.Second

func (t *Transport) emit(event domain.StatusEvent) {
	select {
	case t.events <- event:
		return
	default:
	}

	// Buffer is full. Block the read loop rather than drop: inbound
	// events must reach the session in wire order, and backpressure on
	// the socket is preferable to a silently lost status or note.
	timer := time.NewTimer(emitTimeout)
	defer timer.Stop()
	select {
	case t.events <- event:
	case <-timer.C:
		t.log.Error("consumer stalled, abandoning backend event", "kind", event.Kind)
	}
}

func (t *Transport) notify(event ports.ConnEvent) {
	select {
	case t.lifecycle <- event:
	default:
		t.log.Warn("lifecycle buffer full, dropping notification", "state", event.State)
	}
}

// dropConn finishes the life of one connection. Only the first caller
// for a given conn wins; later read/write failures on the same conn are
// ignored.
func (t *Transport) dropConn(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	user := t.userClosed
	t.state = domain.ConnDisconnected
	t.mu.Unlock()

	_ = conn.Close()

	if user || isNormalClose(cause) {
		t.log.Debug("connection closed", "userInitiated", user)
		t.notify(ports.ConnEvent{State: domain.ConnDisconnected, UserInitiated: user})
		return
	}

	wrapped := fmt.Errorf("%w: %v", domain.ErrTransportDropped, cause)
	t.log.Warn("connection dropped", "error", cause)
	t.notify(ports.ConnEvent{State: domain.ConnDisconnected, Err: wrapped})
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
