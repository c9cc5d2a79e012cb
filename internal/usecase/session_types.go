package usecase

import (
	"errors"
	"time"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

var (
	// ErrNoProvider rejects a recording start without a selected
	// clinician; the backend needs it for the session metadata frame.
	ErrNoProvider = errors.New("no provider selected")
	// ErrNotReady rejects actions that require an open transport.
	ErrNotReady = errors.New("session is not ready")
	// ErrRecordingActive rejects actions that would overlap an active
	// capture or upload.
	ErrRecordingActive = errors.New("a recording is already in progress")
	// ErrNoActiveRecording rejects stop/pause/resume without a capture.
	ErrNoActiveRecording = errors.New("no active recording")
)

// Config controls recording and upload behavior.
type Config struct {
	Capture ports.CaptureConfig

	// ChunkSize is the fixed binary frame size for uploads.
	ChunkSize int
	// FrameDelay paces binary frames so the backend is not overwhelmed.
	FrameDelay time.Duration
	// ReconnectDelay is the pause before the single reconnect attempt.
	ReconnectDelay time.Duration
	// DisplayDelay is how long 100% stays visible before the progress
	// display resets.
	DisplayDelay time.Duration
	// ChatHistory bounds the recent-turn window sent with chat edits.
	ChatHistory int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize < 1024 {
		c.ChunkSize = 16 * 1024
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.DisplayDelay <= 0 {
		c.DisplayDelay = 2 * time.Second
	}
	if c.ChatHistory <= 0 {
		c.ChatHistory = 10
	}
	return c
}
