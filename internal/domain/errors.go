package domain

import "errors"

// Capture errors.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no usable audio capture device")
)

// Transport errors.
var (
	ErrNotConnected     = errors.New("transport is not connected")
	ErrConnectFailed    = errors.New("failed to connect to backend")
	ErrTransportDropped = errors.New("transport connection dropped")
)
