package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config stores runtime configuration for the scribe client.
type Config struct {
	Env      string `envconfig:"SCRIBE_ENV" default:"development"`
	LogLevel string `envconfig:"SCRIBE_LOG_LEVEL" default:"info"`

	Backend BackendConfig
	Audio   AudioConfig
	Session SessionConfig
}

// BackendConfig locates the scribe backend.
type BackendConfig struct {
	BaseURL    string        `envconfig:"SCRIBE_BACKEND_URL" default:"http://localhost:8000"`
	StreamPath string        `envconfig:"SCRIBE_STREAM_PATH" default:"/ws/transcribe"`
	Timeout    time.Duration `envconfig:"SCRIBE_HTTP_TIMEOUT" default:"30s"`
}

// AudioConfig describes microphone capture.
type AudioConfig struct {
	Backend         string        `envconfig:"SCRIBE_AUDIO_BACKEND" default:"malgo"`
	InputDevice     string        `envconfig:"SCRIBE_AUDIO_INPUT_DEVICE"`
	SampleRate      int           `envconfig:"SCRIBE_SAMPLE_RATE" default:"16000"`
	Channels        int           `envconfig:"SCRIBE_CHANNELS" default:"1"`
	SegmentInterval time.Duration `envconfig:"SCRIBE_SEGMENT_INTERVAL" default:"100ms"`
	FFmpegCommand   string        `envconfig:"SCRIBE_FFMPEG_COMMAND" default:"ffmpeg"`
	FFmpegFormat    string        `envconfig:"SCRIBE_FFMPEG_INPUT_FORMAT" default:"pulse"`
}

// SessionConfig tunes upload framing and lifecycle timing.
type SessionConfig struct {
	ChunkSize      int           `envconfig:"SCRIBE_CHUNK_SIZE" default:"16384"`
	FrameDelay     time.Duration `envconfig:"SCRIBE_FRAME_DELAY" default:"100ms"`
	ReconnectDelay time.Duration `envconfig:"SCRIBE_RECONNECT_DELAY" default:"2s"`
	DisplayDelay   time.Duration `envconfig:"SCRIBE_DISPLAY_DELAY" default:"2s"`
	ChatHistory    int           `envconfig:"SCRIBE_CHAT_HISTORY" default:"10"`
}

// Load resolves configuration from an optional .env file, environment
// variables and defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.SegmentInterval <= 0 {
		cfg.Audio.SegmentInterval = 100 * time.Millisecond
	}
	if cfg.Session.ChunkSize < 1024 {
		cfg.Session.ChunkSize = 16 * 1024
	}
	if cfg.Session.FrameDelay < 0 {
		cfg.Session.FrameDelay = 0
	}
	if cfg.Session.ChatHistory <= 0 {
		cfg.Session.ChatHistory = 10
	}

	return cfg, nil
}

// StreamURL converts the backend base URL into the websocket endpoint.
func (c BackendConfig) StreamURL() (string, error) {
	base := strings.TrimSpace(c.BaseURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	endpoint, err := url.Parse(base + c.StreamPath)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL %q: %w", c.BaseURL, err)
	}
	if endpoint.Scheme != "ws" && endpoint.Scheme != "wss" {
		return "", fmt.Errorf("backend URL %q does not resolve to a websocket scheme", c.BaseURL)
	}
	return endpoint.String(), nil
}
