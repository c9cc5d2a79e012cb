package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/audio"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/config"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/providers/scribe"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	API        *scribe.APIClient
	Config     config.Config
}

// Build wires the client dependencies for the current runtime.
func Build(cfg config.Config, sink ports.EventSink, log *slog.Logger) (Services, error) {
	streamURL, err := cfg.Backend.StreamURL()
	if err != nil {
		return Services{}, err
	}

	var capture ports.AudioCapture
	switch cfg.Audio.Backend {
	case "", "malgo":
		capture = audio.NewMalgoCapture(log)
	case "ffmpeg":
		capture = audio.NewFFmpegCapture(cfg.Audio.FFmpegCommand, cfg.Audio.FFmpegFormat, log)
	default:
		return Services{}, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}

	transport := scribe.NewTransport(streamURL, log)
	api := scribe.NewAPIClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)

	controller := usecase.NewSessionController(
		capture,
		transport,
		api,
		sink,
		usecase.Config{
			Capture: ports.CaptureConfig{
				SampleRate:      cfg.Audio.SampleRate,
				Channels:        cfg.Audio.Channels,
				SegmentInterval: cfg.Audio.SegmentInterval,
				InputDevice:     cfg.Audio.InputDevice,
			},
			ChunkSize:      cfg.Session.ChunkSize,
			FrameDelay:     cfg.Session.FrameDelay,
			ReconnectDelay: cfg.Session.ReconnectDelay,
			DisplayDelay:   cfg.Session.DisplayDelay,
			ChatHistory:    cfg.Session.ChatHistory,
		},
		log,
	)

	return Services{Controller: controller, API: api, Config: cfg}, nil
}
