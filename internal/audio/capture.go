package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

type sourceFactory func(cfg ports.CaptureConfig) pcmSource

// Capture implements ports.AudioCapture on top of a PCM source backend.
type Capture struct {
	newSource sourceFactory
	log       *slog.Logger
}

// NewMalgoCapture captures from the default system microphone.
func NewMalgoCapture(log *slog.Logger) *Capture {
	return &Capture{
		newSource: func(cfg ports.CaptureConfig) pcmSource {
			return newMalgoSource(cfg.SampleRate, cfg.Channels, cfg.InputDevice, log)
		},
		log: log,
	}
}

// NewFFmpegCapture captures through an external ffmpeg process. Used on
// hosts where the in-process backend cannot open the microphone.
func NewFFmpegCapture(command, inputFormat string, log *slog.Logger) *Capture {
	return &Capture{
		newSource: func(cfg ports.CaptureConfig) pcmSource {
			return newFFmpegSource(command, inputFormat, cfg, log)
		},
		log: log,
	}
}

func newCaptureWithFactory(factory sourceFactory, log *slog.Logger) *Capture {
	return &Capture{newSource: factory, log: log}
}

// Start acquires the microphone and begins emitting encoded segments.
func (c *Capture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.SegmentInterval <= 0 {
		cfg.SegmentInterval = 100 * time.Millisecond
	}

	src := c.newSource(cfg)
	packets, err := src.Start(ctx)
	if err != nil {
		return nil, err
	}

	// One encode batch per segment interval worth of PCM.
	batchBytes := cfg.SampleRate * cfg.Channels * 2 * int(cfg.SegmentInterval/time.Millisecond) / 1000
	if batchBytes < 512 {
		batchBytes = 512
	}

	sink := &segmentSink{}
	encoderInput := make(chan []byte, 64)

	enc, err := newMP3Encoder(encoderConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		BatchBytes: batchBytes,
	}, encoderInput, sink)
	if err != nil {
		_ = src.Stop()
		return nil, fmt.Errorf("failed to create segment encoder: %w", err)
	}
	if err := enc.Start(ctx); err != nil {
		_ = src.Stop()
		return nil, fmt.Errorf("failed to start segment encoder: %w", err)
	}

	rec := &recording{
		src:      src,
		enc:      enc,
		sink:     sink,
		log:      c.log,
		pumpDone: make(chan struct{}),
	}

	go rec.pump(packets, encoderInput)

	c.log.Debug("capture started",
		"sampleRate", cfg.SampleRate,
		"channels", cfg.Channels,
		"segmentInterval", cfg.SegmentInterval)
	return rec, nil
}

// recording is one live capture session.
type recording struct {
	src  pcmSource
	enc  *mp3Encoder
	sink *segmentSink
	log  *slog.Logger

	paused   atomic.Bool
	pumpDone chan struct{}

	stopMu  sync.Mutex
	stopped bool
}

func (r *recording) pump(packets <-chan []byte, encoderInput chan<- []byte) {
	defer close(r.pumpDone)
	defer close(encoderInput)

	for packet := range packets {
		if r.paused.Load() {
			continue
		}
		encoderInput <- packet
	}
}

func (r *recording) Pause() error {
	r.paused.Store(true)
	return nil
}

func (r *recording) Resume() error {
	r.paused.Store(false)
	return nil
}

// Stop flushes buffered audio, releases the device and returns the full
// segment sequence. A second call is a no-op returning no segments.
func (r *recording) Stop() ([]domain.AudioSegment, error) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	if r.stopped {
		return nil, nil
	}
	r.stopped = true

	stopErr := r.src.Stop()
	<-r.pumpDone

	if err := r.enc.Wait(); err != nil {
		return nil, fmt.Errorf("failed to finalize encoded audio: %w", err)
	}
	if stopErr != nil {
		r.log.Warn("capture device did not stop cleanly", "error", stopErr)
	}

	segments := r.sink.take()
	r.log.Debug("capture stopped", "segments", len(segments))
	return segments, nil
}

func (r *recording) SegmentCount() int {
	return r.sink.count()
}

// segmentSink turns each encoder write into one immutable AudioSegment.
type segmentSink struct {
	mu       sync.Mutex
	segments []domain.AudioSegment
	next     int
}

func (s *segmentSink) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, domain.AudioSegment{
		Data:       append([]byte(nil), p...),
		Index:      s.next,
		CapturedAt: time.Now().UTC(),
	})
	s.next++
	return len(p), nil
}

func (s *segmentSink) take() []domain.AudioSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	segments := s.segments
	s.segments = nil
	return segments
}

func (s *segmentSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}
