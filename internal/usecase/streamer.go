package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

// endSentinel is the literal end-of-audio marker terminating an upload.
const endSentinel = "END"

// sessionInfo is the metadata frame opening one upload.
type sessionInfo struct {
	Type     string `json:"type"`
	Doctor   string `json:"doctor"`
	Template string `json:"template"`
}

// chunkStreamer turns one finished recording into the wire frame
// sequence: session metadata, fixed-size audio slices in strictly
// increasing offset order, then the end sentinel. The delay between
// binary frames is pacing, not correctness; order is the contract.
type chunkStreamer struct {
	transport  ports.Transport
	chunkSize  int
	frameDelay time.Duration
	log        *slog.Logger
}

func newChunkStreamer(transport ports.Transport, chunkSize int, frameDelay time.Duration, log *slog.Logger) *chunkStreamer {
	if chunkSize < 1024 {
		chunkSize = 16 * 1024
	}
	return &chunkStreamer{
		transport:  transport,
		chunkSize:  chunkSize,
		frameDelay: frameDelay,
		log:        log,
	}
}

// stream uploads one recording. ensureOpen is invoked when the
// transport is not open before a send, so a dropped connection defers
// the upload through the reconnect policy instead of failing it.
func (s *chunkStreamer) stream(
	ctx context.Context,
	info sessionInfo,
	segments []domain.AudioSegment,
	ensureOpen func(context.Context) error,
) error {
	audio := concatSegments(segments)

	metadata, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}
	if err := s.sendFrame(ctx, ensureOpen, func() error {
		return s.transport.SendText(metadata)
	}); err != nil {
		return fmt.Errorf("failed to send session metadata: %w", err)
	}

	frames := 0
	for offset := 0; offset < len(audio); offset += s.chunkSize {
		end := offset + s.chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		chunk := audio[offset:end]

		if err := s.sendFrame(ctx, ensureOpen, func() error {
			return s.transport.SendBinary(chunk)
		}); err != nil {
			return fmt.Errorf("failed to send audio frame at offset %d: %w", offset, err)
		}
		frames++

		if s.frameDelay > 0 && end < len(audio) {
			if err := sleepCtx(ctx, s.frameDelay); err != nil {
				return err
			}
		}
	}

	if err := s.sendFrame(ctx, ensureOpen, func() error {
		return s.transport.SendText([]byte(endSentinel))
	}); err != nil {
		return fmt.Errorf("failed to send end-of-audio sentinel: %w", err)
	}

	s.log.Info("upload finished", "bytes", len(audio), "frames", frames)
	return nil
}

// sendFrame performs one send, routing through ensureOpen when the
// transport is down and retrying the frame once after reconnection.
func (s *chunkStreamer) sendFrame(ctx context.Context, ensureOpen func(context.Context) error, send func() error) error {
	if s.transport.State() != domain.ConnOpen {
		if err := ensureOpen(ctx); err != nil {
			return err
		}
	}

	err := send()
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotConnected) && !errors.Is(err, domain.ErrTransportDropped) {
		return err
	}

	if err := ensureOpen(ctx); err != nil {
		return err
	}
	return send()
}

// concatSegments joins encoded segments into the single contiguous
// buffer the wire slices are cut from.
func concatSegments(segments []domain.AudioSegment) []byte {
	total := 0
	for _, segment := range segments {
		total += len(segment.Data)
	}
	audio := make([]byte, 0, total)
	for _, segment := range segments {
		audio = append(audio, segment.Data...)
	}
	return audio
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
