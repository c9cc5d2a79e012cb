package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

// ffmpegSource streams microphone PCM through an external ffmpeg
// process reading from the platform capture device.
type ffmpegSource struct {
	command     string
	inputFormat string
	cfg         ports.CaptureConfig
	log         *slog.Logger

	mu       sync.Mutex
	process  *os.Process
	stdout   io.ReadCloser
	stderr   *bytes.Buffer
	waitErr  <-chan error
	packets  chan []byte
	stopOnce sync.Once
	stopErr  error
}

func newFFmpegSource(command, inputFormat string, cfg ports.CaptureConfig, log *slog.Logger) *ffmpegSource {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	return &ffmpegSource{command: command, inputFormat: inputFormat, cfg: cfg, log: log}
}

func (s *ffmpegSource) Start(ctx context.Context) (<-chan []byte, error) {
	device := s.cfg.InputDevice
	if device == "" {
		device = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.inputFormat,
		"-i", device,
		"-ac", strconv.Itoa(s.cfg.Channels),
		"-ar", strconv.Itoa(s.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", domain.ErrDeviceUnavailable, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// ffmpeg exits immediately when the device cannot be opened.
	select {
	case err := <-waitErr:
		detail := bytes.TrimSpace(stderr.Bytes())
		if err != nil {
			return nil, classifyDeviceError(fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail))
		}
		return nil, classifyDeviceError(fmt.Errorf("ffmpeg exited before capture started: %s", detail))
	case <-time.After(250 * time.Millisecond):
	}

	// ~20ms of PCM per read keeps stop latency low.
	readSize := s.cfg.SampleRate * s.cfg.Channels * 2 / 50
	if readSize < 256 {
		readSize = 256
	}

	packets := make(chan []byte, 64)

	s.mu.Lock()
	s.process = cmd.Process
	s.stdout = stdout
	s.stderr = &stderr
	s.waitErr = waitErr
	s.packets = packets
	s.mu.Unlock()

	go func() {
		defer close(packets)
		buf := make([]byte, readSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				packets <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
					s.log.Warn("ffmpeg capture read failed", "error", err)
				}
				return
			}
		}
	}()

	return packets, nil
}

func (s *ffmpegSource) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		process := s.process
		stdout := s.stdout
		stderr := s.stderr
		waitErr := s.waitErr
		s.mu.Unlock()

		if process == nil {
			return
		}

		_ = process.Signal(os.Interrupt)

		select {
		case err, ok := <-waitErr:
			if ok {
				s.stopErr = normalizeExitErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			_ = process.Kill()
			if err, ok := <-waitErr; ok {
				s.stopErr = normalizeExitErr(err)
			}
		}

		if err := stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil && stderr != nil && stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, bytes.TrimSpace(stderr.Bytes()))
		}
	})

	return s.stopErr
}

// normalizeExitErr drops the exit status ffmpeg reports when it is
// interrupted on purpose.
func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
