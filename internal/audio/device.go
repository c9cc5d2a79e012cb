package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
)

// pcmSource abstracts the hardware backend producing raw S16LE packets.
// Start allocates the device and begins delivering packets on the
// returned channel; Stop releases the device and closes the channel.
type pcmSource interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
}

type malgoSource struct {
	sampleRate int
	channels   int
	deviceName string
	log        *slog.Logger

	mu       sync.Mutex
	mgCtx    *malgo.AllocatedContext
	mgDevice *malgo.Device
	packets  chan []byte
	stopped  bool
}

func newMalgoSource(sampleRate, channels int, deviceName string, log *slog.Logger) *malgoSource {
	return &malgoSource{
		sampleRate: sampleRate,
		channels:   channels,
		deviceName: deviceName,
		log:        log,
	}
}

func (s *malgoSource) Start(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mgDevice != nil {
		return nil, fmt.Errorf("capture device already started")
	}

	mgCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		s.log.Debug("malgo", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, classifyDeviceError(fmt.Errorf("failed to initialize audio context: %w", err))
	}

	packets := make(chan []byte, 64)

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(s.channels)
	devCfg.SampleRate = uint32(s.sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, samples []byte, _ uint32) {
			buf := append([]byte(nil), samples...)
			select {
			case packets <- buf:
			default:
				s.log.Warn("dropping capture packet, consumer is behind", "bytes", len(buf))
			}
		},
	}

	device, err := malgo.InitDevice(mgCtx.Context, devCfg, callbacks)
	if err != nil {
		_ = mgCtx.Uninit()
		mgCtx.Free()
		return nil, classifyDeviceError(fmt.Errorf("failed to initialize capture device: %w", err))
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mgCtx.Uninit()
		mgCtx.Free()
		return nil, classifyDeviceError(fmt.Errorf("failed to start capture device: %w", err))
	}

	s.mgCtx = mgCtx
	s.mgDevice = device
	s.packets = packets
	return packets, nil
}

func (s *malgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.mgDevice == nil {
		return nil
	}
	s.stopped = true

	if err := s.mgDevice.Stop(); err != nil {
		s.log.Warn("failed to stop capture device cleanly", "error", err)
	}
	s.mgDevice.Uninit()
	if err := s.mgCtx.Uninit(); err != nil {
		s.log.Warn("failed to uninitialize audio context", "error", err)
	}
	s.mgCtx.Free()

	s.mgDevice = nil
	s.mgCtx = nil
	close(s.packets)
	return nil
}

// DeviceInfo describes one capture device for the CLI listing.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// ListDevices enumerates the capture devices the platform exposes.
func ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	mgCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyDeviceError(fmt.Errorf("failed to initialize audio context: %w", err))
	}
	defer func() {
		_ = mgCtx.Uninit()
		mgCtx.Free()
	}()

	devices, err := mgCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, classifyDeviceError(fmt.Errorf("failed to enumerate capture devices: %w", err))
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, DeviceInfo{Name: d.Name(), IsDefault: d.IsDefault != 0})
	}
	return infos, nil
}

// classifyDeviceError maps backend failures onto the capture error
// taxonomy so callers can distinguish denial from absence.
func classifyDeviceError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
}
