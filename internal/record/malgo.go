package record

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

type DeviceInfo struct {
	Name    string
	Default bool
}

// ListDevices enumerates capture devices through miniaudio.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerating capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{Name: info.Name(), Default: info.IsDefault != 0})
	}
	return devices, nil
}

// OpenMicrophone opens the capture device named in cfg, or the system
// default, for signed 16-bit capture.
func OpenMicrophone(cfg Config) (Source, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = uint32(cfg.Channels)
	deviceCfg.SampleRate = uint32(cfg.SampleRate)

	if name := strings.TrimSpace(cfg.Device); name != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			freeContext(ctx)
			return nil, fmt.Errorf("enumerating capture devices: %w", err)
		}
		found := false
		for i := range infos {
			if strings.EqualFold(infos[i].Name(), name) {
				deviceCfg.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			freeContext(ctx)
			return nil, fmt.Errorf("capture device %q not found; run `voxapi devices`", name)
		}
	}

	return &microphone{ctx: ctx, cfg: deviceCfg}, nil
}

type microphone struct {
	ctx *malgo.AllocatedContext
	cfg malgo.DeviceConfig

	mu     sync.Mutex
	device *malgo.Device
}

func (m *microphone) Start(onData func(pcm []byte, frames uint32)) error {
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			onData(input, frames)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, m.cfg, callbacks)
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("starting capture device: %w", err)
	}

	m.mu.Lock()
	m.device = device
	m.mu.Unlock()
	return nil
}

func (m *microphone) Stop() error {
	m.mu.Lock()
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	m.mu.Unlock()

	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	if err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	return nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
