// Package device connects a realtime.Processor to a sound card through a
// malgo duplex device. Captured audio is cut into processor blocks and
// processed blocks are played back; the callbacks never block.
package device

import (
	"encoding/hex"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/rtaudio/internal/audiocore"
	"github.com/tphakala/rtaudio/internal/audiocore/realtime"
	"github.com/tphakala/rtaudio/internal/errors"
	"github.com/tphakala/rtaudio/internal/logging"
)

// Config selects the devices. Empty names pick the system default.
type Config struct {
	CaptureDevice  string
	PlaybackDevice string
	Group          string // meter group of captured blocks
}

// Info describes an audio device
type Info struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"is_default"`
}

// Duplex drives a processor from a full duplex device
type Duplex struct {
	proc   *realtime.Processor
	config Config

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running atomic.Bool

	assembler *frameAssembler
	feeder    *outputFeeder
	sequence  atomic.Uint64

	logger *slog.Logger
}

// NewDuplex creates a stopped duplex driver for proc
func NewDuplex(proc *realtime.Processor, config Config) *Duplex {
	return &Duplex{
		proc:   proc,
		config: config,
		logger: logging.Component("audiocore", "device"),
	}
}

// backendForPlatform returns the malgo backend for the current platform
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryDevice).
			Context("os", runtime.GOOS).
			Build()
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, deviceError(err, "init_context")
	}
	return ctx, nil
}

func deviceError(err error, operation string) error {
	return errors.New(err).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryDevice).
		Context("operation", operation).
		Context("backend", runtime.GOOS).
		Build()
}

// Start opens the devices with the processor's format and starts them.
// The processor must be started by the caller.
func (d *Duplex) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return nil
	}

	ctx, err := initContext()
	if err != nil {
		return err
	}

	bufferSize := d.proc.BufferSize()
	channels := d.proc.Channels()
	sampleRate := d.proc.SampleRate()

	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInFrames = uint32(bufferSize)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.Alsa.NoMMap = 1

	if err := selectDevices(ctx, &cfg, d.config); err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return err
	}

	d.assembler = newFrameAssembler(channels, bufferSize)
	d.feeder = newOutputFeeder(channels)

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return deviceError(err, "init_device")
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return deviceError(err, "start_device")
	}

	d.ctx = ctx
	d.device = device
	d.running.Store(true)

	d.logger.Info("duplex device started",
		"sample_rate", sampleRate,
		"device_sample_rate", device.SampleRate(),
		"channels", channels,
		"period_frames", bufferSize)
	return nil
}

// Stop stops and releases the device. It is a no-op when stopped.
func (d *Duplex) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return nil
	}
	d.running.Store(false)

	var err error
	if d.device != nil {
		err = d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}

	d.logger.Info("duplex device stopped",
		"blocks_captured", d.sequence.Load())
	if err != nil {
		return deviceError(err, "stop_device")
	}
	return nil
}

// onData runs on the device thread
func (d *Duplex) onData(output, input []byte, frameCount uint32) {
	if len(input) > 0 {
		d.assembler.push(input, func(block audiocore.Block) {
			d.proc.ProcessInput(&audiocore.AudioData{
				Samples: block,
				Format: audiocore.AudioFormat{
					SampleRate: d.proc.SampleRate(),
					Channels:   block.Channels(),
					BitDepth:   32,
					Encoding:   audiocore.EncodingF32,
				},
				Timestamp: time.Now(),
				Group:     d.config.Group,
				Sequence:  d.sequence.Add(1),
			})
		})
	}
	if len(output) > 0 {
		d.feeder.fill(output, d.proc.GetOutput)
	}
}

func (d *Duplex) onStop() {
	if d.running.Load() {
		d.logger.Warn("audio device stopped unexpectedly")
	}
}

// selectDevices sets the capture and playback ids on cfg
func selectDevices(ctx *malgo.AllocatedContext, cfg *malgo.DeviceConfig, config Config) error {
	if config.CaptureDevice != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			return deviceError(err, "enumerate_capture_devices")
		}
		info, err := selectDevice(infos, config.CaptureDevice)
		if err != nil {
			return err
		}
		cfg.Capture.DeviceID = info.ID.Pointer()
	}
	if config.PlaybackDevice != "" {
		infos, err := ctx.Devices(malgo.Playback)
		if err != nil {
			return deviceError(err, "enumerate_playback_devices")
		}
		info, err := selectDevice(infos, config.PlaybackDevice)
		if err != nil {
			return err
		}
		cfg.Playback.DeviceID = info.ID.Pointer()
	}
	return nil
}

// selectDevice finds a device by exact name, decoded id, then partial name
func selectDevice(devices []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if decoded, err := hexToASCII(devices[i].ID.String()); err == nil && decoded == name {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name(), name) {
			return &devices[i], nil
		}
	}

	return nil, errors.Newf("no matching audio device found").
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

// ListDevices returns the capture or playback devices
func ListDevices(deviceType malgo.DeviceType) ([]Info, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(deviceType)
	if err != nil {
		return nil, deviceError(err, "enumerate_devices")
	}

	devices := make([]Info, 0, len(infos))
	for i := range infos {
		// Skip the discard/null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		devices = append(devices, Info{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        id,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
