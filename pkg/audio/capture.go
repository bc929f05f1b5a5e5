package audio

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/lokutor-ai/assist-core/pkg/bus"
	"github.com/lokutor-ai/assist-core/pkg/logging"
)

// Source identifies which physical leg a captured chunk came from.
type Source string

const (
	SourceMic     Source = "mic"
	SourceDesktop Source = "desktop"
)

// CaptureConfig selects the devices and format a Capture opens.
type CaptureConfig struct {
	SampleRate    int
	Channels      int
	MicDeviceID   string // logged only; the mic leg opens the default capture device
	DeskDeviceID  string // empty disables the desktop leg; otherwise logged only
}

// Capture owns one or two malgo capture devices (microphone, and
// optionally a desktop leg) and republishes every delivered buffer as an
// AudioChunk event carrying its Source, mirroring the teacher's onSamples
// callback wiring in cmd/agent/main.go. Both legs open the backend's
// default capture device: device IDs do not select a device, and the
// desktop leg is not a loopback of the output device.
type Capture struct {
	cfg    CaptureConfig
	bus    *bus.Bus
	logger logging.Logger

	malgoCtx *malgo.AllocatedContext
	devices  []*malgo.Device
	seq      atomic.Uint64
}

// NewCapture constructs a Capture. Start must be called to open devices.
func NewCapture(cfg CaptureConfig, eventBus *bus.Bus, logger logging.Logger) *Capture {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Capture{cfg: cfg, bus: eventBus, logger: logger}
}

// Start initializes the malgo audio backend and opens the configured
// capture device(s). Every delivered buffer is published on the bus as an
// AudioChunk event with Data["source"], Data["bytes"] and Data["seq"].
// Start returns once devices are running; Stop (or ctx cancellation) tears
// them down.
func (c *Capture) Start(ctx context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("audio: init capture backend: %w", err)
	}
	c.malgoCtx = mctx

	if dev, err := c.openLeg(mctx, SourceMic, c.cfg.MicDeviceID); err != nil {
		mctx.Uninit()
		return err
	} else {
		c.devices = append(c.devices, dev)
	}

	if c.cfg.DeskDeviceID != "" {
		if dev, err := c.openLeg(mctx, SourceDesktop, c.cfg.DeskDeviceID); err != nil {
			c.Stop()
			return err
		} else {
			c.devices = append(c.devices, dev)
		}
	}

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	return nil
}

func (c *Capture) openLeg(mctx *malgo.AllocatedContext, source Source, deviceID string) (*malgo.Device, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(c.channels())
	deviceConfig.SampleRate = uint32(c.sampleRate())

	onData := func(_, input []byte, _ uint32) {
		if len(input) == 0 {
			return
		}
		chunk := make([]byte, len(input))
		copy(chunk, input)
		seq := c.seq.Add(1)
		c.bus.Publish(bus.New(bus.AudioChunk, map[string]any{
			"source": string(source),
			"bytes":  chunk,
			"seq":    seq,
		}))
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return nil, fmt.Errorf("audio: init %s capture device: %w", source, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start %s capture device: %w", source, err)
	}
	c.logger.Info("capture device started", "source", string(source), "device_id", deviceID)
	return device, nil
}

func (c *Capture) channels() int {
	if c.cfg.Channels <= 0 {
		return 1
	}
	return c.cfg.Channels
}

func (c *Capture) sampleRate() int {
	if c.cfg.SampleRate <= 0 {
		return TargetSampleRate
	}
	return c.cfg.SampleRate
}

// Stop tears down every open device and the backend context. Safe to call
// more than once.
func (c *Capture) Stop() {
	for _, dev := range c.devices {
		dev.Uninit()
	}
	c.devices = nil
	if c.malgoCtx != nil {
		c.malgoCtx.Uninit()
		c.malgoCtx = nil
	}
}
