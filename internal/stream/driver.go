package stream

import (
	"math/rand"
	"time"

	"github.com/audiosvc/audiod/internal/audiograph"
)

// Driver is the hardware abstraction a worker drives. Transfer moves up
// to frameCount frames through buf and reports how many frames it
// actually handled together with the observed latency.
type Driver interface {
	Init() error
	Drain(mode DrainMode) error
	Flush() error
	Pause() error
	Standby() error
	Transfer(buf []byte, frameCount int) (actualFrames, latencyMs int, err error)
	SetConnectedDevices(devices []audiograph.Device) error
}

// stubDriver emulates hardware timing without touching any device: every
// control operation takes a fixed small delay and Transfer paces itself
// against the nominal sample rate. Input transfers fill the buffer with
// noise.
type stubDriver struct {
	frameSize    int
	sampleRate   int
	latencyMs    int
	asynchronous bool
	isInput      bool
}

const (
	stubOpDelay = 500 * time.Microsecond
	// stubTransferScale keeps simulated transfers slightly faster than
	// real time so the client never underruns against the stub.
	stubTransferScale = 0.8
)

// NewStubDriver builds a driver simulating the timing of the stream
// described by ctx.
func NewStubDriver(ctx *Context, isInput bool, latencyMs int) Driver {
	return &stubDriver{
		frameSize:    ctx.FrameSize(),
		sampleRate:   ctx.SampleRate(),
		latencyMs:    latencyMs,
		asynchronous: ctx.IsAsynchronous(),
		isInput:      isInput,
	}
}

func (d *stubDriver) Init() error {
	time.Sleep(stubOpDelay)
	return nil
}

func (d *stubDriver) Drain(DrainMode) error {
	time.Sleep(stubOpDelay)
	return nil
}

func (d *stubDriver) Flush() error {
	time.Sleep(stubOpDelay)
	return nil
}

func (d *stubDriver) Pause() error {
	time.Sleep(stubOpDelay)
	return nil
}

func (d *stubDriver) Standby() error {
	time.Sleep(stubOpDelay)
	return nil
}

func (d *stubDriver) Transfer(buf []byte, frameCount int) (int, int, error) {
	if d.asynchronous {
		time.Sleep(stubOpDelay)
	} else {
		delay := time.Duration(stubTransferScale * float64(frameCount) *
			float64(time.Second) / float64(d.sampleRate))
		time.Sleep(delay)
	}
	if d.isInput {
		n := frameCount * d.frameSize
		for i := 0; i < n && i < len(buf); i++ {
			buf[i] = byte(rand.Intn(256))
		}
	}
	return frameCount, d.latencyMs, nil
}

func (d *stubDriver) SetConnectedDevices([]audiograph.Device) error {
	time.Sleep(stubOpDelay)
	return nil
}
