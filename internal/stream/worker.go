package stream

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/errors"
	"github.com/audiosvc/audiod/internal/observability"
)

type cycleStatus int

const (
	cycleContinue cycleStatus = iota
	cycleExit
	cycleAbort
)

// disconnectedTransferDelay simulates the pacing of a blocking transfer
// while no device is connected.
const disconnectedTransferDelay = 3 * time.Millisecond

// worker holds the state shared by the input and output command loops.
// All non-atomic fields are owned by the worker goroutine once start has
// returned.
type worker struct {
	ctx     *Context
	driver  Driver
	logger  *slog.Logger
	metrics *observability.StreamMetrics
	name    string

	cycleFn func() cycleStatus

	buffer    []byte
	frameSize int
	latencyMs int

	state          State
	frameCount     int64
	transientStart time.Time

	connected atomic.Bool
	devices   atomic.Pointer[[]audiograph.Device]

	// observedState mirrors state for control-plane reads.
	observedState atomic.Int32

	done chan struct{}
}

func newWorker(ctx *Context, driver Driver, latencyMs int,
	metrics *observability.StreamMetrics, name string) *worker {
	w := &worker{
		ctx:       ctx,
		driver:    driver,
		logger:    ctx.logger().With("worker", name),
		metrics:   metrics,
		name:      name,
		buffer:    make([]byte, ctx.Descriptor().Data.Capacity()),
		frameSize: ctx.FrameSize(),
		latencyMs: latencyMs,
		state:     StateStandby,
		done:      make(chan struct{}),
	}
	w.observedState.Store(int32(StateStandby))
	return w
}

// start initializes the driver and launches the command loop.
func (w *worker) start() error {
	if err := w.driver.Init(); err != nil {
		return errors.New(ErrWorkerStart).Context("cause", err.Error()).Build()
	}
	go w.run()
	return nil
}

func (w *worker) run() {
	defer close(w.done)
	w.logger.Debug("worker started")
	for {
		status := w.cycleFn()
		w.observedState.Store(int32(w.state))
		switch status {
		case cycleContinue:
		case cycleExit:
			w.logger.Debug("worker exiting")
			return
		case cycleAbort:
			w.logger.Error("worker aborted", "state", w.state.String())
			if cb := w.ctx.callback; cb != nil {
				cb.OnError()
			}
			return
		}
	}
}

// join waits for the worker goroutine to finish.
func (w *worker) join() {
	<-w.done
}

// currentState returns the last state the worker published.
func (w *worker) currentState() State {
	return State(w.observedState.Load())
}

func (w *worker) isConnected() bool {
	return w.connected.Load()
}

// setConnectedDevices publishes the device set to the worker goroutine.
func (w *worker) setConnectedDevices(devices []audiograph.Device) {
	cp := make([]audiograph.Device, len(devices))
	copy(cp, devices)
	w.devices.Store(&cp)
	w.connected.Store(len(cp) > 0)
}

func (w *worker) connectedDevices() []audiograph.Device {
	if p := w.devices.Load(); p != nil {
		return *p
	}
	return nil
}

func (w *worker) populateReply(reply *Reply, connected bool) {
	reply.Status = StatusOK
	if connected {
		reply.Observable = Position{Frames: w.frameCount, TimeNs: time.Now().UnixNano()}
	} else {
		reply.Observable = Position{Frames: PositionUnknown, TimeNs: PositionUnknown}
	}
}

func (w *worker) populateReplyWrongState(reply *Reply, cmd Command) {
	w.logger.Warn("command rejected in current state",
		"command", cmd.Tag.String(), "state", w.state.String())
	reply.Status = StatusInvalidOperation
}

func (w *worker) switchToTransientState(next State) {
	w.setState(next)
	w.transientStart = time.Now()
}

func (w *worker) setState(next State) {
	if next != w.state && w.metrics != nil {
		w.metrics.RecordStateTransition(w.name, w.state.String(), next.String())
	}
	w.state = next
}

// readCommand blocks for the next client command; channel closure aborts
// the loop.
func (w *worker) readCommand() (Command, bool) {
	cmd, err := w.ctx.commands.Read()
	if err != nil {
		w.logger.Error("reading command failed", "error", err)
		w.setState(StateError)
		return Command{}, false
	}
	return cmd, true
}

// writeReply publishes the reply for the command just processed.
func (w *worker) writeReply(reply Reply) bool {
	if err := w.ctx.replies.Write(reply); err != nil {
		w.logger.Error("writing reply failed", "error", err)
		w.setState(StateError)
		return false
	}
	if w.metrics != nil {
		w.metrics.RecordCommand(w.name, reply.Status.String())
	}
	return true
}
