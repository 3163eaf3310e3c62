package stream

import (
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/errors"
	"github.com/audiosvc/audiod/internal/logging"
	"github.com/audiosvc/audiod/internal/mq"
	"github.com/audiosvc/audiod/internal/observability"
)

// Params describes a stream to open. A nil Driver selects the stub.
type Params struct {
	PortID       int32
	PortConfigID int32
	Context      *Context
	Driver       Driver
	LatencyMs    int
	Metrics      *observability.StreamMetrics
	Microphones  []audiograph.MicrophoneInfo
}

// Stream owns one open audio stream: its context, driver and worker
// goroutine. All methods are safe for concurrent use.
type Stream struct {
	id           uuid.UUID
	portID       int32
	portConfigID int32
	direction    audiograph.Direction
	microphones  []audiograph.MicrophoneInfo

	ctx     *Context
	driver  Driver
	worker  *worker
	logger  *slog.Logger
	metrics *observability.StreamMetrics

	mu     sync.Mutex
	closed bool
}

// NewInput opens a capture stream and starts its worker.
func NewInput(p Params) (*Stream, error) {
	driver := p.Driver
	if driver == nil {
		driver = NewStubDriver(p.Context, true, p.LatencyMs)
	}
	w := newInWorker(p.Context, driver, p.LatencyMs, p.Metrics)
	return open(p, audiograph.DirectionInput, driver, w.worker)
}

// NewOutput opens a playback stream and starts its worker.
func NewOutput(p Params) (*Stream, error) {
	driver := p.Driver
	if driver == nil {
		driver = NewStubDriver(p.Context, false, p.LatencyMs)
	}
	w := newOutWorker(p.Context, driver, p.LatencyMs, p.Metrics)
	return open(p, audiograph.DirectionOutput, driver, w.worker)
}

func open(p Params, direction audiograph.Direction, driver Driver, w *worker) (*Stream, error) {
	s := &Stream{
		id:           uuid.New(),
		portID:       p.PortID,
		portConfigID: p.PortConfigID,
		direction:    direction,
		microphones:  p.Microphones,
		ctx:          p.Context,
		driver:       driver,
		worker:       w,
		metrics:      p.Metrics,
	}
	s.logger = logging.ForService("stream").With(
		"stream_id", s.id.String(), "direction", direction.String())
	if err := w.start(); err != nil {
		p.Context.release()
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.StreamOpened(direction.String())
	}
	s.logger.Debug("stream opened",
		"port_id", p.PortID, "port_config_id", p.PortConfigID)
	return s, nil
}

// ID returns the stream's unique identifier.
func (s *Stream) ID() uuid.UUID { return s.id }

// PortID returns the mix port the stream was opened on.
func (s *Stream) PortID() int32 { return s.portID }

// PortConfigID returns the port config the stream is bound to.
func (s *Stream) PortConfigID() int32 { return s.portConfigID }

// Direction returns the stream direction.
func (s *Stream) Direction() audiograph.Direction { return s.direction }

// Descriptor returns the client-facing channel endpoints.
func (s *Stream) Descriptor() Descriptor { return s.ctx.Descriptor() }

// State returns the last worker state, or StateClosed after Close.
func (s *Stream) State() State {
	if s.IsClosed() {
		return StateClosed
	}
	return s.worker.currentState()
}

// IsClosed reports whether Close has completed.
func (s *Stream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetConnectedDevices publishes the stream's routed device set. An empty
// set marks the stream disconnected.
func (s *Stream) SetConnectedDevices(devices []audiograph.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(ErrAlreadyClosed).Context("stream_id", s.id.String()).Build()
	}
	if err := s.driver.SetConnectedDevices(devices); err != nil {
		return errors.New(err).
			Component(ComponentStream).
			Category(errors.CategoryDriver).
			Context("stream_id", s.id.String()).Build()
	}
	s.worker.setConnectedDevices(devices)
	s.logger.Debug("connected devices updated", "count", len(devices))
	return nil
}

// ConnectedDevices returns the currently routed device set.
func (s *Stream) ConnectedDevices() []audiograph.Device {
	return s.worker.connectedDevices()
}

// ActiveMicrophones returns the built-in microphones among the stream's
// connected devices. Only meaningful for input streams.
func (s *Stream) ActiveMicrophones() []audiograph.MicrophoneInfo {
	if s.direction != audiograph.DirectionInput || s.IsClosed() {
		return nil
	}
	var active []audiograph.MicrophoneInfo
	for _, mic := range s.microphones {
		for _, dev := range s.worker.connectedDevices() {
			if mic.Device.Equal(dev) {
				active = append(active, mic)
				break
			}
		}
	}
	return active
}

// Close stops the worker via the reserved exit command, waits for it to
// finish and releases the channels.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New(ErrAlreadyClosed).Context("stream_id", s.id.String()).Build()
	}
	s.closed = true
	s.mu.Unlock()

	s.stopWorker()
	s.worker.join()
	s.ctx.release()
	if s.metrics != nil {
		s.metrics.StreamClosed(s.direction.String())
	}
	s.logger.Debug("stream closed")
	return nil
}

// stopWorker enqueues the exit command. If the worker has already aborted
// nobody drains the command channel, so the write is retried
// non-blocking against the worker's completion.
func (s *Stream) stopWorker() {
	cmd := Command{Tag: TagExit, ExitCookie: s.ctx.cookie}
	for {
		select {
		case <-s.worker.done:
			return
		default:
		}
		err := s.ctx.commands.TryWrite(cmd)
		if err == nil || stderrors.Is(err, mq.ErrClosed) {
			return
		}
		time.Sleep(50 * time.Microsecond)
	}
}
