// Package stream implements the per-stream data plane: the command/reply
// state machine driven by a dedicated worker goroutine, the driver
// abstraction below it, and the descriptor handed to clients for pumping
// audio through the shared channels.
package stream

import (
	"github.com/audiosvc/audiod/internal/mq"
)

// State is the worker state machine state, reported in every reply.
type State int32

const (
	// StateClosed is an orthogonal flag reported after the stream object
	// has been closed; the worker never runs in this state.
	StateClosed State = -1

	StateStandby State = iota
	StateIdle
	StateActive
	StatePaused
	StateDraining
	StateDrainPaused
	StateTransferring
	StateTransferPaused
	StateError
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateStandby:
		return "standby"
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateDrainPaused:
		return "drain-paused"
	case StateTransferring:
		return "transferring"
	case StateTransferPaused:
		return "transfer-paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTransient reports whether the state auto-advances after the configured
// dwell time.
func (s State) IsTransient() bool {
	return s == StateDraining || s == StateTransferring
}

// CommandTag discriminates the command union.
type CommandTag int

const (
	// TagExit is reserved for the owning stream object; clients never
	// send it. It carries a cookie to prevent forgery.
	TagExit CommandTag = iota
	TagGetStatus
	TagStart
	TagBurst
	TagDrain
	TagStandby
	TagPause
	TagFlush
)

// String returns the canonical command name.
func (t CommandTag) String() string {
	switch t {
	case TagExit:
		return "exit"
	case TagGetStatus:
		return "getStatus"
	case TagStart:
		return "start"
	case TagBurst:
		return "burst"
	case TagDrain:
		return "drain"
	case TagStandby:
		return "standby"
	case TagPause:
		return "pause"
	case TagFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// DrainMode selects the drain variant. Input streams use
// DrainUnspecified; output streams use DrainAll or DrainEarlyNotify.
type DrainMode int

const (
	DrainUnspecified DrainMode = iota
	DrainAll
	DrainEarlyNotify
)

// Command is one record of the command channel. Only the field selected
// by Tag is meaningful.
type Command struct {
	Tag        CommandTag
	ExitCookie int32
	BurstBytes int
	Mode       DrainMode
}

// ReplyStatus is the outcome code of a processed command.
type ReplyStatus int32

const (
	StatusOK ReplyStatus = iota
	StatusBadValue
	StatusInvalidOperation
	StatusNotEnoughData
)

// String returns the canonical status name.
func (s ReplyStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadValue:
		return "bad-value"
	case StatusInvalidOperation:
		return "invalid-operation"
	case StatusNotEnoughData:
		return "not-enough-data"
	default:
		return "unknown"
	}
}

// PositionUnknown is reported in both observable fields while the stream
// is not connected to a device.
const PositionUnknown int64 = -1

// Position is the hardware observable position.
type Position struct {
	Frames int64 `json:"frames"`
	TimeNs int64 `json:"timeNs"`
}

// Reply is one record of the reply channel. The worker writes exactly one
// reply per client command.
type Reply struct {
	Status       ReplyStatus
	FMQByteCount int
	Observable   Position
	LatencyMs    int
	State        State
}

// Descriptor is handed to the client on open: the channel endpoints plus
// the geometry needed to do burst arithmetic.
type Descriptor struct {
	Commands         *mq.Queue[Command]
	Replies          *mq.Queue[Reply]
	Data             *mq.DataQueue
	FrameSizeBytes   int
	BufferSizeFrames int
}
