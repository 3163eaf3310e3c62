package stream

import (
	"time"

	"github.com/audiosvc/audiod/internal/observability"
)

// inWorker implements the capture command loop. Draining is driven by the
// client: the hardware buffer can only run empty while handling a burst,
// so the transient dwell used by the playback worker does not apply here.
type inWorker struct {
	*worker
}

func newInWorker(ctx *Context, driver Driver, latencyMs int,
	metrics *observability.StreamMetrics) *inWorker {
	w := &inWorker{worker: newWorker(ctx, driver, latencyMs, metrics, "reader")}
	w.cycleFn = w.cycle
	return w
}

func (w *inWorker) cycle() cycleStatus {
	cmd, ok := w.readCommand()
	if !ok {
		return cycleAbort
	}
	reply := Reply{Status: StatusBadValue}
	switch cmd.Tag {
	case TagExit:
		if cmd.ExitCookie == w.ctx.cookie {
			// Internal command, no reply.
			return cycleExit
		}
		w.logger.Warn("exit command with a bad cookie", "cookie", cmd.ExitCookie)
	case TagGetStatus:
		w.populateReply(&reply, w.isConnected())
	case TagStart:
		switch w.state {
		case StateStandby:
			w.populateReply(&reply, w.isConnected())
			w.setState(StateIdle)
		case StateDraining:
			w.populateReply(&reply, w.isConnected())
			w.setState(StateActive)
		default:
			w.populateReplyWrongState(&reply, cmd)
		}
	case TagBurst:
		if cmd.BurstBytes < 0 {
			w.logger.Warn("invalid burst byte count", "bytes", cmd.BurstBytes)
			break
		}
		switch w.state {
		case StateIdle, StateActive, StatePaused, StateDraining:
			if !w.read(cmd.BurstBytes, &reply) {
				w.setState(StateError)
			}
			switch w.state {
			case StateIdle, StatePaused:
				w.setState(StateActive)
			case StateDraining:
				// The read is assumed to have consumed whatever remained
				// in the hardware buffer.
				w.setState(StateStandby)
			}
		default:
			w.populateReplyWrongState(&reply, cmd)
		}
	case TagDrain:
		if cmd.Mode != DrainUnspecified {
			w.logger.Warn("invalid drain mode for input", "mode", int(cmd.Mode))
			break
		}
		if w.state == StateActive {
			if err := w.driver.Drain(cmd.Mode); err != nil {
				w.logger.Error("drain failed", "error", err)
				w.setState(StateError)
			} else {
				w.populateReply(&reply, w.isConnected())
				w.setState(StateDraining)
			}
		} else {
			w.populateReplyWrongState(&reply, cmd)
		}
	case TagStandby:
		if w.state == StateIdle {
			if err := w.driver.Standby(); err != nil {
				w.logger.Error("standby failed", "error", err)
				w.setState(StateError)
			} else {
				w.populateReply(&reply, w.isConnected())
				w.setState(StateStandby)
			}
		} else {
			w.populateReplyWrongState(&reply, cmd)
		}
	case TagPause:
		if w.state == StateActive {
			if err := w.driver.Pause(); err != nil {
				w.logger.Error("pause failed", "error", err)
				w.setState(StateError)
			} else {
				w.populateReply(&reply, w.isConnected())
				w.setState(StatePaused)
			}
		} else {
			w.populateReplyWrongState(&reply, cmd)
		}
	case TagFlush:
		if w.state == StatePaused {
			if err := w.driver.Flush(); err != nil {
				w.logger.Error("flush failed", "error", err)
				w.setState(StateError)
			} else {
				w.populateReply(&reply, w.isConnected())
				w.setState(StateStandby)
			}
		} else {
			w.populateReplyWrongState(&reply, cmd)
		}
	}
	reply.State = w.state
	if !w.writeReply(reply) {
		return cycleAbort
	}
	return cycleContinue
}

// read captures up to clientBytes into the data channel, truncated to a
// whole number of frames and capped by channel space.
func (w *inWorker) read(clientBytes int, reply *Reply) bool {
	byteCount := min(clientBytes, w.ctx.data.AvailableToWrite(), len(w.buffer))
	frames := byteCount / w.frameSize
	connected := w.isConnected()
	latency := w.latencyMs
	actualFrames := 0
	fatal := false
	if connected {
		af, lat, err := w.driver.Transfer(w.buffer[:frames*w.frameSize], frames)
		if err != nil {
			w.logger.Error("capture transfer failed", "error", err)
			fatal = true
		} else {
			actualFrames = af
			latency = lat
		}
	} else {
		time.Sleep(disconnectedTransferDelay)
		clear(w.buffer[:frames*w.frameSize])
		actualFrames = frames
	}
	actualBytes := actualFrames * w.frameSize
	if actualBytes > 0 {
		if err := w.ctx.data.Write(w.buffer[:actualBytes]); err != nil {
			w.logger.Warn("writing captured data failed",
				"bytes", actualBytes, "error", err)
			reply.Status = StatusNotEnoughData
			reply.LatencyMs = latency
			return !fatal
		}
	}
	// Frames are provided and counted regardless of connection status.
	reply.FMQByteCount += actualBytes
	w.frameCount += int64(actualFrames)
	if w.metrics != nil {
		w.metrics.RecordBytesTransferred(w.name, actualBytes)
	}
	w.populateReply(reply, connected)
	reply.LatencyMs = latency
	return !fatal
}
