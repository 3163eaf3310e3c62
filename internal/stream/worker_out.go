package stream

import (
	"time"

	"github.com/audiosvc/audiod/internal/observability"
)

// outWorker implements the playback command loop, including the timed
// transient states used in non-blocking mode.
type outWorker struct {
	*worker
}

func newOutWorker(ctx *Context, driver Driver, latencyMs int,
	metrics *observability.StreamMetrics) *outWorker {
	w := &outWorker{worker: newWorker(ctx, driver, latencyMs, metrics, "writer")}
	w.cycleFn = w.cycle
	return w
}

func (w *outWorker) cycle() cycleStatus {
	// Transient states advance after the configured dwell. The check runs
	// before blocking for the next command, so the switch becomes visible
	// on the command after the dwell elapses.
	if w.state.IsTransient() {
		if dwell := time.Since(w.transientStart); dwell >= w.ctx.debug.TransientStateDelay {
			cb := w.ctx.callback
			if cb == nil {
				// In blocking mode the only transient state is DRAINING.
				w.setState(StateIdle)
			} else if w.state == StateDraining {
				w.setState(StateIdle)
				cb.OnDrainReady()
			} else {
				w.setState(StateActive)
				cb.OnTransferReady()
			}
			if w.ctx.debug.TransientStateDelay != 0 {
				w.logger.Debug("transient state timed out", "state", w.state.String())
			}
		}
	}

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
		accepted := true
		switch w.state {
		case StateStandby:
			w.setState(StateIdle)
		case StatePaused:
			w.setState(StateActive)
		case StateDrainPaused:
			w.switchToTransientState(StateDraining)
		case StateTransferPaused:
			w.switchToTransientState(StateTransferring)
		default:
			w.populateReplyWrongState(&reply, cmd)
			accepted = false
		}
		if accepted {
			w.populateReply(&reply, w.isConnected())
		}
	case TagBurst:
		if cmd.BurstBytes < 0 {
			w.logger.Warn("invalid burst byte count", "bytes", cmd.BurstBytes)
			break
		}
		switch w.state {
		case StateError, StateTransferring, StateTransferPaused:
			w.populateReplyWrongState(&reply, cmd)
		default:
			if !w.write(cmd.BurstBytes, &reply) {
				w.setState(StateError)
			}
			async := w.ctx.callback != nil
			switch w.state {
			case StateStandby, StateDrainPaused, StatePaused:
				if !async || w.state != StateDrainPaused {
					w.setState(StatePaused)
				} else {
					w.setState(StateTransferPaused)
				}
			case StateIdle, StateDraining, StateActive:
				if !async || reply.FMQByteCount == cmd.BurstBytes {
					w.setState(StateActive)
				} else {
					w.switchToTransientState(StateTransferring)
				}
			}
		}
	case TagDrain:
		if cmd.Mode != DrainAll && cmd.Mode != DrainEarlyNotify {
			w.logger.Warn("invalid drain mode for output", "mode", int(cmd.Mode))
			break
		}
		switch w.state {
		case StateActive, StateTransferring:
			if err := w.driver.Drain(cmd.Mode); err != nil {
				w.logger.Error("drain failed", "error", err)
				w.setState(StateError)
			} else {
				w.populateReply(&reply, w.isConnected())
				if w.state == StateActive && w.ctx.debug.ForceSynchronousDrain {
					w.setState(StateIdle)
				} else {
					w.switchToTransientState(StateDraining)
				}
			}
		case StateTransferPaused:
			w.setState(StateDrainPaused)
			w.populateReply(&reply, w.isConnected())
		default:
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
		var next State
		switch w.state {
		case StateActive:
			next = StatePaused
		case StateDraining:
			next = StateDrainPaused
		case StateTransferring:
			next = StateTransferPaused
		default:
			w.populateReplyWrongState(&reply, cmd)
		}
		if next != 0 {
			if err := w.driver.Pause(); err != nil {
				w.logger.Error("pause failed", "error", err)
				w.setState(StateError)
			} else {
				w.populateReply(&reply, w.isConnected())
				w.setState(next)
			}
		}
	case TagFlush:
		switch w.state {
		case StatePaused, StateDrainPaused, StateTransferPaused:
			if err := w.driver.Flush(); err != nil {
				w.logger.Error("flush failed", "error", err)
				w.setState(StateError)
			} else {
				w.populateReply(&reply, w.isConnected())
				w.setState(StateIdle)
			}
		default:
			w.populateReplyWrongState(&reply, cmd)
		}
	}
	reply.State = w.state
	if !w.writeReply(reply) {
		return cycleAbort
	}
	return cycleContinue
}

// write drains the data channel and plays at most clientBytes of it,
// truncated to a whole number of frames.
func (w *outWorker) write(clientBytes int, reply *Reply) bool {
	available := w.ctx.data.AvailableToRead()
	latency := w.latencyMs
	readBytes := 0
	if available > 0 {
		n, err := w.ctx.data.Read(w.buffer[:min(available, len(w.buffer))])
		if err != nil {
			w.logger.Warn("reading playback data failed",
				"bytes", available, "error", err)
			reply.Status = StatusNotEnoughData
			reply.LatencyMs = latency
			return true
		}
		readBytes = n
	}
	connected := w.isConnected()
	// Amount of data the driver is going to actually consume.
	byteCount := min(clientBytes, readBytes, len(w.buffer))
	if byteCount >= w.frameSize && w.ctx.debug.ForceTransientBurst {
		// Simulate a partial write to keep the state machine out of
		// ACTIVE.
		byteCount -= w.frameSize
	}
	frames := byteCount / w.frameSize
	actualFrames := 0
	fatal := false
	if connected {
		af, lat, err := w.driver.Transfer(w.buffer[:frames*w.frameSize], frames)
		if err != nil {
			w.logger.Error("playback transfer failed", "error", err)
			fatal = true
		} else {
			actualFrames = af
			latency = lat
		}
	} else {
		if w.ctx.callback == nil {
			time.Sleep(disconnectedTransferDelay)
		}
		actualFrames = frames
	}
	actualBytes := actualFrames * w.frameSize
	// Frames are consumed and counted regardless of connection status.
	reply.FMQByteCount += actualBytes
	w.frameCount += int64(actualFrames)
	if w.metrics != nil {
		w.metrics.RecordBytesTransferred(w.name, actualBytes)
	}
	w.populateReply(reply, connected)
	reply.LatencyMs = latency
	return !fatal
}
