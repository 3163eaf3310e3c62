package service

import (
	"github.com/audiosvc/audiod/internal/errors"
)

// Component identifier for service errors
const ComponentService = "service"

var (
	// ErrNotMixPort is returned when a stream open targets a device port
	// config.
	ErrNotMixPort = errors.New(nil).
			Component(ComponentService).
			Category(errors.CategoryValidation).
			Context("resource", "mix-port").
			Build()

	// ErrDirectionMismatch is returned when the port direction does not
	// match the requested stream direction.
	ErrDirectionMismatch = errors.New(nil).
				Component(ComponentService).
				Category(errors.CategoryValidation).
				Context("resource", "mix-port").
				Build()

	// ErrStreamAlreadyOpen is returned when a port config already carries
	// an open stream.
	ErrStreamAlreadyOpen = errors.New(nil).
				Component(ComponentService).
				Category(errors.CategoryState).
				Context("resource", "stream").
				Build()

	// ErrTooManyStreams is returned when the mix port's open stream limit
	// is reached.
	ErrTooManyStreams = errors.New(nil).
				Component(ComponentService).
				Category(errors.CategoryLimit).
				Context("resource", "stream").
				Build()

	// ErrCallbackRequired is returned when opening a non-blocking output
	// stream without a completion callback.
	ErrCallbackRequired = errors.New(nil).
				Component(ComponentService).
				Category(errors.CategoryValidation).
				Context("resource", "stream-callback").
				Build()

	// ErrStreamNotOpen is returned when a stream operation names a port
	// config without an open stream.
	ErrStreamNotOpen = errors.New(nil).
				Component(ComponentService).
				Category(errors.CategoryNotFound).
				Context("resource", "stream").
				Build()

	// ErrConfigOwnedByStream is returned when resetting a port config that
	// an open stream is bound to.
	ErrConfigOwnedByStream = errors.New(nil).
				Component(ComponentService).
				Category(errors.CategoryState).
				Context("resource", "port-config").
				Build()

	// ErrSimulationDisabled is returned for device connect/disconnect
	// while connection simulation is off.
	ErrSimulationDisabled = errors.New(nil).
				Component(ComponentService).
				Category(errors.CategoryState).
				Context("resource", "device-simulation").
				Build()

	// ErrDebugLocked is returned when a debug change is not allowed in the
	// current module state.
	ErrDebugLocked = errors.New(nil).
			Component(ComponentService).
			Category(errors.CategoryState).
			Context("resource", "debug").
			Build()

	// ErrInvalidDebug is returned for out-of-range debug values.
	ErrInvalidDebug = errors.New(nil).
			Component(ComponentService).
			Category(errors.CategoryValidation).
			Context("resource", "debug").
			Build()

	// ErrInvalidVolume is returned for volumes outside [0.0, 1.0].
	ErrInvalidVolume = errors.New(nil).
				Component(ComponentService).
				Category(errors.CategoryValidation).
				Context("resource", "master-volume").
				Build()
)
