package audiograph

import (
	"github.com/audiosvc/audiod/internal/errors"
)

// Component identifier for audiograph errors
const ComponentAudioGraph = "audiograph"

var (
	// ErrPortNotFound is returned when a port id does not resolve.
	ErrPortNotFound = errors.New(nil).
			Component(ComponentAudioGraph).
			Category(errors.CategoryNotFound).
			Context("resource", "port").
			Build()

	// ErrPortConfigNotFound is returned when a port config id does not resolve.
	ErrPortConfigNotFound = errors.New(nil).
				Component(ComponentAudioGraph).
				Category(errors.CategoryNotFound).
				Context("resource", "port-config").
				Build()

	// ErrPatchNotFound is returned when a patch id does not resolve.
	ErrPatchNotFound = errors.New(nil).
				Component(ComponentAudioGraph).
				Category(errors.CategoryNotFound).
				Context("resource", "patch").
				Build()

	// ErrInvalidPatch is returned for malformed patch requests.
	ErrInvalidPatch = errors.New(nil).
			Component(ComponentAudioGraph).
			Category(errors.CategoryValidation).
			Context("resource", "patch").
			Build()

	// ErrInvalidPortConfig is returned for malformed config requests.
	ErrInvalidPortConfig = errors.New(nil).
				Component(ComponentAudioGraph).
				Category(errors.CategoryValidation).
				Context("resource", "port-config").
				Build()

	// ErrNoRouteToSink is returned when a patch names a sink that no route
	// can reach from the given sources.
	ErrNoRouteToSink = errors.New(nil).
				Component(ComponentAudioGraph).
				Category(errors.CategoryRouting).
				Context("resource", "route").
				Build()

	// ErrExclusiveRouteBusy is returned when an exclusive sink is already
	// occupied by another patch.
	ErrExclusiveRouteBusy = errors.New(nil).
				Component(ComponentAudioGraph).
				Category(errors.CategoryConflict).
				Context("resource", "route").
				Build()

	// ErrPortConfigInUse is returned when a reset target is pinned by a
	// patch or an open stream.
	ErrPortConfigInUse = errors.New(nil).
				Component(ComponentAudioGraph).
				Category(errors.CategoryState).
				Context("resource", "port-config").
				Build()

	// ErrDeviceAlreadyConnected is returned when the same physical device
	// is connected twice.
	ErrDeviceAlreadyConnected = errors.New(nil).
					Component(ComponentAudioGraph).
					Category(errors.CategoryConflict).
					Context("resource", "device-port").
					Build()

	// ErrDevicePortBusy is returned when disconnecting a device port that
	// still carries a client-modified config.
	ErrDevicePortBusy = errors.New(nil).
				Component(ComponentAudioGraph).
				Category(errors.CategoryState).
				Context("resource", "device-port").
				Build()

	// ErrNotExternalDevicePort is returned when a connect/disconnect target
	// is not a pluggable device port.
	ErrNotExternalDevicePort = errors.New(nil).
					Component(ComponentAudioGraph).
					Category(errors.CategoryValidation).
					Context("resource", "device-port").
					Build()
)
