package stream

import (
	"github.com/audiosvc/audiod/internal/errors"
)

// Component identifier for stream errors
const ComponentStream = "stream"

var (
	// ErrInvalidContext is returned when the channel geometry of a new
	// stream does not add up.
	ErrInvalidContext = errors.New(nil).
				Component(ComponentStream).
				Category(errors.CategoryValidation).
				Context("resource", "stream-context").
				Build()

	// ErrAlreadyClosed is returned when closing a closed stream.
	ErrAlreadyClosed = errors.New(nil).
				Component(ComponentStream).
				Category(errors.CategoryState).
				Context("resource", "stream").
				Build()

	// ErrBufferTooSmall is returned when the requested buffer is below
	// the module minimum.
	ErrBufferTooSmall = errors.New(nil).
				Component(ComponentStream).
				Category(errors.CategoryValidation).
				Context("resource", "stream-buffer").
				Build()

	// ErrBufferTooLarge is returned when the requested buffer exceeds the
	// allocation ceiling.
	ErrBufferTooLarge = errors.New(nil).
				Component(ComponentStream).
				Category(errors.CategoryLimit).
				Context("resource", "stream-buffer").
				Build()

	// ErrWorkerStart is returned when the worker goroutine fails its
	// startup handshake.
	ErrWorkerStart = errors.New(nil).
			Component(ComponentStream).
			Category(errors.CategoryStream).
			Context("resource", "stream-worker").
			Build()
)
