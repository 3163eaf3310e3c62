package mq

import (
	"errors"
	"fmt"

	"github.com/smallnest/ringbuffer"
)

// DataQueue is the multi-slot byte channel carrying audio frames between
// the client and the worker. It wraps a lock-free-style ring buffer; the
// worker is the sole writer for input streams and the sole reader for
// output streams.
type DataQueue struct {
	rb       *ringbuffer.RingBuffer
	capacity int
}

// NewDataQueue allocates a byte ring of the given capacity.
func NewDataQueue(capacityBytes int) (*DataQueue, error) {
	if capacityBytes <= 0 {
		return nil, fmt.Errorf("mq: non-positive data queue capacity %d", capacityBytes)
	}
	return &DataQueue{
		rb:       ringbuffer.New(capacityBytes),
		capacity: capacityBytes,
	}, nil
}

// Capacity returns the ring size in bytes.
func (d *DataQueue) Capacity() int {
	return d.capacity
}

// AvailableToRead returns the number of buffered bytes.
func (d *DataQueue) AvailableToRead() int {
	return d.rb.Length()
}

// AvailableToWrite returns the remaining free space in bytes.
func (d *DataQueue) AvailableToWrite() int {
	return d.rb.Free()
}

// Write stores all of p or none of it. The caller is expected to have
// bounded len(p) by AvailableToWrite; a short write indicates a foreign
// writer and is reported as an error.
func (d *DataQueue) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if d.rb.Free() < len(p) {
		return ErrFull
	}
	n, err := d.rb.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return errors.New("mq: short write to data queue")
	}
	return nil
}

// Read fills p with up to len(p) buffered bytes and returns the count.
// An empty ring yields n == 0 with no error.
func (d *DataQueue) Read(p []byte) (int, error) {
	if len(p) == 0 || d.rb.Length() == 0 {
		return 0, nil
	}
	n, err := d.rb.Read(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return n, err
	}
	return n, nil
}

// Reset discards all buffered bytes.
func (d *DataQueue) Reset() {
	d.rb.Reset()
}
