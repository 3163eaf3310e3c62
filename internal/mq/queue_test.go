package mq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestQueueBasicFIFO(t *testing.T) {
	q := NewQueue[int](3)
	assert.Equal(t, 3, q.Cap())
	assert.Equal(t, 0, q.Len())

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.TryWrite(i))
	}
	assert.Equal(t, 3, q.Len())
	assert.ErrorIs(t, q.TryWrite(4), ErrFull)

	for i := 1; i <= 3; i++ {
		v, err := q.TryRead()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	_, err := q.TryRead()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueueWraparound(t *testing.T) {
	q := NewQueue[int](2)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.TryWrite(i))
		v, err := q.Read()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueMinimumCapacity(t *testing.T) {
	q := NewQueue[int](0)
	assert.Equal(t, 1, q.Cap())
}

func TestQueueBlockingHandoff(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue[int](1)
	const count = 100

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			if err := q.Write(i); err != nil {
				t.Errorf("write %d: %v", i, err)
				return
			}
		}
	}()

	for i := 0; i < count; i++ {
		v, err := q.Read()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	wg.Wait()
}

func TestQueueCloseUnblocksReader(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue[int](1)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Read()
		errCh <- err
	}()

	time.Sleep(5 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("reader not released by close")
	}
}

func TestQueueCloseUnblocksWriter(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue[int](1)
	require.NoError(t, q.TryWrite(1))

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Write(2)
	}()

	time.Sleep(5 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("writer not released by close")
	}
}

func TestQueueCloseDrainsBuffered(t *testing.T) {
	q := NewQueue[int](2)
	require.NoError(t, q.TryWrite(1))
	require.NoError(t, q.TryWrite(2))
	q.Close()
	assert.True(t, q.IsClosed())

	v, err := q.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = q.TryRead()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = q.Read()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = q.TryRead()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.TryWrite(3), ErrClosed)
	assert.ErrorIs(t, q.Write(3), ErrClosed)

	// Idempotent.
	q.Close()
	assert.True(t, q.IsClosed())
}

func TestDataQueue(t *testing.T) {
	t.Run("rejects non-positive capacity", func(t *testing.T) {
		_, err := NewDataQueue(0)
		assert.Error(t, err)
		_, err = NewDataQueue(-1)
		assert.Error(t, err)
	})

	t.Run("write and read", func(t *testing.T) {
		d, err := NewDataQueue(16)
		require.NoError(t, err)
		assert.Equal(t, 16, d.Capacity())
		assert.Equal(t, 16, d.AvailableToWrite())
		assert.Equal(t, 0, d.AvailableToRead())

		require.NoError(t, d.Write([]byte("hello")))
		assert.Equal(t, 5, d.AvailableToRead())
		assert.Equal(t, 11, d.AvailableToWrite())

		buf := make([]byte, 8)
		n, err := d.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", string(buf[:n]))
	})

	t.Run("write is all or nothing", func(t *testing.T) {
		d, err := NewDataQueue(4)
		require.NoError(t, err)
		assert.ErrorIs(t, d.Write([]byte("hello")), ErrFull)
		assert.Equal(t, 0, d.AvailableToRead())
		require.NoError(t, d.Write([]byte("hi")))
		assert.ErrorIs(t, d.Write([]byte("hey")), ErrFull)
		assert.Equal(t, 2, d.AvailableToRead())
	})

	t.Run("empty read returns zero", func(t *testing.T) {
		d, err := NewDataQueue(4)
		require.NoError(t, err)
		buf := make([]byte, 4)
		n, err := d.Read(buf)
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = d.Read(nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("zero-length write is a no-op", func(t *testing.T) {
		d, err := NewDataQueue(4)
		require.NoError(t, err)
		require.NoError(t, d.Write(nil))
		assert.Equal(t, 0, d.AvailableToRead())
	})

	t.Run("reset discards buffered bytes", func(t *testing.T) {
		d, err := NewDataQueue(8)
		require.NoError(t, err)
		require.NoError(t, d.Write([]byte("abcdef")))
		d.Reset()
		assert.Equal(t, 0, d.AvailableToRead())
		assert.Equal(t, 8, d.AvailableToWrite())
	})

	t.Run("wraparound preserves order", func(t *testing.T) {
		d, err := NewDataQueue(8)
		require.NoError(t, err)
		buf := make([]byte, 8)

		require.NoError(t, d.Write([]byte("abcdef")))
		n, err := d.Read(buf[:4])
		require.NoError(t, err)
		require.Equal(t, 4, n)
		require.Equal(t, "abcd", string(buf[:4]))

		require.NoError(t, d.Write([]byte("ghijk")))
		n, err = d.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 7, n)
		assert.Equal(t, "efghijk", string(buf[:n]))
	})
}
