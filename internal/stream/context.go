package stream

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/errors"
	"github.com/audiosvc/audiod/internal/logging"
	"github.com/audiosvc/audiod/internal/mq"
)

// Callback receives asynchronous completion notifications from the worker
// of a non-blocking stream.
type Callback interface {
	OnTransferReady()
	OnDrainReady()
	OnError()
}

// DebugParameters tweak worker timing for testing.
type DebugParameters struct {
	// TransientStateDelay is how long the worker dwells in a transient
	// state before advancing.
	TransientStateDelay time.Duration
	// ForceTransientBurst makes every burst of an async output stream
	// complete partially, forcing the TRANSFERRING state.
	ForceTransientBurst bool
	// ForceSynchronousDrain makes drain on an async output stream
	// complete immediately instead of entering DRAINING.
	ForceSynchronousDrain bool
}

// ContextParams describes the stream to create a Context for.
type ContextParams struct {
	Format           audiograph.Format
	ChannelMask      audiograph.ChannelMask
	SampleRate       int
	Flags            audiograph.IOFlags
	BufferSizeFrames int
	Callback         Callback

	// MinBufferFrames and MaxBufferBytes bound the data channel size.
	MinBufferFrames int
	MaxBufferBytes  int

	Debug DebugParameters
}

// Context owns the channel endpoints and static parameters of one stream.
// It is created on open and released by the stream on close.
type Context struct {
	commands *mq.Queue[Command]
	replies  *mq.Queue[Reply]
	data     *mq.DataQueue

	format           audiograph.Format
	channelMask      audiograph.ChannelMask
	sampleRate       int
	flags            audiograph.IOFlags
	frameSize        int
	bufferSizeFrames int

	cookie   int32
	callback Callback
	debug    DebugParameters
	log      *slog.Logger
}

// NewContext validates the channel geometry and allocates the channels.
func NewContext(p ContextParams) (*Context, error) {
	frameSize := audiograph.FrameSize(p.Format, p.ChannelMask)
	if frameSize == 0 || p.SampleRate <= 0 {
		return nil, errors.New(ErrInvalidContext).
			Context("format", p.Format.String()).
			Context("channel_mask", p.ChannelMask.String()).
			Context("sample_rate", p.SampleRate).Build()
	}
	if p.BufferSizeFrames < p.MinBufferFrames {
		return nil, errors.New(ErrBufferTooSmall).
			Context("buffer_size_frames", p.BufferSizeFrames).
			Context("min_buffer_frames", p.MinBufferFrames).Build()
	}
	bufferBytes := p.BufferSizeFrames * frameSize
	if p.MaxBufferBytes > 0 && bufferBytes > p.MaxBufferBytes {
		return nil, errors.New(ErrBufferTooLarge).
			Context("buffer_size_bytes", bufferBytes).
			Context("max_buffer_bytes", p.MaxBufferBytes).Build()
	}
	data, err := mq.NewDataQueue(bufferBytes)
	if err != nil {
		return nil, err
	}
	return &Context{
		commands:         mq.NewQueue[Command](1),
		replies:          mq.NewQueue[Reply](1),
		data:             data,
		format:           p.Format,
		channelMask:      p.ChannelMask,
		sampleRate:       p.SampleRate,
		flags:            p.Flags,
		frameSize:        frameSize,
		bufferSizeFrames: p.BufferSizeFrames,
		cookie:           newCommandCookie(),
		callback:         p.Callback,
		debug:            p.Debug,
		log:              logging.ForService("stream"),
	}, nil
}

func (c *Context) logger() *slog.Logger { return c.log }

// newCommandCookie returns a random non-zero cookie for the exit command.
func newCommandCookie() int32 {
	for {
		if c := rand.Int31(); c != 0 {
			return c
		}
	}
}

// Descriptor exports the client-facing view of the stream channels.
func (c *Context) Descriptor() Descriptor {
	return Descriptor{
		Commands:         c.commands,
		Replies:          c.replies,
		Data:             c.data,
		FrameSizeBytes:   c.frameSize,
		BufferSizeFrames: c.bufferSizeFrames,
	}
}

// FrameSize returns the frame size in bytes.
func (c *Context) FrameSize() int { return c.frameSize }

// BufferSizeFrames returns the data channel capacity in frames.
func (c *Context) BufferSizeFrames() int { return c.bufferSizeFrames }

// SampleRate returns the stream sample rate.
func (c *Context) SampleRate() int { return c.sampleRate }

// Flags returns the stream's mix port flags.
func (c *Context) Flags() audiograph.IOFlags { return c.flags }

// IsAsynchronous reports whether the stream operates in non-blocking mode.
func (c *Context) IsAsynchronous() bool { return c.callback != nil }

// release closes all channels, unblocking any client stuck on them.
func (c *Context) release() {
	c.commands.Close()
	c.replies.Close()
	c.data.Reset()
}
