package audiograph

// Format identifies the sample encoding of a stream or profile.
type Format int

const (
	FormatUnspecified Format = iota
	FormatPCM16
	FormatPCM24
	FormatPCM32
	FormatFloat32
	// FormatMP3 is a compressed bitstream format used by the offload port.
	FormatMP3
)

// String returns the canonical name of the format.
func (f Format) String() string {
	switch f {
	case FormatPCM16:
		return "pcm16"
	case FormatPCM24:
		return "pcm24"
	case FormatPCM32:
		return "pcm32"
	case FormatFloat32:
		return "float32"
	case FormatMP3:
		return "mp3"
	default:
		return "unspecified"
	}
}

// BytesPerSample returns the storage size of one sample, or 0 when the
// format has no fixed sample size.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatPCM16:
		return 2
	case FormatPCM24:
		return 3
	case FormatPCM32, FormatFloat32:
		return 4
	case FormatMP3:
		// Compressed bitstreams are byte-addressed.
		return 1
	default:
		return 0
	}
}

// ChannelMask identifies the channel layout.
type ChannelMask int

const (
	ChannelMaskUnspecified ChannelMask = iota
	ChannelMaskMono
	ChannelMaskStereo
	ChannelMaskFrontBack
	ChannelMask5Point1
)

// String returns the canonical name of the mask.
func (c ChannelMask) String() string {
	switch c {
	case ChannelMaskMono:
		return "mono"
	case ChannelMaskStereo:
		return "stereo"
	case ChannelMaskFrontBack:
		return "front-back"
	case ChannelMask5Point1:
		return "5.1"
	default:
		return "unspecified"
	}
}

// Count returns the number of channels in the mask.
func (c ChannelMask) Count() int {
	switch c {
	case ChannelMaskMono:
		return 1
	case ChannelMaskStereo, ChannelMaskFrontBack:
		return 2
	case ChannelMask5Point1:
		return 6
	default:
		return 0
	}
}

// FrameSize returns the size of one frame in bytes, or 0 when the
// format/mask combination is unsupported.
func FrameSize(format Format, mask ChannelMask) int {
	return format.BytesPerSample() * mask.Count()
}
