// Package audiograph maintains the in-memory registry of audio ports, port
// configurations, patches and routes, together with the derived
// connectivity index used for reachability queries. The graph is mutated
// only from the control-plane context; it performs no internal locking.
package audiograph

import "slices"

// Direction tells whether a port produces or consumes audio relative to
// the service.
type Direction int

const (
	DirectionOutput Direction = iota
	DirectionInput
)

// String returns "input" or "output".
func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}
	return "output"
}

// IOFlags carries the direction and capability flags of a port or config.
type IOFlags struct {
	Direction   Direction `json:"direction"`
	Offload     bool      `json:"offload,omitempty"`
	NonBlocking bool      `json:"nonBlocking,omitempty"`
}

// DeviceType is a coarse classification of physical endpoints.
type DeviceType string

const (
	DeviceSpeaker    DeviceType = "speaker"
	DeviceMicrophone DeviceType = "microphone"
	DeviceOutDevice  DeviceType = "out-device"
	DeviceInDevice   DeviceType = "in-device"
)

// Device describes a physical audio endpoint. Connection is empty for
// permanently attached devices and names the transport (e.g. "usb") for
// pluggable ones. Two devices are the same endpoint iff all three fields
// match.
type Device struct {
	Type       DeviceType `json:"type"`
	Connection string     `json:"connection,omitempty"`
	Address    string     `json:"address,omitempty"`
}

// Equal reports whether two device descriptors denote the same endpoint.
func (d Device) Equal(other Device) bool {
	return d == other
}

// Profile declares one supported format with its channel masks and sample
// rates.
type Profile struct {
	Format       Format        `json:"format"`
	ChannelMasks []ChannelMask `json:"channelMasks"`
	SampleRates  []int         `json:"sampleRates"`
}

// PortKind discriminates the port extension union.
type PortKind int

const (
	PortKindDevice PortKind = iota
	PortKindMix
)

// String returns "device" or "mix".
func (k PortKind) String() string {
	if k == PortKindMix {
		return "mix"
	}
	return "device"
}

// DeviceExt is the device-kind port extension.
type DeviceExt struct {
	Device Device `json:"device"`
}

// MixExt is the mix-kind port extension.
type MixExt struct {
	// MaxOpenStreamCount limits concurrently open streams on the port;
	// 0 means unlimited.
	MaxOpenStreamCount int `json:"maxOpenStreamCount"`
}

// Port is an audio endpoint. Exactly one of DeviceExt/MixExt is set,
// according to Kind. Port id 0 is reserved and never assigned.
type Port struct {
	ID       int32      `json:"id"`
	Name     string     `json:"name"`
	Flags    IOFlags    `json:"flags"`
	Profiles []Profile  `json:"profiles"`
	Kind     PortKind   `json:"kind"`
	Device   *DeviceExt `json:"device,omitempty"`
	Mix      *MixExt    `json:"mix,omitempty"`
}

// Clone returns a deep copy of the port.
func (p Port) Clone() Port {
	clone := p
	clone.Profiles = make([]Profile, len(p.Profiles))
	for i, prof := range p.Profiles {
		clone.Profiles[i] = Profile{
			Format:       prof.Format,
			ChannelMasks: slices.Clone(prof.ChannelMasks),
			SampleRates:  slices.Clone(prof.SampleRates),
		}
	}
	if p.Device != nil {
		ext := *p.Device
		clone.Device = &ext
	}
	if p.Mix != nil {
		ext := *p.Mix
		clone.Mix = &ext
	}
	return clone
}

// FindProfile returns the port profile declaring the given format.
func (p Port) FindProfile(format Format) (Profile, bool) {
	for _, prof := range p.Profiles {
		if prof.Format == format {
			return prof, true
		}
	}
	return Profile{}, false
}

// GainConfig is the gain applied by a port config, in millibels per
// channel.
type GainConfig struct {
	ValuesMb []int `json:"valuesMb,omitempty"`
}

// PortConfig is a concrete binding of one port to a format, channel mask,
// sample rate and gain. Its id is distinct from the port id.
type PortConfig struct {
	ID          int32       `json:"id"`
	PortID      int32       `json:"portId"`
	Format      Format      `json:"format"`
	ChannelMask ChannelMask `json:"channelMask"`
	SampleRate  int         `json:"sampleRate"`
	Gain        GainConfig  `json:"gain"`
	Flags       IOFlags     `json:"flags"`
}

// Equal compares all fields of two configs.
func (c PortConfig) Equal(other PortConfig) bool {
	return c.ID == other.ID && c.PortID == other.PortID &&
		c.Format == other.Format && c.ChannelMask == other.ChannelMask &&
		c.SampleRate == other.SampleRate && c.Flags == other.Flags &&
		slices.Equal(c.Gain.ValuesMb, other.Gain.ValuesMb)
}

// FrameSize returns the config's frame size in bytes.
func (c PortConfig) FrameSize() int {
	return FrameSize(c.Format, c.ChannelMask)
}

// PortConfigRequest is a possibly partial config specification. Nil fields
// mean "fill in from the port's defaults". ID 0 requests a new config.
type PortConfigRequest struct {
	ID          int32        `json:"id"`
	PortID      int32        `json:"portId"`
	Format      *Format      `json:"format,omitempty"`
	ChannelMask *ChannelMask `json:"channelMask,omitempty"`
	SampleRate  *int         `json:"sampleRate,omitempty"`
	Gain        *GainConfig  `json:"gain,omitempty"`
	Flags       *IOFlags     `json:"flags,omitempty"`
}

// Patch is an active many-source to many-sink connection between port
// configs. MinBufferSizeFrames and LatenciesMs are filled in by the graph
// on creation.
type Patch struct {
	ID                  int32   `json:"id"`
	SourcePortConfigIDs []int32 `json:"sourcePortConfigIds"`
	SinkPortConfigIDs   []int32 `json:"sinkPortConfigIds"`
	MinBufferSizeFrames int     `json:"minBufferSizeFrames"`
	LatenciesMs         []int   `json:"latenciesMs"`
}

// Clone returns a deep copy of the patch.
func (p Patch) Clone() Patch {
	clone := p
	clone.SourcePortConfigIDs = slices.Clone(p.SourcePortConfigIDs)
	clone.SinkPortConfigIDs = slices.Clone(p.SinkPortConfigIDs)
	clone.LatenciesMs = slices.Clone(p.LatenciesMs)
	return clone
}

// Route is a static allowance for patching the source ports to the sink
// port. An exclusive route forbids a second concurrent patch on its sink.
type Route struct {
	SourcePortIDs []int32 `json:"sourcePortIds"`
	SinkPortID    int32   `json:"sinkPortId"`
	IsExclusive   bool    `json:"isExclusive,omitempty"`
}

// MicrophoneInfo describes a built-in microphone for active-mic reporting.
type MicrophoneInfo struct {
	ID     string `json:"id"`
	Device Device `json:"device"`
}
