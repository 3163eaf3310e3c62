package audiograph

// Defaults is the static topology a graph is seeded with: the ports and
// routes that exist at startup, the pinned configs of attached device
// ports, and the profiles to install on pluggable device ports when a
// device is connected.
type Defaults struct {
	Ports             []Port
	InitialConfigs    []PortConfig
	Routes            []Route
	Microphones       []MicrophoneInfo
	ConnectedProfiles map[int32][]Profile
	NextID            int32
	NextPatchID       int32
}

// Well-known port ids of the primary topology.
const (
	PortIDSpeaker           int32 = 1
	PortIDBuiltInMic        int32 = 2
	PortIDUSBOutTemplate    int32 = 3
	PortIDUSBInTemplate     int32 = 4
	PortIDPrimaryOutput     int32 = 5
	PortIDPrimaryInput      int32 = 6
	PortIDCompressedOffload int32 = 7
)

var standardSampleRates = []int{8000, 16000, 32000, 44100, 48000}

func standardPCMProfiles() []Profile {
	return []Profile{
		{
			Format:       FormatPCM16,
			ChannelMasks: []ChannelMask{ChannelMaskMono, ChannelMaskStereo},
			SampleRates:  append([]int(nil), standardSampleRates...),
		},
		{
			Format:       FormatFloat32,
			ChannelMasks: []ChannelMask{ChannelMaskMono, ChannelMaskStereo},
			SampleRates:  append([]int(nil), standardSampleRates...),
		},
	}
}

// Primary returns the default topology: an attached speaker and built-in
// microphone, USB device port templates for runtime connection, a primary
// output and input mix port, and a compressed offload port routed
// exclusively to the speaker.
func Primary() Defaults {
	outFlags := IOFlags{Direction: DirectionOutput}
	inFlags := IOFlags{Direction: DirectionInput}

	speaker := Port{
		ID:       PortIDSpeaker,
		Name:     "Speaker",
		Flags:    outFlags,
		Profiles: standardPCMProfiles(),
		Kind:     PortKindDevice,
		Device:   &DeviceExt{Device: Device{Type: DeviceSpeaker}},
	}
	builtinMic := Port{
		ID:       PortIDBuiltInMic,
		Name:     "Built-In Mic",
		Flags:    inFlags,
		Profiles: standardPCMProfiles(),
		Kind:     PortKindDevice,
		Device:   &DeviceExt{Device: Device{Type: DeviceMicrophone}},
	}
	// USB templates carry no profiles until a device is connected.
	usbOut := Port{
		ID:     PortIDUSBOutTemplate,
		Name:   "USB Out",
		Flags:  outFlags,
		Kind:   PortKindDevice,
		Device: &DeviceExt{Device: Device{Type: DeviceOutDevice, Connection: "usb"}},
	}
	usbIn := Port{
		ID:     PortIDUSBInTemplate,
		Name:   "USB In",
		Flags:  inFlags,
		Kind:   PortKindDevice,
		Device: &DeviceExt{Device: Device{Type: DeviceInDevice, Connection: "usb"}},
	}
	primaryOut := Port{
		ID:       PortIDPrimaryOutput,
		Name:     "primary output",
		Flags:    outFlags,
		Profiles: standardPCMProfiles(),
		Kind:     PortKindMix,
		Mix:      &MixExt{MaxOpenStreamCount: 1},
	}
	primaryIn := Port{
		ID:       PortIDPrimaryInput,
		Name:     "primary input",
		Flags:    inFlags,
		Profiles: standardPCMProfiles(),
		Kind:     PortKindMix,
		Mix:      &MixExt{MaxOpenStreamCount: 2},
	}
	offload := Port{
		ID:    PortIDCompressedOffload,
		Name:  "compressed offload",
		Flags: IOFlags{Direction: DirectionOutput, Offload: true, NonBlocking: true},
		Profiles: []Profile{
			{
				Format:       FormatMP3,
				ChannelMasks: []ChannelMask{ChannelMaskMono, ChannelMaskStereo},
				SampleRates:  []int{44100, 48000},
			},
		},
		Kind: PortKindMix,
		Mix:  &MixExt{MaxOpenStreamCount: 1},
	}

	// Attached device ports keep a pinned config so that streams can be
	// routed before any client touches them.
	speakerConfig := PortConfig{
		ID:          8,
		PortID:      PortIDSpeaker,
		Format:      FormatPCM16,
		ChannelMask: ChannelMaskStereo,
		SampleRate:  48000,
		Flags:       outFlags,
	}
	micConfig := PortConfig{
		ID:          9,
		PortID:      PortIDBuiltInMic,
		Format:      FormatPCM16,
		ChannelMask: ChannelMaskMono,
		SampleRate:  48000,
		Flags:       inFlags,
	}

	return Defaults{
		Ports:          []Port{speaker, builtinMic, usbOut, usbIn, primaryOut, primaryIn, offload},
		InitialConfigs: []PortConfig{speakerConfig, micConfig},
		Routes: []Route{
			{SourcePortIDs: []int32{PortIDPrimaryOutput}, SinkPortID: PortIDSpeaker},
			{SourcePortIDs: []int32{PortIDCompressedOffload}, SinkPortID: PortIDSpeaker, IsExclusive: true},
			{SourcePortIDs: []int32{PortIDPrimaryOutput}, SinkPortID: PortIDUSBOutTemplate},
			{SourcePortIDs: []int32{PortIDBuiltInMic, PortIDUSBInTemplate}, SinkPortID: PortIDPrimaryInput},
		},
		Microphones: []MicrophoneInfo{
			{ID: "mic-bottom", Device: Device{Type: DeviceMicrophone}},
		},
		ConnectedProfiles: map[int32][]Profile{
			PortIDUSBOutTemplate: standardPCMProfiles(),
			PortIDUSBInTemplate:  standardPCMProfiles(),
		},
		NextID:      10,
		NextPatchID: 1,
	}
}
