package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/conf"
	"github.com/audiosvc/audiod/internal/stream"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	// Cleanups run LIFO: the leak check is registered first so it runs
	// after Shutdown has stopped every stream worker.
	t.Cleanup(func() { goleak.VerifyNone(t) })
	cfg := conf.Default()
	cfg.Audio.MinBufferFrames = 16
	cfg.Debug.SimulateDeviceConnections = true
	m := NewModule(cfg, audiograph.Primary(), nil)
	t.Cleanup(m.Shutdown)
	return m
}

func ptr[T any](v T) *T { return &v }

// applyFullConfig creates a fully specified config on the port from its
// first profile.
func applyFullConfig(t *testing.T, m *Module, portID int32) audiograph.PortConfig {
	t.Helper()
	port, err := m.Port(portID)
	require.NoError(t, err)
	require.NotEmpty(t, port.Profiles)
	prof := port.Profiles[0]
	cfg, applied, err := m.ApplyPortConfig(audiograph.PortConfigRequest{
		PortID:      portID,
		Format:      ptr(prof.Format),
		ChannelMask: ptr(prof.ChannelMasks[0]),
		SampleRate:  ptr(prof.SampleRates[0]),
		Flags:       ptr(port.Flags),
	})
	require.NoError(t, err)
	require.True(t, applied)
	return cfg
}

type noopCallback struct{}

func (noopCallback) OnTransferReady() {}
func (noopCallback) OnDrainReady()    {}
func (noopCallback) OnError()         {}

// countingDriver counts connectivity pushes reaching the driver.
type countingDriver struct {
	mu           sync.Mutex
	devicePushes int
}

func (d *countingDriver) Init() error                  { return nil }
func (d *countingDriver) Drain(stream.DrainMode) error { return nil }
func (d *countingDriver) Flush() error                 { return nil }
func (d *countingDriver) Pause() error                 { return nil }
func (d *countingDriver) Standby() error               { return nil }

func (d *countingDriver) Transfer(buf []byte, frameCount int) (int, int, error) {
	return frameCount, 10, nil
}

func (d *countingDriver) SetConnectedDevices([]audiograph.Device) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devicePushes++
	return nil
}

func (d *countingDriver) pushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devicePushes
}

func TestOpenStreamValidation(t *testing.T) {
	t.Run("unknown port config", func(t *testing.T) {
		m := newTestModule(t)
		_, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: 999, BufferSizeFrames: 64})
		assert.ErrorIs(t, err, audiograph.ErrPortConfigNotFound)
	})

	t.Run("device port config", func(t *testing.T) {
		m := newTestModule(t)
		// Config id 8 is the speaker's pinned config.
		_, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: 8, BufferSizeFrames: 64})
		assert.ErrorIs(t, err, ErrNotMixPort)
	})

	t.Run("direction mismatch", func(t *testing.T) {
		m := newTestModule(t)
		cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
		_, err := m.OpenInputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
		assert.ErrorIs(t, err, ErrDirectionMismatch)
	})

	t.Run("duplicate open on one config", func(t *testing.T) {
		m := newTestModule(t)
		cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
		_, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
		require.NoError(t, err)
		_, err = m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
		assert.ErrorIs(t, err, ErrStreamAlreadyOpen)
	})

	t.Run("open stream limit", func(t *testing.T) {
		m := newTestModule(t)
		// The primary output port allows a single open stream.
		cfg1 := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
		_, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg1.ID, BufferSizeFrames: 64})
		require.NoError(t, err)

		port, err := m.Port(audiograph.PortIDPrimaryOutput)
		require.NoError(t, err)
		prof := port.Profiles[0]
		cfg2, applied, err := m.ApplyPortConfig(audiograph.PortConfigRequest{
			PortID:      port.ID,
			Format:      ptr(prof.Format),
			ChannelMask: ptr(prof.ChannelMasks[0]),
			SampleRate:  ptr(prof.SampleRates[1]),
			Flags:       ptr(port.Flags),
		})
		require.NoError(t, err)
		require.True(t, applied)
		_, err = m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg2.ID, BufferSizeFrames: 64})
		assert.ErrorIs(t, err, ErrTooManyStreams)
	})

	t.Run("offload requires callback", func(t *testing.T) {
		m := newTestModule(t)
		cfg := applyFullConfig(t, m, audiograph.PortIDCompressedOffload)
		_, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
		assert.ErrorIs(t, err, ErrCallbackRequired)

		s, err := m.OpenOutputStream(OpenStreamRequest{
			PortConfigID: cfg.ID, BufferSizeFrames: 64, Callback: noopCallback{}})
		require.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("input rejects callback", func(t *testing.T) {
		m := newTestModule(t)
		cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryInput)
		_, err := m.OpenInputStream(OpenStreamRequest{
			PortConfigID: cfg.ID, BufferSizeFrames: 64, Callback: noopCallback{}})
		assert.ErrorIs(t, err, ErrCallbackRequired)
	})

	t.Run("buffer below minimum", func(t *testing.T) {
		m := newTestModule(t)
		cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
		_, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 4})
		assert.ErrorIs(t, err, stream.ErrBufferTooSmall)
	})
}

func TestPatchConnectivityPropagation(t *testing.T) {
	m := newTestModule(t)

	cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
	s, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
	require.NoError(t, err)
	assert.Empty(t, s.ConnectedDevices())

	patch, err := m.SetPatch(audiograph.Patch{
		SourcePortConfigIDs: []int32{cfg.ID},
		SinkPortConfigIDs:   []int32{8},
	})
	require.NoError(t, err)
	assert.Equal(t, []audiograph.Device{{Type: audiograph.DeviceSpeaker}},
		s.ConnectedDevices())

	require.NoError(t, m.ResetPatch(patch.ID))
	assert.Empty(t, s.ConnectedDevices())
}

func TestPatchUpdateSkipsUnchangedStreams(t *testing.T) {
	m := newTestModule(t)

	cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
	driver := &countingDriver{}
	s, err := m.OpenOutputStream(OpenStreamRequest{
		PortConfigID: cfg.ID, BufferSizeFrames: 64, Driver: driver})
	require.NoError(t, err)

	patch, err := m.SetPatch(audiograph.Patch{
		SourcePortConfigIDs: []int32{cfg.ID},
		SinkPortConfigIDs:   []int32{8},
	})
	require.NoError(t, err)
	connected := driver.pushes()
	require.Greater(t, connected, 0)

	// Re-issuing the patch with the same endpoints leaves the stream
	// alone: no redundant push reaches the driver.
	_, err = m.SetPatch(audiograph.Patch{
		ID:                  patch.ID,
		SourcePortConfigIDs: []int32{cfg.ID},
		SinkPortConfigIDs:   []int32{8},
	})
	require.NoError(t, err)
	assert.Equal(t, connected, driver.pushes())
	assert.Equal(t, []audiograph.Device{{Type: audiograph.DeviceSpeaker}},
		s.ConnectedDevices())

	// Tearing the patch down pushes the disconnect.
	require.NoError(t, m.ResetPatch(patch.ID))
	assert.Equal(t, connected+1, driver.pushes())
	assert.Empty(t, s.ConnectedDevices())
}

func TestOpenOnPatchedConfigStartsConnected(t *testing.T) {
	m := newTestModule(t)

	cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
	_, err := m.SetPatch(audiograph.Patch{
		SourcePortConfigIDs: []int32{cfg.ID},
		SinkPortConfigIDs:   []int32{8},
	})
	require.NoError(t, err)

	s, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
	require.NoError(t, err)
	assert.Equal(t, []audiograph.Device{{Type: audiograph.DeviceSpeaker}},
		s.ConnectedDevices())
}

func TestCloseStream(t *testing.T) {
	m := newTestModule(t)

	cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
	_, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
	require.NoError(t, err)

	require.NoError(t, m.CloseStream(cfg.ID))
	assert.ErrorIs(t, m.CloseStream(cfg.ID), ErrStreamNotOpen)

	// The config is free for a new stream again.
	_, err = m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
	assert.NoError(t, err)
}

func TestResetPortConfigOwnedByStream(t *testing.T) {
	m := newTestModule(t)

	cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
	_, err := m.OpenOutputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
	require.NoError(t, err)

	assert.ErrorIs(t, m.ResetPortConfig(cfg.ID), ErrConfigOwnedByStream)
	require.NoError(t, m.CloseStream(cfg.ID))
	assert.NoError(t, m.ResetPortConfig(cfg.ID))
}

func TestExternalDeviceSimulationGate(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := conf.Default()
		m := NewModule(cfg, audiograph.Primary(), nil)
		t.Cleanup(m.Shutdown)
		_, err := m.ConnectExternalDevice(audiograph.PortIDUSBOutTemplate,
			audiograph.Device{Type: audiograph.DeviceOutDevice, Connection: "usb", Address: "card=1"})
		assert.ErrorIs(t, err, ErrSimulationDisabled)
		assert.ErrorIs(t, m.DisconnectExternalDevice(999), ErrSimulationDisabled)
	})

	t.Run("enabled", func(t *testing.T) {
		m := newTestModule(t)
		port, err := m.ConnectExternalDevice(audiograph.PortIDUSBOutTemplate,
			audiograph.Device{Type: audiograph.DeviceOutDevice, Connection: "usb", Address: "card=1"})
		require.NoError(t, err)
		require.NoError(t, m.DisconnectExternalDevice(port.ID))
	})
}

func TestSetDebug(t *testing.T) {
	m := newTestModule(t)

	t.Run("negative dwell rejected", func(t *testing.T) {
		err := m.SetDebug(DebugState{TransientStateDelayMs: -1})
		assert.ErrorIs(t, err, ErrInvalidDebug)
	})

	t.Run("simulation toggle locked while devices connected", func(t *testing.T) {
		port, err := m.ConnectExternalDevice(audiograph.PortIDUSBOutTemplate,
			audiograph.Device{Type: audiograph.DeviceOutDevice, Connection: "usb", Address: "card=1"})
		require.NoError(t, err)

		err = m.SetDebug(DebugState{SimulateDeviceConnections: false})
		assert.ErrorIs(t, err, ErrDebugLocked)

		require.NoError(t, m.DisconnectExternalDevice(port.ID))
		assert.NoError(t, m.SetDebug(DebugState{SimulateDeviceConnections: false}))
	})
}

func TestMasterControls(t *testing.T) {
	m := newTestModule(t)

	assert.False(t, m.MasterMute())
	m.SetMasterMute(true)
	assert.True(t, m.MasterMute())

	assert.Equal(t, 1.0, m.MasterVolume())
	assert.ErrorIs(t, m.SetMasterVolume(1.5), ErrInvalidVolume)
	assert.ErrorIs(t, m.SetMasterVolume(-0.1), ErrInvalidVolume)
	require.NoError(t, m.SetMasterVolume(0.5))
	assert.Equal(t, 0.5, m.MasterVolume())

	assert.False(t, m.MicMute())
	m.SetMicMute(true)
	assert.True(t, m.MicMute())
}

func TestActiveMicrophonesThroughPatch(t *testing.T) {
	m := newTestModule(t)

	cfg := applyFullConfig(t, m, audiograph.PortIDPrimaryInput)
	s, err := m.OpenInputStream(OpenStreamRequest{PortConfigID: cfg.ID, BufferSizeFrames: 64})
	require.NoError(t, err)
	assert.Empty(t, s.ActiveMicrophones())

	// Patch the built-in mic (pinned config 9) into the stream.
	patch, err := m.SetPatch(audiograph.Patch{
		SourcePortConfigIDs: []int32{9},
		SinkPortConfigIDs:   []int32{cfg.ID},
	})
	require.NoError(t, err)

	mics := s.ActiveMicrophones()
	require.Len(t, mics, 1)
	assert.Equal(t, "mic-bottom", mics[0].ID)

	require.NoError(t, m.ResetPatch(patch.ID))
	assert.Empty(t, s.ActiveMicrophones())
}

func TestDisconnectBlockedByOpenStreamPath(t *testing.T) {
	m := newTestModule(t)

	port, err := m.ConnectExternalDevice(audiograph.PortIDUSBOutTemplate,
		audiograph.Device{Type: audiograph.DeviceOutDevice, Connection: "usb", Address: "card=1"})
	require.NoError(t, err)

	devCfg := applyFullConfig(t, m, port.ID)
	mixCfg := applyFullConfig(t, m, audiograph.PortIDPrimaryOutput)
	patch, err := m.SetPatch(audiograph.Patch{
		SourcePortConfigIDs: []int32{mixCfg.ID},
		SinkPortConfigIDs:   []int32{devCfg.ID},
	})
	require.NoError(t, err)

	// Patched and configured: the disconnect must be refused.
	assert.ErrorIs(t, m.DisconnectExternalDevice(port.ID), audiograph.ErrDevicePortBusy)

	require.NoError(t, m.ResetPatch(patch.ID))
	assert.ErrorIs(t, m.DisconnectExternalDevice(port.ID), audiograph.ErrDevicePortBusy)

	require.NoError(t, m.ResetPortConfig(devCfg.ID))
	assert.NoError(t, m.DisconnectExternalDevice(port.ID))
}
