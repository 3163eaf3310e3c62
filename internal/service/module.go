// Package service implements the control plane of the audio module: it
// owns the configuration graph and the open streams, orchestrates patch
// changes into per-stream connectivity updates, and carries the
// module-wide playback and capture state.
package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/conf"
	"github.com/audiosvc/audiod/internal/errors"
	"github.com/audiosvc/audiod/internal/logging"
	"github.com/audiosvc/audiod/internal/observability"
	"github.com/audiosvc/audiod/internal/stream"
)

// DebugState mirrors conf.DebugSettings but can be changed at runtime.
type DebugState struct {
	SimulateDeviceConnections bool `json:"simulateDeviceConnections"`
	TransientStateDelayMs     int  `json:"transientStateDelayMs"`
	ForceTransientBurst       bool `json:"forceTransientBurst"`
	ForceSynchronousDrain     bool `json:"forceSynchronousDrain"`
}

// OpenStreamRequest names the port config to open a stream on and the
// client's requested buffer size.
type OpenStreamRequest struct {
	PortConfigID     int32
	BufferSizeFrames int
	// Callback is required for non-blocking output streams and must be
	// nil otherwise.
	Callback stream.Callback
	// Driver overrides the default stub driver when non-nil.
	Driver stream.Driver
}

// Module is the top-level control-plane object. All operations serialize
// on one mutex; only stream workers run concurrently with it.
type Module struct {
	mu      sync.Mutex
	cfg     *conf.Settings
	graph   *audiograph.Graph
	streams *stream.Registry
	metrics *observability.Metrics
	logger  *slog.Logger

	debug        DebugState
	masterMute   bool
	masterVolume float64
	micMute      bool
}

// NewModule builds a module around the given graph defaults.
func NewModule(cfg *conf.Settings, defaults audiograph.Defaults,
	metrics *observability.Metrics) *Module {
	graph := audiograph.New(audiograph.Config{
		MinBufferFrames: cfg.Audio.MinBufferFrames,
		LatencyMs:       cfg.Audio.LatencyMs,
	}, defaults)
	return &Module{
		cfg:     cfg,
		graph:   graph,
		streams: stream.NewRegistry(),
		metrics: metrics,
		logger:  logging.ForService("service"),
		debug: DebugState{
			SimulateDeviceConnections: cfg.Debug.SimulateDeviceConnections,
			TransientStateDelayMs:     cfg.Debug.TransientStateDelayMs,
			ForceTransientBurst:       cfg.Debug.ForceTransientBurst,
			ForceSynchronousDrain:     cfg.Debug.ForceSynchronousDrain,
		},
		masterVolume: 1.0,
	}
}

// Ports returns all ports.
func (m *Module) Ports() []audiograph.Port {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Ports()
}

// Port returns one port by id.
func (m *Module) Port(id int32) (audiograph.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Port(id)
}

// PortConfigs returns all port configs.
func (m *Module) PortConfigs() []audiograph.PortConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.PortConfigs()
}

// Patches returns all patches.
func (m *Module) Patches() []audiograph.Patch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Patches()
}

// Routes returns all routes.
func (m *Module) Routes() []audiograph.Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Routes()
}

// RoutesForPort returns the routes listing the port as a source.
func (m *Module) RoutesForPort(portID int32) ([]audiograph.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.RoutesForPort(portID)
}

// Microphones returns the microphone inventory.
func (m *Module) Microphones() []audiograph.MicrophoneInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Microphones()
}

// ApplyPortConfig resolves a config request against the graph.
func (m *Module) ApplyPortConfig(req audiograph.PortConfigRequest) (audiograph.PortConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, applied, err := m.graph.ApplyPortConfig(req)
	if m.metrics != nil {
		m.metrics.Graph.RecordConfigOperation("apply", err)
	}
	return cfg, applied, err
}

// ResetPortConfig releases a config that is not pinned by a patch or an
// open stream.
func (m *Module) ResetPortConfig(id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streams.Has(id) {
		return errors.New(ErrConfigOwnedByStream).Context("port_config_id", id).Build()
	}
	err := m.graph.ResetPortConfig(id)
	if m.metrics != nil {
		m.metrics.Graph.RecordConfigOperation("reset", err)
	}
	return err
}

// OpenInputStream opens a capture stream on the given mix port config.
func (m *Module) OpenInputStream(req OpenStreamRequest) (*stream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.Callback != nil {
		return nil, errors.New(ErrCallbackRequired).
			Context("reason", "input streams do not use completion callbacks").Build()
	}
	return m.openStream(req, audiograph.DirectionInput)
}

// OpenOutputStream opens a playback stream on the given mix port config.
func (m *Module) OpenOutputStream(req OpenStreamRequest) (*stream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openStream(req, audiograph.DirectionOutput)
}

func (m *Module) openStream(req OpenStreamRequest, direction audiograph.Direction) (*stream.Stream, error) {
	portCfg, err := m.graph.PortConfig(req.PortConfigID)
	if err != nil {
		return nil, err
	}
	port, err := m.graph.Port(portCfg.PortID)
	if err != nil {
		return nil, err
	}
	if port.Kind != audiograph.PortKindMix {
		return nil, errors.New(ErrNotMixPort).Context("port_id", port.ID).Build()
	}
	if port.Flags.Direction != direction {
		return nil, errors.New(ErrDirectionMismatch).
			Context("port_id", port.ID).
			Context("port_direction", port.Flags.Direction.String()).
			Context("requested", direction.String()).Build()
	}
	if m.streams.Has(req.PortConfigID) {
		return nil, errors.New(ErrStreamAlreadyOpen).
			Context("port_config_id", req.PortConfigID).Build()
	}
	if maxCount := port.Mix.MaxOpenStreamCount; maxCount > 0 &&
		m.streams.CountForPort(port.ID) >= maxCount {
		return nil, errors.New(ErrTooManyStreams).
			Context("port_id", port.ID).
			Context("max_open_stream_count", maxCount).Build()
	}
	if direction == audiograph.DirectionOutput &&
		(port.Flags.NonBlocking || port.Flags.Offload) && req.Callback == nil {
		return nil, errors.New(ErrCallbackRequired).Context("port_id", port.ID).Build()
	}

	ctx, err := stream.NewContext(stream.ContextParams{
		Format:           portCfg.Format,
		ChannelMask:      portCfg.ChannelMask,
		SampleRate:       portCfg.SampleRate,
		Flags:            port.Flags,
		BufferSizeFrames: req.BufferSizeFrames,
		Callback:         req.Callback,
		MinBufferFrames:  m.cfg.Audio.MinBufferFrames,
		MaxBufferBytes:   m.cfg.Audio.MaxBufferBytes,
		Debug: stream.DebugParameters{
			TransientStateDelay:   time.Duration(m.debug.TransientStateDelayMs) * time.Millisecond,
			ForceTransientBurst:   m.debug.ForceTransientBurst,
			ForceSynchronousDrain: m.debug.ForceSynchronousDrain,
		},
	})
	if err != nil {
		return nil, err
	}

	params := stream.Params{
		PortID:       port.ID,
		PortConfigID: req.PortConfigID,
		Context:      ctx,
		Driver:       req.Driver,
		LatencyMs:    m.cfg.Audio.LatencyMs,
	}
	if m.metrics != nil {
		params.Metrics = m.metrics.Stream
	}
	var s *stream.Stream
	if direction == audiograph.DirectionInput {
		params.Microphones = m.graph.Microphones()
		s, err = stream.NewInput(params)
	} else {
		s, err = stream.NewOutput(params)
	}
	if err != nil {
		return nil, err
	}

	// A stream opened on an already patched config starts out connected.
	if m.graph.HasPatchReference(req.PortConfigID) {
		devices := m.graph.ConnectedDevices(req.PortConfigID)
		if err := s.SetConnectedDevices(devices); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	m.streams.Add(s)
	m.logger.Info("stream opened",
		"stream_id", s.ID().String(),
		"direction", direction.String(),
		"port_id", port.ID,
		"port_config_id", req.PortConfigID)
	return s, nil
}

// Stream returns the open stream bound to the given port config.
func (m *Module) Stream(portConfigID int32) (*stream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams.Get(portConfigID)
	if !ok {
		return nil, errors.New(ErrStreamNotOpen).
			Context("port_config_id", portConfigID).Build()
	}
	return s, nil
}

// Streams returns all open streams.
func (m *Module) Streams() []*stream.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams.All()
}

// CloseStream closes the stream bound to the given port config.
func (m *Module) CloseStream(portConfigID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams.Get(portConfigID)
	if !ok {
		return errors.New(ErrStreamNotOpen).
			Context("port_config_id", portConfigID).Build()
	}
	if err := s.Close(); err != nil {
		return err
	}
	m.streams.Remove(portConfigID)
	m.logger.Info("stream closed", "port_config_id", portConfigID)
	return nil
}

// SetPatch creates or updates a patch and pushes the resulting device
// connectivity to every affected open stream.
func (m *Module) SetPatch(req audiograph.Patch) (audiograph.Patch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	applied, previous, err := m.graph.SetPatch(req)
	if m.metrics != nil {
		m.metrics.Graph.RecordPatchOperation("set", err)
	}
	if err != nil {
		return audiograph.Patch{}, err
	}
	if err := m.updateStreamsConnectedState(previous, applied); err != nil {
		m.rollbackPatch(previous, applied)
		return audiograph.Patch{}, err
	}
	if m.metrics != nil {
		m.metrics.Graph.SetActivePatches(len(m.graph.Patches()))
	}
	return applied, nil
}

// ResetPatch tears down a patch and disconnects the streams it fed.
func (m *Module) ResetPatch(id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed, err := m.graph.ResetPatch(id)
	if m.metrics != nil {
		m.metrics.Graph.RecordPatchOperation("reset", err)
	}
	if err != nil {
		return err
	}
	if err := m.updateStreamsConnectedState(removed, audiograph.Patch{}); err != nil {
		m.logger.Error("updating streams after patch reset failed",
			"patch_id", id, "error", err)
	}
	if m.metrics != nil {
		m.metrics.Graph.SetActivePatches(len(m.graph.Patches()))
	}
	return nil
}

// updateStreamsConnectedState recomputes device connectivity for the
// streams leaving or entering a patch. Configs present in both patch
// versions keep their connectivity untouched.
func (m *Module) updateStreamsConnectedState(oldPatch, newPatch audiograph.Patch) error {
	oldIDs := patchConfigIDs(oldPatch)
	newIDs := patchConfigIDs(newPatch)
	for id := range oldIDs {
		if _, stays := newIDs[id]; stays {
			continue
		}
		if err := m.pushConnectivity(id); err != nil {
			return err
		}
	}
	for id := range newIDs {
		if _, stayed := oldIDs[id]; stayed {
			continue
		}
		if err := m.pushConnectivity(id); err != nil {
			return err
		}
	}
	return nil
}

func patchConfigIDs(p audiograph.Patch) map[int32]struct{} {
	ids := make(map[int32]struct{}, len(p.SourcePortConfigIDs)+len(p.SinkPortConfigIDs))
	for _, id := range p.SourcePortConfigIDs {
		ids[id] = struct{}{}
	}
	for _, id := range p.SinkPortConfigIDs {
		ids[id] = struct{}{}
	}
	return ids
}

func (m *Module) pushConnectivity(portConfigID int32) error {
	s, ok := m.streams.Get(portConfigID)
	if !ok {
		return nil
	}
	return s.SetConnectedDevices(m.graph.ConnectedDevices(portConfigID))
}

// rollbackPatch restores the graph after a failed connectivity push.
func (m *Module) rollbackPatch(previous, applied audiograph.Patch) {
	if previous.ID == 0 {
		if _, err := m.graph.ResetPatch(applied.ID); err != nil {
			m.logger.Error("patch rollback failed", "patch_id", applied.ID, "error", err)
		}
		return
	}
	if _, _, err := m.graph.SetPatch(previous); err != nil {
		m.logger.Error("patch rollback failed", "patch_id", previous.ID, "error", err)
	}
}

// ConnectExternalDevice instantiates a pluggable device port. Only
// available while connection simulation is enabled.
func (m *Module) ConnectExternalDevice(templatePortID int32, device audiograph.Device) (audiograph.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.debug.SimulateDeviceConnections {
		return audiograph.Port{}, errors.New(ErrSimulationDisabled).
			Context("port_id", templatePortID).Build()
	}
	port, err := m.graph.ConnectExternalDevice(templatePortID, device)
	if err != nil {
		return audiograph.Port{}, err
	}
	m.updateDeviceMetrics()
	return port, nil
}

// DisconnectExternalDevice removes a connected device port.
func (m *Module) DisconnectExternalDevice(portID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.debug.SimulateDeviceConnections {
		return errors.New(ErrSimulationDisabled).Context("port_id", portID).Build()
	}
	if err := m.graph.DisconnectExternalDevice(portID); err != nil {
		return err
	}
	m.updateDeviceMetrics()
	return nil
}

func (m *Module) updateDeviceMetrics() {
	if m.metrics == nil {
		return
	}
	count := 0
	for _, p := range m.graph.Ports() {
		if m.graph.IsExternalDevicePort(p.ID) {
			count++
		}
	}
	m.metrics.Graph.SetConnectedDevices(count)
}

// Debug returns the current debug state.
func (m *Module) Debug() DebugState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debug
}

// SetDebug updates the debug state. Turning device simulation off is
// rejected while simulated device ports are still connected; existing
// streams keep the parameters they were opened with.
func (m *Module) SetDebug(d DebugState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.TransientStateDelayMs < 0 {
		return errors.New(ErrInvalidDebug).
			Context("transient_state_delay_ms", d.TransientStateDelayMs).Build()
	}
	if d.SimulateDeviceConnections != m.debug.SimulateDeviceConnections {
		for _, p := range m.graph.Ports() {
			if m.graph.IsExternalDevicePort(p.ID) {
				return errors.New(ErrDebugLocked).
					Context("reason", "external device ports are connected").Build()
			}
		}
	}
	m.debug = d
	m.logger.Info("debug state updated",
		"simulate_device_connections", d.SimulateDeviceConnections,
		"transient_state_delay_ms", d.TransientStateDelayMs)
	return nil
}

// MasterMute returns the module-wide playback mute.
func (m *Module) MasterMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masterMute
}

// SetMasterMute sets the module-wide playback mute.
func (m *Module) SetMasterMute(mute bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterMute = mute
}

// MasterVolume returns the module-wide playback volume.
func (m *Module) MasterVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masterVolume
}

// SetMasterVolume sets the module-wide playback volume, scaled 0 to 1.
func (m *Module) SetMasterVolume(volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if volume < 0 || volume > 1 {
		return errors.New(ErrInvalidVolume).Context("volume", volume).Build()
	}
	m.masterVolume = volume
	return nil
}

// MicMute returns the module-wide capture mute.
func (m *Module) MicMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micMute
}

// SetMicMute sets the module-wide capture mute.
func (m *Module) SetMicMute(mute bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.micMute = mute
}

// Shutdown closes every open stream.
func (m *Module) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams.All() {
		if err := s.Close(); err != nil {
			m.logger.Error("closing stream on shutdown failed",
				"stream_id", s.ID().String(), "error", err)
		}
		m.streams.Remove(s.PortConfigID())
	}
	m.logger.Info("module shut down")
}
