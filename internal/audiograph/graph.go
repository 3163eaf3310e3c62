package audiograph

import (
	"log/slog"
	"slices"

	"github.com/audiosvc/audiod/internal/errors"
	"github.com/audiosvc/audiod/internal/logging"
)

// Config carries the graph-level tunables applied to every created patch.
type Config struct {
	// MinBufferFrames is the floor reported in Patch.MinBufferSizeFrames.
	MinBufferFrames int
	// LatencyMs is the nominal latency reported per patch sink.
	LatencyMs int
}

// Graph holds the live port/config/patch/route state. It performs no
// locking; callers serialize mutations (see service.Module).
type Graph struct {
	cfg    Config
	logger *slog.Logger

	ports          []Port
	portConfigs    []PortConfig
	initialConfigs []PortConfig
	patches        []Patch
	routes         []Route
	microphones    []MicrophoneInfo

	// connectedProfiles maps a template port id to the profiles installed
	// on ports created from it at connect time.
	connectedProfiles map[int32][]Profile
	// connectedPorts tracks device ports created by ConnectExternalDevice.
	connectedPorts map[int32]struct{}

	// patchIndex maps port config ids AND their port ids to the set of
	// patch ids referencing them. Keying both lets exclusivity checks and
	// config-in-use checks share one structure.
	patchIndex map[int32]map[int32]struct{}

	// nextID issues ids for new ports and port configs from a single
	// sequence, so a config id never collides with a port id.
	nextID      int32
	nextPatchID int32
}

// New builds a graph from the given defaults.
func New(cfg Config, d Defaults) *Graph {
	g := &Graph{
		cfg:               cfg,
		logger:            logging.ForService("audiograph"),
		connectedProfiles: make(map[int32][]Profile),
		connectedPorts:    make(map[int32]struct{}),
		patchIndex:        make(map[int32]map[int32]struct{}),
		nextID:            d.NextID,
		nextPatchID:       d.NextPatchID,
	}
	for _, p := range d.Ports {
		g.ports = append(g.ports, p.Clone())
	}
	for _, c := range d.InitialConfigs {
		g.portConfigs = append(g.portConfigs, c)
		g.initialConfigs = append(g.initialConfigs, c)
	}
	g.routes = slices.Clone(d.Routes)
	g.microphones = slices.Clone(d.Microphones)
	for id, profiles := range d.ConnectedProfiles {
		g.connectedProfiles[id] = profiles
	}
	if g.nextPatchID == 0 {
		g.nextPatchID = 1
	}
	return g
}

// Ports returns a snapshot of all ports.
func (g *Graph) Ports() []Port {
	out := make([]Port, 0, len(g.ports))
	for _, p := range g.ports {
		out = append(out, p.Clone())
	}
	return out
}

// Port returns the port with the given id.
func (g *Graph) Port(id int32) (Port, error) {
	p := g.findPort(id)
	if p == nil {
		return Port{}, errors.New(ErrPortNotFound).Context("port_id", id).Build()
	}
	return p.Clone(), nil
}

// PortConfigs returns a snapshot of all port configs.
func (g *Graph) PortConfigs() []PortConfig {
	return slices.Clone(g.portConfigs)
}

// PortConfig returns the config with the given id.
func (g *Graph) PortConfig(id int32) (PortConfig, error) {
	c := g.findPortConfig(id)
	if c == nil {
		return PortConfig{}, errors.New(ErrPortConfigNotFound).Context("port_config_id", id).Build()
	}
	return *c, nil
}

// Patches returns a snapshot of all patches.
func (g *Graph) Patches() []Patch {
	out := make([]Patch, 0, len(g.patches))
	for _, p := range g.patches {
		out = append(out, p.Clone())
	}
	return out
}

// Patch returns the patch with the given id.
func (g *Graph) Patch(id int32) (Patch, error) {
	for i := range g.patches {
		if g.patches[i].ID == id {
			return g.patches[i].Clone(), nil
		}
	}
	return Patch{}, errors.New(ErrPatchNotFound).Context("patch_id", id).Build()
}

// Routes returns a snapshot of all routes.
func (g *Graph) Routes() []Route {
	out := make([]Route, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, Route{
			SourcePortIDs: slices.Clone(r.SourcePortIDs),
			SinkPortID:    r.SinkPortID,
			IsExclusive:   r.IsExclusive,
		})
	}
	return out
}

// RoutesForPort returns the routes that list the given port as a source.
func (g *Graph) RoutesForPort(portID int32) ([]Route, error) {
	if g.findPort(portID) == nil {
		return nil, errors.New(ErrPortNotFound).Context("port_id", portID).Build()
	}
	var out []Route
	for _, r := range g.routes {
		if slices.Contains(r.SourcePortIDs, portID) {
			out = append(out, Route{
				SourcePortIDs: slices.Clone(r.SourcePortIDs),
				SinkPortID:    r.SinkPortID,
				IsExclusive:   r.IsExclusive,
			})
		}
	}
	return out, nil
}

// Microphones returns the built-in microphone inventory.
func (g *Graph) Microphones() []MicrophoneInfo {
	return slices.Clone(g.microphones)
}

// ApplyPortConfig resolves a possibly partial config request against the
// target port. When every requested field is supported and the request is
// fully specified (or targets an existing config), the result is stored
// and applied=true. Otherwise a suggestion with the unsupported fields
// replaced by viable values is returned with applied=false and no error.
func (g *Graph) ApplyPortConfig(req PortConfigRequest) (PortConfig, bool, error) {
	var existing *PortConfig
	if req.ID != 0 {
		existing = g.findPortConfig(req.ID)
		if existing == nil {
			return PortConfig{}, false, errors.New(ErrPortConfigNotFound).
				Context("port_config_id", req.ID).Build()
		}
	}

	portID := req.PortID
	if existing != nil {
		portID = existing.PortID
	}
	if portID == 0 {
		return PortConfig{}, false, errors.New(ErrInvalidPortConfig).
			Context("reason", "no port id").Build()
	}
	port := g.findPort(portID)
	if port == nil {
		return PortConfig{}, false, errors.New(ErrPortNotFound).
			Context("port_id", portID).Build()
	}

	var suggested PortConfig
	if existing != nil {
		suggested = *existing
	} else {
		def, err := g.defaultPortConfig(port)
		if err != nil {
			return PortConfig{}, false, err
		}
		suggested = def
	}

	requestedIsValid := true
	requestedIsFullySpecified := true

	if req.Flags != nil {
		if *req.Flags == port.Flags {
			suggested.Flags = *req.Flags
		} else {
			g.logger.Warn("rejecting unsupported flags",
				"port_id", portID, "flags", *req.Flags)
			requestedIsValid = false
		}
	} else {
		requestedIsFullySpecified = false
	}

	if req.Format != nil {
		if _, ok := port.FindProfile(*req.Format); ok {
			suggested.Format = *req.Format
		} else {
			g.logger.Warn("rejecting unsupported format",
				"port_id", portID, "format", req.Format.String())
			requestedIsValid = false
		}
	} else {
		requestedIsFullySpecified = false
	}

	profile, ok := port.FindProfile(suggested.Format)
	if !ok {
		return PortConfig{}, false, errors.New(ErrInvalidPortConfig).
			Context("port_id", portID).
			Context("reason", "port no longer declares the config's format").Build()
	}

	if req.ChannelMask != nil {
		if slices.Contains(profile.ChannelMasks, *req.ChannelMask) {
			suggested.ChannelMask = *req.ChannelMask
		} else {
			g.logger.Warn("rejecting unsupported channel mask",
				"port_id", portID, "channel_mask", req.ChannelMask.String())
			requestedIsValid = false
		}
	} else {
		requestedIsFullySpecified = false
	}

	if req.SampleRate != nil {
		if slices.Contains(profile.SampleRates, *req.SampleRate) {
			suggested.SampleRate = *req.SampleRate
		} else {
			g.logger.Warn("rejecting unsupported sample rate",
				"port_id", portID, "sample_rate", *req.SampleRate)
			requestedIsValid = false
		}
	} else {
		requestedIsFullySpecified = false
	}

	if req.Gain != nil {
		suggested.Gain = GainConfig{ValuesMb: slices.Clone(req.Gain.ValuesMb)}
	}

	switch {
	case existing != nil && requestedIsValid:
		*existing = suggested
		return suggested, true, nil
	case existing == nil && requestedIsValid && requestedIsFullySpecified:
		suggested.ID = g.nextID
		g.nextID++
		suggested.PortID = portID
		g.portConfigs = append(g.portConfigs, suggested)
		g.logger.Debug("created port config",
			"port_config_id", suggested.ID, "port_id", portID)
		return suggested, true, nil
	default:
		return suggested, false, nil
	}
}

// ResetPortConfig releases a client-created config, or restores the pinned
// default of an attached device port. Configs referenced by a patch cannot
// be reset; stream ownership is checked by the caller.
func (g *Graph) ResetPortConfig(id int32) error {
	existing := g.findPortConfig(id)
	if existing == nil {
		return errors.New(ErrPortConfigNotFound).Context("port_config_id", id).Build()
	}
	if g.HasPatchReference(id) {
		return errors.New(ErrPortConfigInUse).
			Context("port_config_id", id).
			Context("reason", "referenced by a patch").Build()
	}
	for _, initial := range g.initialConfigs {
		if initial.ID == id {
			*existing = initial
			return nil
		}
	}
	g.portConfigs = slices.DeleteFunc(g.portConfigs, func(c PortConfig) bool {
		return c.ID == id
	})
	return nil
}

// SetPatch creates or updates a patch. On success it returns the applied
// patch and, for updates, the previous version. Failure leaves the graph
// exactly as it was.
func (g *Graph) SetPatch(req Patch) (applied Patch, previous Patch, err error) {
	if len(req.SourcePortConfigIDs) == 0 || len(req.SinkPortConfigIDs) == 0 {
		return Patch{}, Patch{}, errors.New(ErrInvalidPatch).
			Context("reason", "empty source or sink list").Build()
	}
	if hasDuplicates(req.SourcePortConfigIDs) || hasDuplicates(req.SinkPortConfigIDs) {
		return Patch{}, Patch{}, errors.New(ErrInvalidPatch).
			Context("reason", "duplicate ids in source or sink list").Build()
	}

	sources, err := g.resolveConfigs(req.SourcePortConfigIDs)
	if err != nil {
		return Patch{}, Patch{}, err
	}
	sinks, err := g.resolveConfigs(req.SinkPortConfigIDs)
	if err != nil {
		return Patch{}, Patch{}, err
	}
	if err := g.checkPatchEndpoints(sources, sinks); err != nil {
		return Patch{}, Patch{}, err
	}

	// For every sink port reachable from the sources, record whether at
	// least one non-exclusive route reaches it.
	allowedSinkPorts := make(map[int32]bool)
	for _, src := range sources {
		for _, r := range g.routes {
			if !slices.Contains(r.SourcePortIDs, src.PortID) {
				continue
			}
			if nonExclusive, ok := allowedSinkPorts[r.SinkPortID]; !ok || !nonExclusive {
				allowedSinkPorts[r.SinkPortID] = !r.IsExclusive
			}
		}
	}
	for _, sink := range sinks {
		if _, ok := allowedSinkPorts[sink.PortID]; !ok {
			return Patch{}, Patch{}, errors.New(ErrNoRouteToSink).
				Context("sink_port_id", sink.PortID).Build()
		}
	}

	var existing *Patch
	if req.ID != 0 {
		existing = g.findPatch(req.ID)
		if existing == nil {
			return Patch{}, Patch{}, errors.New(ErrPatchNotFound).
				Context("patch_id", req.ID).Build()
		}
	}

	// Take the patch being updated out of the index so it does not count
	// against its own exclusivity, keeping a snapshot for rollback.
	backup := g.snapshotPatchIndex()
	if existing != nil {
		g.unregisterPatch(existing.ID)
	}
	for sinkPortID, nonExclusive := range allowedSinkPorts {
		if !nonExclusive && len(g.patchIndex[sinkPortID]) > 0 {
			g.patchIndex = backup
			return Patch{}, Patch{}, errors.New(ErrExclusiveRouteBusy).
				Context("sink_port_id", sinkPortID).Build()
		}
	}

	applied = req.Clone()
	applied.MinBufferSizeFrames = g.cfg.MinBufferFrames
	applied.LatenciesMs = make([]int, len(sinks))
	for i := range applied.LatenciesMs {
		applied.LatenciesMs[i] = g.cfg.LatencyMs
	}

	if existing != nil {
		previous = existing.Clone()
		*existing = applied
	} else {
		applied.ID = g.nextPatchID
		g.nextPatchID++
		g.patches = append(g.patches, applied)
	}
	g.registerPatch(applied, sources, sinks)
	g.logger.Debug("patch applied",
		"patch_id", applied.ID,
		"sources", applied.SourcePortConfigIDs,
		"sinks", applied.SinkPortConfigIDs)
	return applied.Clone(), previous, nil
}

// ResetPatch tears down a patch and returns the removed version.
func (g *Graph) ResetPatch(id int32) (Patch, error) {
	existing := g.findPatch(id)
	if existing == nil {
		return Patch{}, errors.New(ErrPatchNotFound).Context("patch_id", id).Build()
	}
	removed := existing.Clone()
	g.unregisterPatch(id)
	g.patches = slices.DeleteFunc(g.patches, func(p Patch) bool { return p.ID == id })
	g.logger.Debug("patch reset", "patch_id", id)
	return removed, nil
}

// HasPatchReference reports whether any patch references the given port
// config or port id.
func (g *Graph) HasPatchReference(id int32) bool {
	return len(g.patchIndex[id]) > 0
}

// ConnectedPortConfigIDs returns the ids of the configs on the far side of
// every patch that references the given config.
func (g *Graph) ConnectedPortConfigIDs(portConfigID int32) []int32 {
	seen := make(map[int32]struct{})
	for patchID := range g.patchIndex[portConfigID] {
		patch := g.findPatch(patchID)
		if patch == nil {
			continue
		}
		far := patch.SourcePortConfigIDs
		if slices.Contains(patch.SourcePortConfigIDs, portConfigID) {
			far = patch.SinkPortConfigIDs
		}
		for _, id := range far {
			seen[id] = struct{}{}
		}
	}
	out := make([]int32, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ConnectedDevices returns the device descriptors of all device ports the
// given config is patched to.
func (g *Graph) ConnectedDevices(portConfigID int32) []Device {
	var out []Device
	for _, id := range g.ConnectedPortConfigIDs(portConfigID) {
		cfg := g.findPortConfig(id)
		if cfg == nil {
			continue
		}
		port := g.findPort(cfg.PortID)
		if port == nil || port.Kind != PortKindDevice {
			continue
		}
		out = append(out, port.Device.Device)
	}
	return out
}

// ConnectExternalDevice instantiates a pluggable device port from its
// template, installing the template's connected-profile set and cloning
// every route the template participates in.
func (g *Graph) ConnectExternalDevice(templatePortID int32, device Device) (Port, error) {
	template := g.findPort(templatePortID)
	if template == nil {
		return Port{}, errors.New(ErrPortNotFound).Context("port_id", templatePortID).Build()
	}
	if template.Kind != PortKindDevice || template.Device.Device.Connection == "" {
		return Port{}, errors.New(ErrNotExternalDevicePort).
			Context("port_id", templatePortID).Build()
	}
	if len(template.Profiles) != 0 {
		return Port{}, errors.New(ErrNotExternalDevicePort).
			Context("port_id", templatePortID).
			Context("reason", "template already declares profiles").Build()
	}

	connected := template.Clone()
	connected.Device.Device.Address = device.Address
	for id := range g.connectedPorts {
		p := g.findPort(id)
		if p != nil && p.Device.Device.Equal(connected.Device.Device) {
			return Port{}, errors.New(ErrDeviceAlreadyConnected).
				Context("address", device.Address).Build()
		}
	}

	profiles := g.connectedProfiles[templatePortID]
	connected.Profiles = make([]Profile, len(profiles))
	for i, prof := range profiles {
		connected.Profiles[i] = Profile{
			Format:       prof.Format,
			ChannelMasks: slices.Clone(prof.ChannelMasks),
			SampleRates:  slices.Clone(prof.SampleRates),
		}
	}
	connected.ID = g.nextID
	g.nextID++
	g.ports = append(g.ports, connected)
	g.connectedPorts[connected.ID] = struct{}{}

	// The new port inherits the template's routing in both roles.
	var addedRoutes []Route
	for i := range g.routes {
		r := &g.routes[i]
		if r.SinkPortID == templatePortID {
			addedRoutes = append(addedRoutes, Route{
				SourcePortIDs: slices.Clone(r.SourcePortIDs),
				SinkPortID:    connected.ID,
				IsExclusive:   r.IsExclusive,
			})
		}
		if slices.Contains(r.SourcePortIDs, templatePortID) {
			r.SourcePortIDs = append(r.SourcePortIDs, connected.ID)
		}
	}
	g.routes = append(g.routes, addedRoutes...)

	g.logger.Info("external device connected",
		"port_id", connected.ID,
		"template_port_id", templatePortID,
		"address", device.Address)
	return connected.Clone(), nil
}

// DisconnectExternalDevice removes a connected device port. The caller
// must have torn down patches and streams on the port first; a config
// modified by a client also blocks disconnection.
func (g *Graph) DisconnectExternalDevice(portID int32) error {
	port := g.findPort(portID)
	if port == nil {
		return errors.New(ErrPortNotFound).Context("port_id", portID).Build()
	}
	if _, ok := g.connectedPorts[portID]; !ok {
		return errors.New(ErrNotExternalDevicePort).
			Context("port_id", portID).
			Context("reason", "not a connected external device").Build()
	}
	if g.HasPatchReference(portID) {
		return errors.New(ErrDevicePortBusy).
			Context("port_id", portID).
			Context("reason", "port is patched").Build()
	}
	for _, cfg := range g.portConfigs {
		if cfg.PortID == portID {
			return errors.New(ErrDevicePortBusy).
				Context("port_id", portID).
				Context("port_config_id", cfg.ID).
				Context("reason", "client config still present").Build()
		}
	}

	g.ports = slices.DeleteFunc(g.ports, func(p Port) bool { return p.ID == portID })
	delete(g.connectedPorts, portID)
	g.routes = slices.DeleteFunc(g.routes, func(r Route) bool {
		return r.SinkPortID == portID
	})
	for i := range g.routes {
		g.routes[i].SourcePortIDs = slices.DeleteFunc(g.routes[i].SourcePortIDs,
			func(id int32) bool { return id == portID })
	}
	g.logger.Info("external device disconnected", "port_id", portID)
	return nil
}

// IsExternalDevicePort reports whether the port was created by
// ConnectExternalDevice.
func (g *Graph) IsExternalDevicePort(portID int32) bool {
	_, ok := g.connectedPorts[portID]
	return ok
}

func (g *Graph) findPort(id int32) *Port {
	for i := range g.ports {
		if g.ports[i].ID == id {
			return &g.ports[i]
		}
	}
	return nil
}

func (g *Graph) findPortConfig(id int32) *PortConfig {
	for i := range g.portConfigs {
		if g.portConfigs[i].ID == id {
			return &g.portConfigs[i]
		}
	}
	return nil
}

func (g *Graph) findPatch(id int32) *Patch {
	for i := range g.patches {
		if g.patches[i].ID == id {
			return &g.patches[i]
		}
	}
	return nil
}

func (g *Graph) resolveConfigs(ids []int32) ([]PortConfig, error) {
	out := make([]PortConfig, 0, len(ids))
	for _, id := range ids {
		cfg := g.findPortConfig(id)
		if cfg == nil {
			return nil, errors.New(ErrPortConfigNotFound).
				Context("port_config_id", id).Build()
		}
		out = append(out, *cfg)
	}
	return out, nil
}

// checkPatchEndpoints enforces that a patch joins mix configs on one side
// with device configs on the other.
func (g *Graph) checkPatchEndpoints(sources, sinks []PortConfig) error {
	srcKind, err := g.uniformKind(sources)
	if err != nil {
		return err
	}
	sinkKind, err := g.uniformKind(sinks)
	if err != nil {
		return err
	}
	if srcKind == sinkKind {
		return errors.New(ErrInvalidPatch).
			Context("reason", "sources and sinks are the same port kind").Build()
	}
	return nil
}

func (g *Graph) uniformKind(configs []PortConfig) (PortKind, error) {
	kind := PortKindDevice
	for i, cfg := range configs {
		port := g.findPort(cfg.PortID)
		if port == nil {
			return 0, errors.New(ErrPortNotFound).Context("port_id", cfg.PortID).Build()
		}
		if i == 0 {
			kind = port.Kind
		} else if port.Kind != kind {
			return 0, errors.New(ErrInvalidPatch).
				Context("reason", "mixed port kinds on one side").Build()
		}
	}
	return kind, nil
}

func (g *Graph) defaultPortConfig(port *Port) (PortConfig, error) {
	if len(port.Profiles) == 0 {
		return PortConfig{}, errors.New(ErrInvalidPortConfig).
			Context("port_id", port.ID).
			Context("reason", "port has no profiles").Build()
	}
	prof := port.Profiles[0]
	if len(prof.ChannelMasks) == 0 || len(prof.SampleRates) == 0 {
		return PortConfig{}, errors.New(ErrInvalidPortConfig).
			Context("port_id", port.ID).
			Context("reason", "port profile is empty").Build()
	}
	return PortConfig{
		PortID:      port.ID,
		Format:      prof.Format,
		ChannelMask: prof.ChannelMasks[0],
		SampleRate:  prof.SampleRates[0],
		Flags:       port.Flags,
	}, nil
}

func (g *Graph) registerPatch(p Patch, sources, sinks []PortConfig) {
	add := func(key int32) {
		set, ok := g.patchIndex[key]
		if !ok {
			set = make(map[int32]struct{})
			g.patchIndex[key] = set
		}
		set[p.ID] = struct{}{}
	}
	for _, cfg := range sources {
		add(cfg.ID)
		add(cfg.PortID)
	}
	for _, cfg := range sinks {
		add(cfg.ID)
		add(cfg.PortID)
	}
}

func (g *Graph) unregisterPatch(patchID int32) {
	for key, set := range g.patchIndex {
		delete(set, patchID)
		if len(set) == 0 {
			delete(g.patchIndex, key)
		}
	}
}

func (g *Graph) snapshotPatchIndex() map[int32]map[int32]struct{} {
	snap := make(map[int32]map[int32]struct{}, len(g.patchIndex))
	for key, set := range g.patchIndex {
		cp := make(map[int32]struct{}, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		snap[key] = cp
	}
	return snap
}

func hasDuplicates(ids []int32) bool {
	seen := make(map[int32]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
