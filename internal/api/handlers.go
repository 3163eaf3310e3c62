package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/service"
	"github.com/audiosvc/audiod/internal/stream"
)

func pathID(c echo.Context, name string) (int32, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return int32(id), nil
}

func (s *Server) listPorts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.module.Ports())
}

func (s *Server) getPort(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	port, err := s.module.Port(id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, port)
}

func (s *Server) getPortRoutes(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	routes, err := s.module.RoutesForPort(id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, routes)
}

type connectDeviceRequest struct {
	TemplatePortID int32             `json:"templatePortId"`
	Device         audiograph.Device `json:"device"`
}

func (s *Server) connectDevice(c echo.Context) error {
	var req connectDeviceRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	port, err := s.module.ConnectExternalDevice(req.TemplatePortID, req.Device)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, port)
}

func (s *Server) disconnectDevice(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.module.DisconnectExternalDevice(id); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listPortConfigs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.module.PortConfigs())
}

type applyPortConfigResponse struct {
	Config  audiograph.PortConfig `json:"config"`
	Applied bool                  `json:"applied"`
}

func (s *Server) applyPortConfig(c echo.Context) error {
	var req audiograph.PortConfigRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	cfg, applied, err := s.module.ApplyPortConfig(req)
	if err != nil {
		return s.fail(c, err)
	}
	status := http.StatusOK
	if applied && req.ID == 0 {
		status = http.StatusCreated
	}
	return c.JSON(status, applyPortConfigResponse{Config: cfg, Applied: applied})
}

func (s *Server) resetPortConfig(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.module.ResetPortConfig(id); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listPatches(c echo.Context) error {
	return c.JSON(http.StatusOK, s.module.Patches())
}

func (s *Server) setPatch(c echo.Context) error {
	var req audiograph.Patch
	if err := c.Bind(&req); err != nil {
		return err
	}
	patch, err := s.module.SetPatch(req)
	if err != nil {
		return s.fail(c, err)
	}
	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	return c.JSON(status, patch)
}

func (s *Server) resetPatch(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.module.ResetPatch(id); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listRoutes(c echo.Context) error {
	return c.JSON(http.StatusOK, s.module.Routes())
}

func (s *Server) listMicrophones(c echo.Context) error {
	return c.JSON(http.StatusOK, s.module.Microphones())
}

// streamInfo is the wire representation of an open stream. The channel
// endpoints themselves are process-local and not exported.
type streamInfo struct {
	ID               string              `json:"id"`
	PortID           int32               `json:"portId"`
	PortConfigID     int32               `json:"portConfigId"`
	Direction        string              `json:"direction"`
	State            string              `json:"state"`
	FrameSizeBytes   int                 `json:"frameSizeBytes"`
	BufferSizeFrames int                 `json:"bufferSizeFrames"`
	ConnectedDevices []audiograph.Device `json:"connectedDevices,omitempty"`
}

func toStreamInfo(s *stream.Stream) streamInfo {
	desc := s.Descriptor()
	return streamInfo{
		ID:               s.ID().String(),
		PortID:           s.PortID(),
		PortConfigID:     s.PortConfigID(),
		Direction:        s.Direction().String(),
		State:            s.State().String(),
		FrameSizeBytes:   desc.FrameSizeBytes,
		BufferSizeFrames: desc.BufferSizeFrames,
		ConnectedDevices: s.ConnectedDevices(),
	}
}

func (s *Server) listStreams(c echo.Context) error {
	streams := s.module.Streams()
	out := make([]streamInfo, 0, len(streams))
	for _, st := range streams {
		out = append(out, toStreamInfo(st))
	}
	return c.JSON(http.StatusOK, out)
}

type openStreamRequest struct {
	PortConfigID     int32  `json:"portConfigId"`
	Direction        string `json:"direction"`
	BufferSizeFrames int    `json:"bufferSizeFrames"`
}

func (s *Server) openStream(c echo.Context) error {
	var req openStreamRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	open := service.OpenStreamRequest{
		PortConfigID:     req.PortConfigID,
		BufferSizeFrames: req.BufferSizeFrames,
	}
	var st *stream.Stream
	var err error
	switch req.Direction {
	case "input":
		st, err = s.module.OpenInputStream(open)
	case "output":
		st, err = s.module.OpenOutputStream(open)
	default:
		return echo.NewHTTPError(http.StatusBadRequest,
			"direction must be \"input\" or \"output\"")
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toStreamInfo(st))
}

func (s *Server) closeStream(c echo.Context) error {
	id, err := pathID(c, "portConfigId")
	if err != nil {
		return err
	}
	if err := s.module.CloseStream(id); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) activeMicrophones(c echo.Context) error {
	id, err := pathID(c, "portConfigId")
	if err != nil {
		return err
	}
	st, err := s.module.Stream(id)
	if err != nil {
		return s.fail(c, err)
	}
	mics := st.ActiveMicrophones()
	if mics == nil {
		mics = []audiograph.MicrophoneInfo{}
	}
	return c.JSON(http.StatusOK, mics)
}

func (s *Server) getDebug(c echo.Context) error {
	return c.JSON(http.StatusOK, s.module.Debug())
}

func (s *Server) setDebug(c echo.Context) error {
	var req service.DebugState
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.module.SetDebug(req); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.module.Debug())
}

type controlsState struct {
	MasterMute   bool    `json:"masterMute"`
	MasterVolume float64 `json:"masterVolume"`
	MicMute      bool    `json:"micMute"`
}

func (s *Server) getControls(c echo.Context) error {
	return c.JSON(http.StatusOK, controlsState{
		MasterMute:   s.module.MasterMute(),
		MasterVolume: s.module.MasterVolume(),
		MicMute:      s.module.MicMute(),
	})
}

func (s *Server) setControls(c echo.Context) error {
	var req controlsState
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.module.SetMasterVolume(req.MasterVolume); err != nil {
		return s.fail(c, err)
	}
	s.module.SetMasterMute(req.MasterMute)
	s.module.SetMicMute(req.MicMute)
	return s.getControls(c)
}
