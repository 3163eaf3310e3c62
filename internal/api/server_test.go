package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/conf"
	"github.com/audiosvc/audiod/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := conf.Default()
	cfg.Audio.MinBufferFrames = 16
	cfg.Debug.SimulateDeviceConnections = true
	m := service.NewModule(cfg, audiograph.Primary(), nil)
	t.Cleanup(m.Shutdown)
	return New(m)
}

func request(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := request(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPortsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := request(t, s, http.MethodGet, "/api/v1/ports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ports []audiograph.Port
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ports))
	assert.Len(t, ports, 7)

	rec = request(t, s, http.MethodGet, "/api/v1/ports/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, s, http.MethodGet, "/api/v1/ports/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = request(t, s, http.MethodGet, "/api/v1/ports/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortConfigLifecycle(t *testing.T) {
	s := newTestServer(t)

	body := `{"portId":5,"format":1,"channelMask":2,"sampleRate":48000,` +
		`"flags":{"direction":0}}`
	rec := request(t, s, http.MethodPost, "/api/v1/portconfigs", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Config  audiograph.PortConfig `json:"config"`
		Applied bool                  `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Applied)
	assert.NotZero(t, resp.Config.ID)

	// Partial request: suggestion only, nothing stored.
	rec = request(t, s, http.MethodPost, "/api/v1/portconfigs", `{"portId":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Applied)

	rec = request(t, s, http.MethodDelete,
		"/api/v1/portconfigs/"+itoa(resp.Config.ID), "")
	// The suggestion was never stored.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchEndpoints(t *testing.T) {
	s := newTestServer(t)

	body := `{"portId":5,"format":1,"channelMask":2,"sampleRate":48000,` +
		`"flags":{"direction":0}}`
	rec := request(t, s, http.MethodPost, "/api/v1/portconfigs", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var cfgResp struct {
		Config audiograph.PortConfig `json:"config"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfgResp))

	patchBody := `{"sourcePortConfigIds":[` + itoa(cfgResp.Config.ID) +
		`],"sinkPortConfigIds":[8]}`
	rec = request(t, s, http.MethodPost, "/api/v1/patches", patchBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var patch audiograph.Patch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patch))
	assert.NotZero(t, patch.ID)
	assert.NotZero(t, patch.MinBufferSizeFrames)

	// No route from the mic config to the speaker config.
	rec = request(t, s, http.MethodPost, "/api/v1/patches",
		`{"sourcePortConfigIds":[9],"sinkPortConfigIds":[8]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, s, http.MethodDelete, "/api/v1/patches/"+itoa(patch.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStreamEndpoints(t *testing.T) {
	s := newTestServer(t)

	body := `{"portId":5,"format":1,"channelMask":2,"sampleRate":48000,` +
		`"flags":{"direction":0}}`
	rec := request(t, s, http.MethodPost, "/api/v1/portconfigs", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var cfgResp struct {
		Config audiograph.PortConfig `json:"config"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfgResp))
	cfgID := itoa(cfgResp.Config.ID)

	rec = request(t, s, http.MethodPost, "/api/v1/streams",
		`{"portConfigId":`+cfgID+`,"direction":"output","bufferSizeFrames":64}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var info struct {
		State     string `json:"state"`
		Direction string `json:"direction"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "output", info.Direction)
	assert.Equal(t, "standby", info.State)

	rec = request(t, s, http.MethodGet, "/api/v1/streams", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// A second stream on the same config conflicts.
	rec = request(t, s, http.MethodPost, "/api/v1/streams",
		`{"portConfigId":`+cfgID+`,"direction":"output","bufferSizeFrames":64}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = request(t, s, http.MethodDelete, "/api/v1/streams/"+cfgID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = request(t, s, http.MethodDelete, "/api/v1/streams/"+cfgID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := request(t, s, http.MethodPost, "/api/v1/ports/connect",
		`{"templatePortId":3,"device":{"type":"out-device","connection":"usb","address":"card=1"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var port audiograph.Port
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &port))

	rec = request(t, s, http.MethodPost, "/api/v1/ports/connect",
		`{"templatePortId":3,"device":{"type":"out-device","connection":"usb","address":"card=1"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = request(t, s, http.MethodDelete, "/api/v1/ports/"+itoa(port.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestControlsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := request(t, s, http.MethodPut, "/api/v1/controls",
		`{"masterMute":true,"masterVolume":0.5,"micMute":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var controls struct {
		MasterMute   bool    `json:"masterMute"`
		MasterVolume float64 `json:"masterVolume"`
		MicMute      bool    `json:"micMute"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &controls))
	assert.True(t, controls.MasterMute)
	assert.Equal(t, 0.5, controls.MasterVolume)

	rec = request(t, s, http.MethodPut, "/api/v1/controls", `{"masterVolume":2.0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := request(t, s, http.MethodGet, "/api/v1/debug", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, s, http.MethodPut, "/api/v1/debug",
		`{"simulateDeviceConnections":true,"transientStateDelayMs":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, s, http.MethodPut, "/api/v1/debug",
		`{"transientStateDelayMs":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}
