package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/api/middleware"
	"github.com/taoyao-code/dreamscreen-gateway/internal/device"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
	"github.com/taoyao-code/dreamscreen-gateway/internal/registry"
)

type stubTransport struct {
	mu      sync.Mutex
	running bool
	sendErr error
	frames  [][]byte
}

func (s *stubTransport) Send(_ netip.Addr, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *stubTransport) Broadcast(frame []byte) error { return s.Send(netip.Addr{}, frame) }

func (s *stubTransport) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

func (s *stubTransport) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *stubTransport) Restart(ctx context.Context) error { return s.Start(ctx) }

func (s *stubTransport) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

type testEnv struct {
	router *gin.Engine
	reg    *registry.Registry
	tr     *stubTransport
}

func newTestEnv(t *testing.T, auth middleware.AuthConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tr := &stubTransport{}
	sched := device.NewManualScheduler(time.Unix(0, 0))
	reg := registry.New(tr, zap.NewNop(),
		registry.WithDeviceOptions(device.WithScheduler(sched), device.WithClock(sched.Now)))
	r := gin.New()
	RegisterDeviceRoutes(r, reg, auth, zap.NewNop())
	return &testEnv{router: r, reg: reg, tr: tr}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) link(t *testing.T, serial uint32, addr string) {
	t.Helper()
	m := dreamscreen.SerialNumberMessage{Serial: serial}
	f, err := dreamscreen.Decode(dreamscreen.WriteFrame(m), 0)
	require.NoError(t, err)
	e.reg.Dispatch(netip.MustParseAddr(addr), f, m)
	d, ok := e.reg.Get(serial)
	require.True(t, ok)
	require.True(t, d.Address().IsValid())
}

func TestDeviceRoutes_Lifecycle(t *testing.T) {
	e := newTestEnv(t, middleware.AuthConfig{})

	rr := e.do(http.MethodPost, "/api/devices", gin.H{"serial": 12345, "kind": "4K", "name": "tv"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var state device.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, uint32(12345), state.Serial)
	assert.Equal(t, device.Kind4K, state.Kind)
	assert.Equal(t, device.PhaseUnlinked, state.Phase)

	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/devices", gin.H{"serial": 12345, "kind": "hd"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices", gin.H{"serial": 1, "kind": "plasma"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices", gin.H{"kind": "hd"}).Code)

	rr = e.do(http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Devices []device.State `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Devices, 1)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/devices/12345", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/devices/1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/devices/abc", nil).Code)

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/devices/12345", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/devices/12345", nil).Code)
	assert.False(t, e.tr.Running(), "last device removed stops transport")
}

func TestDeviceRoutes_Commands(t *testing.T) {
	e := newTestEnv(t, middleware.AuthConfig{})
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/devices", gin.H{"serial": 7, "kind": "sidekick"}).Code)

	// 未绑定
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/devices/7/power", gin.H{"on": true}).Code)

	e.link(t, 7, "192.168.1.70")

	rr := e.do(http.MethodPost, "/api/devices/7/power", gin.H{"on": true})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp AcceptedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, AcceptedResponse{Serial: 7, Accepted: true}, resp)

	// 设备尚未上报开机，模式切换被拒
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/devices/7/mode", gin.H{"mode": "MUSIC"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices/7/mode", gin.H{"mode": "DISCO"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices/7/power", gin.H{}).Code)

	assert.Equal(t, http.StatusAccepted, e.do(http.MethodPost, "/api/devices/7/scene", gin.H{"scene": "OCEAN"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices/7/scene", gin.H{"scene": "nope"}).Code)

	assert.Equal(t, http.StatusAccepted, e.do(http.MethodPost, "/api/devices/7/color", gin.H{"hex": "#102030"}).Code)
	assert.Equal(t, http.StatusAccepted, e.do(http.MethodPost, "/api/devices/7/color", gin.H{"r": 1, "g": 2, "b": 3}).Code)
	assert.Equal(t, http.StatusAccepted, e.do(http.MethodPost, "/api/devices/7/color",
		gin.H{"hue": 30, "saturation": 100, "brightness": 100}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices/7/color", gin.H{"r": 300, "g": 0, "b": 0}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices/7/color", gin.H{"hue": 30}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices/7/color", gin.H{}).Code)

	// Sidekick 没有输入口
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/devices/7/input", gin.H{"input": 1}).Code)

	rr = e.do(http.MethodPost, "/api/devices/7/refresh", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Sent)
	assert.True(t, *resp.Sent)

	rr = e.do(http.MethodPost, "/api/devices/7/refresh", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, *resp.Sent, "throttled")

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/api/devices/8/power", gin.H{"on": true}).Code)
}

func TestDeviceRoutes_SendFailure(t *testing.T) {
	e := newTestEnv(t, middleware.AuthConfig{})
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/devices", gin.H{"serial": 9, "kind": "hd"}).Code)
	e.link(t, 9, "192.168.1.90")

	e.tr.mu.Lock()
	e.tr.sendErr = errors.New("network unreachable")
	e.tr.mu.Unlock()

	rr := e.do(http.MethodPost, "/api/devices/9/input", gin.H{"input": 2})
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	var state device.State
	require.NoError(t, json.Unmarshal(e.do(http.MethodGet, "/api/devices/9", nil).Body.Bytes(), &state))
	assert.Equal(t, device.StatusOffline, state.Status)
	assert.Equal(t, device.DetailCommunicationError, state.StatusDetail)
}

func TestDeviceRoutes_Auth(t *testing.T) {
	e := newTestEnv(t, middleware.AuthConfig{Enabled: true, APIKeys: []string{"secret-key-123"}})

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/devices", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	req.Header.Set("X-API-Key", "secret-key-123")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{registry.ErrDeviceNotFound, http.StatusNotFound},
		{registry.ErrDuplicateDevice, http.StatusConflict},
		{device.ErrPoweredOff, http.StatusConflict},
		{device.ErrNotLinked, http.StatusConflict},
		{device.ErrUnsupported, http.StatusBadRequest},
		{device.ErrInvalidArgument, http.StatusBadRequest},
		{device.ErrSendFailed, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
