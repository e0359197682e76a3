package mqtt

import (
	"context"
	"encoding/json"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/device"
	"github.com/taoyao-code/dreamscreen-gateway/internal/events"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

type published struct {
	topic    string
	payload  string
	retained bool
}

type fakeConn struct {
	mu        sync.Mutex
	connected bool
	pubs      []published
	subs      map[string]MessageHandler
}

func newFakeConn() *fakeConn {
	return &fakeConn{connected: true, subs: map[string]MessageHandler{}}
}

func (c *fakeConn) Publish(topic string, payload []byte, _ byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pubs = append(c.pubs, published{topic, string(payload), retained})
	return nil
}

func (c *fakeConn) Subscribe(topic string, _ byte, h MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = h
	return nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) last() published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pubs[len(c.pubs)-1]
}

type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSender) Send(_ netip.Addr, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSender) Broadcast(frame []byte) error { return s.Send(netip.Addr{}, frame) }

func (s *recordingSender) lastMessage(t *testing.T) dreamscreen.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames)
	_, m, err := dreamscreen.DecodeMessage(s.frames[len(s.frames)-1])
	require.NoError(t, err)
	return m
}

type lookup map[uint32]*device.Device

func (l lookup) Get(serial uint32) (*device.Device, bool) {
	d, ok := l[serial]
	return d, ok
}

func newBridge(t *testing.T) (*Bridge, *fakeConn, *recordingSender, *device.Device, *metrics.AppMetrics) {
	t.Helper()
	sender := &recordingSender{}
	sched := device.NewManualScheduler(time.Unix(0, 0))
	d := device.New(device.Config{Serial: 12345, Kind: device.Kind4K}, sender,
		device.WithScheduler(sched), device.WithClock(sched.Now))
	require.True(t, d.Link(netip.MustParseAddr("192.168.1.50")))

	conn := newFakeConn()
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	b := NewBridge(conn, lookup{12345: d}, cfgpkg.MQTTConfig{TopicPrefix: "ds", QoS: 1}, zap.NewNop(), m)
	return b, conn, sender, d, m
}

func TestTopics(t *testing.T) {
	topics := NewTopics("/home/ds/")
	assert.Equal(t, "home/ds/command/42/power", topics.Command(42, CapPower))
	assert.Equal(t, "home/ds/state/42/scene", topics.State(42, CapScene))
	assert.Equal(t, "home/ds/status/42", topics.Status(42))
	assert.Equal(t, "home/ds/gateway/status", topics.Gateway())
	assert.Equal(t, "home/ds/command/+/+", topics.AllCommands())
	assert.Equal(t, "dreamscreen/gateway/status", NewTopics("").Gateway())

	serial, capability, err := topics.ParseCommand("home/ds/command/42/color")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), serial)
	assert.Equal(t, CapColor, capability)

	for _, bad := range []string{
		"home/ds/state/42/color",
		"home/ds/command/42",
		"home/ds/command/abc/power",
		"home/ds/command/42/power/extra",
		"other/command/42/power",
	} {
		_, _, err := topics.ParseCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePower(t *testing.T) {
	for _, s := range []string{"ON", "on", "true", "1"} {
		on, err := ParsePower(s)
		require.NoError(t, err)
		assert.True(t, on, s)
	}
	for _, s := range []string{"OFF", " off ", "false", "0"} {
		on, err := ParsePower(s)
		require.NoError(t, err)
		assert.False(t, on, s)
	}
	_, err := ParsePower("maybe")
	assert.Error(t, err)
}

func TestBridge_Start(t *testing.T) {
	b, conn, _, _, _ := newBridge(t)
	require.NoError(t, b.Start())
	assert.Contains(t, conn.subs, "ds/command/+/+")
}

func TestBridge_Commands(t *testing.T) {
	b, _, sender, _, m := newBridge(t)

	require.NoError(t, b.HandleCommand("ds/command/12345/power", []byte("ON")))
	assert.Equal(t, dreamscreen.ModeMessage{Mode: dreamscreen.ModeVideo}, sender.lastMessage(t))

	require.NoError(t, b.HandleCommand("ds/command/12345/color", []byte("#ff0000")))
	assert.Equal(t, dreamscreen.ColorMessage{Color: dreamscreen.RGB{R: 0xFF}}, sender.lastMessage(t))

	require.NoError(t, b.HandleCommand("ds/command/12345/color", []byte("hsb:120,100,100")))
	assert.Equal(t, dreamscreen.ColorMessage{Color: dreamscreen.RGB{G: 0xFF}}, sender.lastMessage(t))

	require.NoError(t, b.HandleCommand("ds/command/12345/scene", []byte("FIRESIDE")))
	assert.Equal(t, dreamscreen.ModeMessage{Mode: dreamscreen.ModeAmbient}, sender.lastMessage(t))

	require.NoError(t, b.HandleCommand("ds/command/12345/input", []byte("2")))
	assert.Equal(t, dreamscreen.InputMessage{Input: 2}, sender.lastMessage(t))

	require.NoError(t, b.HandleCommand("ds/command/12345/refresh", nil))
	assert.Equal(t, dreamscreen.RefreshMessage{Group: dreamscreen.GroupAny}, sender.lastMessage(t))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.MQTTCommandsTotal.WithLabelValues(CapColor, "ok")))
}

func TestBridge_CommandErrors(t *testing.T) {
	b, _, _, _, m := newBridge(t)

	assert.ErrorIs(t, b.HandleCommand("ds/command/999/power", []byte("ON")), ErrUnknownDevice)
	assert.ErrorIs(t, b.HandleCommand("ds/command/12345/brightness", []byte("10")), ErrUnknownCapability)
	assert.Error(t, b.HandleCommand("ds/command/12345/mode", []byte("DISCO")))
	assert.Error(t, b.HandleCommand("ds/command/12345/input", []byte("x")))
	assert.ErrorIs(t, b.HandleCommand("ds/command/12345/input", []byte("5")), device.ErrInvalidArgument)
	// 设备处于关机状态
	assert.ErrorIs(t, b.HandleCommand("ds/command/12345/mode", []byte("MUSIC")), device.ErrPoweredOff)
	assert.Error(t, b.HandleCommand("bogus", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.MQTTCommandsTotal.WithLabelValues(CapPower, "error")))
}

func TestBridge_StatePublishing(t *testing.T) {
	b, conn, _, _, _ := newBridge(t)
	ctx := context.Background()

	require.NoError(t, b.Handle(ctx, events.New(events.TypePowerChanged, 7, map[string]any{"value": true})))
	assert.Equal(t, published{"ds/state/7/power", "ON", true}, conn.last())

	require.NoError(t, b.Handle(ctx, events.New(events.TypeSceneChanged, 7, map[string]any{"value": "FIRESIDE"})))
	assert.Equal(t, published{"ds/state/7/scene", "FIRESIDE", true}, conn.last())

	require.NoError(t, b.Handle(ctx, events.New(events.TypeInputChanged, 7, map[string]any{"value": 1})))
	assert.Equal(t, "1", conn.last().payload)

	require.NoError(t, b.Handle(ctx, events.New(events.TypeColorChanged, 7, map[string]any{"value": "#0a0b0c", "r": 10})))
	assert.Equal(t, published{"ds/state/7/color", "#0a0b0c", true}, conn.last())

	require.NoError(t, b.Handle(ctx, events.New(events.TypeInputNamesChanged, 7, map[string]any{"value": []string{"A", "B", "C"}})))
	assert.Equal(t, "ds/state/7/input_names", conn.last().topic)
	assert.JSONEq(t, `["A","B","C"]`, conn.last().payload)

	require.NoError(t, b.Handle(ctx, events.New(events.TypeDeviceStatus, 7, map[string]any{"status": "OFFLINE", "detail": "COMMUNICATION_ERROR"})))
	assert.Equal(t, "ds/status/7", conn.last().topic)
	var status map[string]string
	require.NoError(t, json.Unmarshal([]byte(conn.last().payload), &status))
	assert.Equal(t, "OFFLINE", status["status"])

	require.NoError(t, b.Handle(ctx, events.New(events.TypeDeviceLinked, 7, map[string]any{"address": "192.168.1.9"})))
	assert.Equal(t, published{"ds/state/7/address", "192.168.1.9", true}, conn.last())

	conn.connected = false
	assert.ErrorIs(t, b.Handle(ctx, events.New(events.TypePowerChanged, 7, map[string]any{"value": false})), ErrNotConnected)
}
