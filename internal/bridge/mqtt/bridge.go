package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/device"
	"github.com/taoyao-code/dreamscreen-gateway/internal/events"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

var (
	// ErrUnknownDevice 命令主题中的序列号未注册
	ErrUnknownDevice = errors.New("unknown device")
	// ErrUnknownCapability 命令主题中的能力不存在
	ErrUnknownCapability = errors.New("unknown capability")
)

// DeviceLookup 按序列号查设备
type DeviceLookup interface {
	Get(serial uint32) (*device.Device, bool)
}

// Bridge 命令主题 -> 设备命令；设备事件 -> retained 状态主题
type Bridge struct {
	conn    Conn
	devices DeviceLookup
	topics  Topics
	qos     byte
	logger  *zap.Logger
	metrics *metrics.AppMetrics
}

// NewBridge m 可为 nil
func NewBridge(conn Conn, devices DeviceLookup, cfg cfgpkg.MQTTConfig, logger *zap.Logger, m *metrics.AppMetrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		conn:    conn,
		devices: devices,
		topics:  NewTopics(cfg.TopicPrefix),
		qos:     cfg.QoS,
		logger:  logger,
		metrics: m,
	}
}

// Start 订阅所有命令主题
func (b *Bridge) Start() error {
	topic := b.topics.AllCommands()
	if err := b.conn.Subscribe(topic, b.qos, b.HandleCommand); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	b.logger.Info("mqtt bridge subscribed", zap.String("topic", topic))
	return nil
}

// HandleCommand 处理一条命令消息
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	serial, capability, err := b.topics.ParseCommand(topic)
	if err != nil {
		return err
	}
	err = b.execute(serial, capability, string(payload))
	if b.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		b.metrics.MQTTCommandsTotal.WithLabelValues(capability, result).Inc()
	}
	if err != nil {
		return fmt.Errorf("command %s for %d: %w", capability, serial, err)
	}
	return nil
}

func (b *Bridge) execute(serial uint32, capability, payload string) error {
	d, ok := b.devices.Get(serial)
	if !ok {
		return ErrUnknownDevice
	}

	switch capability {
	case CapPower:
		on, err := ParsePower(payload)
		if err != nil {
			return err
		}
		return d.SetPower(on)
	case CapMode:
		mode, err := dreamscreen.ParseMode(payload)
		if err != nil {
			return err
		}
		return d.SetMode(mode)
	case CapScene:
		scene, err := dreamscreen.ParseScene(payload)
		if err != nil {
			return err
		}
		return d.SetScene(scene)
	case CapColor:
		c, err := dreamscreen.ParseColor(payload)
		if err != nil {
			return err
		}
		return d.SetColor(c)
	case CapInput:
		n, err := ParseInput(payload)
		if err != nil {
			return err
		}
		return d.SetInput(n)
	case CapRefresh:
		_, err := d.RequestRefresh()
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
}

// Name 事件 sink 名称
func (b *Bridge) Name() string { return "mqtt" }

// Handle 把设备事件发布为 retained 状态
func (b *Bridge) Handle(_ context.Context, e events.Event) error {
	if !b.conn.IsConnected() {
		return ErrNotConnected
	}

	switch e.Type {
	case events.TypeDeviceStatus:
		payload, err := json.Marshal(e.Data)
		if err != nil {
			return err
		}
		return b.conn.Publish(b.topics.Status(e.Serial), payload, b.qos, true)
	case events.TypeDeviceLinked:
		addr, _ := e.Data["address"].(string)
		return b.conn.Publish(b.topics.State(e.Serial, "address"), []byte(addr), b.qos, true)
	}

	capability := e.Type.Capability()
	if capability == "" {
		return nil
	}
	payload, err := formatValue(e.Value())
	if err != nil {
		return err
	}
	return b.conn.Publish(b.topics.State(e.Serial, capability), payload, b.qos, true)
}

// 状态值的文本形式与命令载荷格式一致
func formatValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return []byte(x), nil
	case bool:
		return []byte(formatPower(x)), nil
	case int:
		return []byte(strconv.Itoa(x)), nil
	case nil:
		return nil, errors.New("event has no value")
	}
	return json.Marshal(v)
}
