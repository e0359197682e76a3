package health

import (
	"context"
	"time"
)

// Transport UDP 传输层的可观测状态
type Transport interface {
	Running() bool
}

// DeviceCounter 设备注册表的计数
type DeviceCounter interface {
	Len() int
	OnlineCount() int
}

// TransportChecker 有设备注册时传输层必须在运行
type TransportChecker struct {
	transport Transport
	devices   DeviceCounter
	describe  func() map[string]any
}

// NewTransportChecker describe 可为 nil，用于附加网络配置等细节
func NewTransportChecker(t Transport, devices DeviceCounter, describe func() map[string]any) *TransportChecker {
	return &TransportChecker{transport: t, devices: devices, describe: describe}
}

func (c *TransportChecker) Name() string { return "transport" }

func (c *TransportChecker) Check(context.Context) CheckResult {
	start := time.Now()
	running := c.transport.Running()
	registered := c.devices.Len()

	details := map[string]any{"running": running}
	if c.describe != nil {
		for k, v := range c.describe() {
			details[k] = v
		}
	}

	switch {
	case running:
		return timed(start, CheckResult{Status: StatusHealthy, Message: "ok", Details: details})
	case registered == 0:
		return timed(start, CheckResult{Status: StatusHealthy, Message: "idle, no devices registered", Details: details})
	default:
		return timed(start, CheckResult{Status: StatusUnhealthy, Message: "transport not running", Details: details})
	}
}

// DevicesChecker 已注册设备全部离线时降级
type DevicesChecker struct {
	devices DeviceCounter
}

// NewDevicesChecker 创建设备检查器
func NewDevicesChecker(devices DeviceCounter) *DevicesChecker {
	return &DevicesChecker{devices: devices}
}

func (c *DevicesChecker) Name() string { return "devices" }

func (c *DevicesChecker) Check(context.Context) CheckResult {
	start := time.Now()
	registered, online := c.devices.Len(), c.devices.OnlineCount()
	details := map[string]any{"registered": registered, "online": online}
	if registered > 0 && online == 0 {
		return timed(start, CheckResult{Status: StatusDegraded, Message: "no device online", Details: details})
	}
	return timed(start, CheckResult{Status: StatusHealthy, Message: "ok", Details: details})
}

// MQTTConn MQTT 桥接的连接状态
type MQTTConn interface {
	IsConnected() bool
}

// MQTTChecker MQTT 断线时降级（paho 会自动重连）
type MQTTChecker struct {
	conn MQTTConn
}

// NewMQTTChecker 创建 MQTT 检查器
func NewMQTTChecker(conn MQTTConn) *MQTTChecker {
	return &MQTTChecker{conn: conn}
}

func (c *MQTTChecker) Name() string { return "mqtt" }

func (c *MQTTChecker) Check(context.Context) CheckResult {
	start := time.Now()
	if !c.conn.IsConnected() {
		return timed(start, CheckResult{Status: StatusDegraded, Message: "broker disconnected"})
	}
	return timed(start, CheckResult{Status: StatusHealthy, Message: "ok"})
}
