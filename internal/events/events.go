package events

import (
	"time"

	"github.com/google/uuid"
)

// Type 事件类型
type Type string

const (
	// TypeDeviceLinked 序列号匹配，设备地址已绑定
	TypeDeviceLinked Type = "device.linked"

	// TypeDeviceStatus 在线状态变化（ONLINE/OFFLINE + 原因）
	TypeDeviceStatus Type = "device.status"

	// TypePowerChanged 电源状态
	TypePowerChanged Type = "power.changed"

	// TypeModeChanged 工作模式
	TypeModeChanged Type = "mode.changed"

	// TypeSceneChanged 氛围场景
	TypeSceneChanged Type = "scene.changed"

	// TypeColorChanged 氛围颜色
	TypeColorChanged Type = "color.changed"

	// TypeInputChanged HDMI 输入口（仅 TV 机型）
	TypeInputChanged Type = "input.changed"

	// TypeInputNamesChanged 三个输入口名称（仅 TV 机型）
	TypeInputNamesChanged Type = "input_names.changed"
)

// Capability 事件对应的能力名称（MQTT 主题的最后一段）
func (t Type) Capability() string {
	switch t {
	case TypePowerChanged:
		return "power"
	case TypeModeChanged:
		return "mode"
	case TypeSceneChanged:
		return "scene"
	case TypeColorChanged:
		return "color"
	case TypeInputChanged:
		return "input"
	case TypeInputNamesChanged:
		return "input_names"
	}
	return ""
}

// Event 设备状态通知
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Serial    uint32         `json:"serial"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// New 创建事件
func New(t Type, serial uint32, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Serial:    serial,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Value 单值事件的取值（Data["value"]）
func (e Event) Value() any {
	return e.Data["value"]
}

// Publisher 事件发布方（不得阻塞调用方）
type Publisher interface {
	Publish(e Event)
}

// PublisherFunc 函数适配器
type PublisherFunc func(e Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

// Discard 丢弃所有事件
var Discard Publisher = PublisherFunc(func(Event) {})
