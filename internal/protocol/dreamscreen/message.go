package dreamscreen

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// 产品 ID（Refresh 载荷最后一个字节）
const (
	ProductHD       byte = 0x01
	Product4K       byte = 0x02
	ProductSidekick byte = 0x03
)

// Refresh 载荷字段偏移
const (
	refreshMinPayload   = 73 // len 字段必须 > 77
	refreshTvMinPayload = 123
	offName             = 0
	nameLen             = 16
	offGroup            = 32
	offMode             = 33
	offRed              = 40
	offGreen            = 41
	offBlue             = 42
	offScene            = 62
	offInput            = 73
	offInputNames       = 75
)

var (
	// ErrUnknownCommand 命令对不在消息目录中，帧本身合法但不产生消息
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidPayload 载荷长度不满足该消息类型
	ErrInvalidPayload = errors.New("invalid payload")
)

// Message 消息目录中的一种类型化消息
type Message interface {
	Command() Command
	// MarshalPayload 出站载荷
	MarshalPayload() []byte
	groupID() byte
}

// GroupOf 消息所属组号
func GroupOf(m Message) byte {
	return m.groupID()
}

// RefreshMessage 设备状态快照（出站时为零载荷的刷新请求）
type RefreshMessage struct {
	Group        byte
	Name         string
	DeviceGroup  byte
	Mode         Mode
	Color        RGB
	AmbientScene byte
	ProductID    byte
}

func (RefreshMessage) Command() Command { return CmdRefresh }
func (RefreshMessage) MarshalPayload() []byte { return nil }
func (m RefreshMessage) groupID() byte { return m.Group }
func (m RefreshMessage) String() string { return "Refresh" }

// RefreshTvMessage TV 机型（HD/4K）的状态快照，额外携带输入口信息
type RefreshTvMessage struct {
	RefreshMessage
	Input      byte
	InputNames [3]string
}

func (m RefreshTvMessage) String() string { return "TV Refresh" }

// ModeMessage 模式
type ModeMessage struct {
	Group byte
	Mode  Mode
}

func (ModeMessage) Command() Command { return CmdMode }
func (m ModeMessage) MarshalPayload() []byte { return []byte{byte(m.Mode)} }
func (m ModeMessage) groupID() byte { return m.Group }
func (m ModeMessage) String() string { return "Mode " + m.Mode.String() }

// ColorMessage 氛围颜色
type ColorMessage struct {
	Group byte
	Color RGB
}

func (ColorMessage) Command() Command { return CmdColor }
func (m ColorMessage) MarshalPayload() []byte {
	return []byte{m.Color.R, m.Color.G, m.Color.B}
}
func (m ColorMessage) groupID() byte { return m.Group }
func (m ColorMessage) String() string { return "Color " + m.Color.String() }

// AmbientModeTypeMessage 氛围类型（0 纯色 / 1 场景）
type AmbientModeTypeMessage struct {
	Group byte
	Type  byte
}

func (AmbientModeTypeMessage) Command() Command { return CmdAmbientModeType }
func (m AmbientModeTypeMessage) MarshalPayload() []byte { return []byte{m.Type} }
func (m AmbientModeTypeMessage) groupID() byte { return m.Group }
func (m AmbientModeTypeMessage) String() string {
	if m.Type == AmbientTypeColor {
		return "AmbientModeType COLOR"
	}
	return "AmbientModeType SCENE"
}

// SceneMessage 场景字节
type SceneMessage struct {
	Group byte
	Scene byte
}

func (SceneMessage) Command() Command { return CmdScene }
func (m SceneMessage) MarshalPayload() []byte { return []byte{m.Scene} }
func (m SceneMessage) groupID() byte { return m.Group }
func (m SceneMessage) String() string { return fmt.Sprintf("Scene %d", int8(m.Scene)) }

// InputMessage HDMI 输入口（仅 TV 机型）
type InputMessage struct {
	Group byte
	Input byte
}

func (InputMessage) Command() Command { return CmdInput }
func (m InputMessage) MarshalPayload() []byte { return []byte{m.Input} }
func (m InputMessage) groupID() byte { return m.Group }
func (m InputMessage) String() string { return fmt.Sprintf("Input %d", m.Input) }

// SerialNumberMessage 发现响应，携带 32 位序列号（大端）
type SerialNumberMessage struct {
	Group  byte
	Serial uint32
}

func (SerialNumberMessage) Command() Command { return CmdSerialNumber }
func (m SerialNumberMessage) MarshalPayload() []byte {
	return binary.BigEndian.AppendUint32(nil, m.Serial)
}
func (m SerialNumberMessage) groupID() byte { return m.Group }
func (m SerialNumberMessage) String() string { return fmt.Sprintf("Serial Number %d", m.Serial) }

// ScanMessage 零载荷发现请求
type ScanMessage struct {
	Group byte
}

func (ScanMessage) Command() Command { return CmdSerialNumber }
func (ScanMessage) MarshalPayload() []byte { return nil }
func (m ScanMessage) groupID() byte { return m.Group }
func (ScanMessage) String() string { return "Scan" }

// NewRefreshRequest 刷新请求（组号 0xFF）
func NewRefreshRequest() RefreshMessage {
	return RefreshMessage{Group: GroupAny}
}

// NewScan 发现请求（组号 0xFF）
func NewScan() ScanMessage {
	return ScanMessage{Group: GroupAny}
}

// ParseMessage 按命令对把帧解释为类型化消息
func ParseMessage(f *Frame) (Message, error) {
	p := f.Payload
	switch f.Command {
	case CmdRefresh:
		return parseRefresh(f.Group, p)
	case CmdSerialNumber:
		if len(p) == 0 {
			return ScanMessage{Group: f.Group}, nil
		}
		if len(p) < 4 {
			return nil, fmt.Errorf("%w: serial number needs 4 bytes, got %d", ErrInvalidPayload, len(p))
		}
		return SerialNumberMessage{Group: f.Group, Serial: binary.BigEndian.Uint32(p)}, nil
	case CmdMode:
		if err := needPayload(f, 1); err != nil {
			return nil, err
		}
		return ModeMessage{Group: f.Group, Mode: Mode(p[0])}, nil
	case CmdColor:
		if err := needPayload(f, 3); err != nil {
			return nil, err
		}
		return ColorMessage{Group: f.Group, Color: RGB{R: p[0], G: p[1], B: p[2]}}, nil
	case CmdAmbientModeType:
		if err := needPayload(f, 1); err != nil {
			return nil, err
		}
		return AmbientModeTypeMessage{Group: f.Group, Type: p[0]}, nil
	case CmdScene:
		if err := needPayload(f, 1); err != nil {
			return nil, err
		}
		return SceneMessage{Group: f.Group, Scene: p[0]}, nil
	case CmdInput:
		if err := needPayload(f, 1); err != nil {
			return nil, err
		}
		return InputMessage{Group: f.Group, Input: p[0]}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, f.Command)
}

func needPayload(f *Frame, n int) error {
	if len(f.Payload) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidPayload, f.Command, n, len(f.Payload))
	}
	return nil
}

func parseRefresh(group byte, p []byte) (Message, error) {
	if len(p) == 0 {
		// 其他控制端发出的刷新请求
		return RefreshMessage{Group: group}, nil
	}
	if len(p) < refreshMinPayload {
		return nil, fmt.Errorf("%w: refresh needs %d bytes, got %d", ErrInvalidPayload, refreshMinPayload, len(p))
	}
	m := RefreshMessage{
		Group:        group,
		Name:         fixedString(p[offName : offName+nameLen]),
		DeviceGroup:  p[offGroup],
		Mode:         Mode(p[offMode]),
		Color:        RGB{R: p[offRed], G: p[offGreen], B: p[offBlue]},
		AmbientScene: p[offScene],
		ProductID:    p[len(p)-1],
	}
	if (m.ProductID != ProductHD && m.ProductID != Product4K) || len(p) < refreshTvMinPayload {
		return m, nil
	}
	tv := RefreshTvMessage{RefreshMessage: m, Input: p[offInput]}
	for i := range tv.InputNames {
		off := offInputNames + i*nameLen
		tv.InputNames[i] = fixedString(p[off : off+nameLen])
	}
	return tv, nil
}

// fixedString 定长字段去除 NUL 与空白
func fixedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

// DecodeMessage 解码帧并解释消息；未知命令返回帧与 ErrUnknownCommand
func DecodeMessage(b []byte) (*Frame, Message, error) {
	f, err := Decode(b, 0)
	if err != nil {
		return nil, nil, err
	}
	m, err := ParseMessage(f)
	return f, m, err
}

// 出站标志由消息类型决定，调用方不直接设置
func flagsFor(m Message, def byte) byte {
	switch m.(type) {
	case RefreshMessage, RefreshTvMessage, ScanMessage, SerialNumberMessage:
		return FlagBroadcastRead
	}
	return def
}

// WriteFrame 写请求帧
func WriteFrame(m Message) []byte {
	return Encode(m.groupID(), flagsFor(m, FlagWrite), m.Command(), m.MarshalPayload())
}

// ReadFrame 单播读请求帧
func ReadFrame(m Message) []byte {
	return Encode(m.groupID(), flagsFor(m, FlagUnicastRead), m.Command(), m.MarshalPayload())
}

// BroadcastFrame 广播读请求帧
func BroadcastFrame(m Message) []byte {
	return Encode(m.groupID(), FlagBroadcastRead, m.Command(), m.MarshalPayload())
}
