package dreamscreen

import (
	"errors"
	"fmt"
)

// 帧格式：0xFC(1) + len(1) + group(1) + flags(1) + cmdUpper(1) + cmdLower(1) + payload(var) + crc8(1)
// len = payload 长度 + 5；CRC 覆盖从 0xFC 开始的 len+1 个字节
const (
	Magic = 0xFC

	// DefaultPort 设备固定 UDP 端口
	DefaultPort = 8888

	// MaxDatagramSize 接收缓冲区大小（单个数据报上限）
	MaxDatagramSize = 256

	// MaxPayloadSize len 字段只有一个字节
	MaxPayloadSize = 0xFF - lenOverhead

	headerLen   = 6
	lenOverhead = 5 // len 字段 = payload + 5
)

// 标志位：bit0 读请求，bit4 单播，bit5 广播
const (
	FlagRead      byte = 0b00000001
	FlagUnicast   byte = 0b00010000
	FlagBroadcast byte = 0b00100000

	FlagBroadcastRead = FlagBroadcast | FlagRead // 0x21
	FlagUnicastRead   = FlagUnicast | FlagRead   // 0x11
	FlagWrite         = FlagUnicast              // 0x10
)

// GroupAll 组号 0 表示所有组
const GroupAll byte = 0x00

// GroupAny 发现/刷新请求使用的组号
const GroupAny byte = 0xFF

var (
	// ErrMalformed 帧不可解码（长度、帧头或校验失败）
	ErrMalformed = errors.New("malformed frame")
)

// Frame 一个 UDP 数据报对应的协议帧
type Frame struct {
	Group    byte
	Flags    byte
	Command  Command
	Payload  []byte
	Checksum byte
}

// Length 帧内 len 字段的值
func (f *Frame) Length() int {
	return len(f.Payload) + lenOverhead
}

// IsRead 是否为读请求
func (f *Frame) IsRead() bool {
	return f.Flags&FlagRead != 0
}

// Encode 编码帧
// 所有出站消息的载荷都是定长且远小于上限；超过 MaxPayloadSize 属于调用方错误，直接 panic
func Encode(group, flags byte, cmd Command, payload []byte) []byte {
	if len(payload) > MaxPayloadSize {
		panic(fmt.Sprintf("dreamscreen: payload of %d bytes exceeds %d", len(payload), MaxPayloadSize))
	}
	buf := make([]byte, 0, headerLen+len(payload)+1)
	buf = append(buf, Magic, byte(len(payload)+lenOverhead), group, flags, cmd.Upper, cmd.Lower)
	buf = append(buf, payload...)
	return append(buf, CalculateCRC8(buf))
}

// Bytes 重新编码帧
func (f *Frame) Bytes() []byte {
	return Encode(f.Group, f.Flags, f.Command, f.Payload)
}

// Decode 从 b[off:] 解码一帧
// 可用长度 <= 6、帧头不是 0xFC、len 超出可用长度或 CRC 不匹配均返回 ErrMalformed
func Decode(b []byte, off int) (*Frame, error) {
	if off < 0 || off > len(b) {
		return nil, fmt.Errorf("%w: offset %d out of range", ErrMalformed, off)
	}
	avail := len(b) - off
	if avail <= headerLen {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrMalformed, avail)
	}
	if b[off] != Magic {
		return nil, fmt.Errorf("%w: bad marker 0x%02X", ErrMalformed, b[off])
	}
	msgLen := int(b[off+1])
	if msgLen < lenOverhead || msgLen+2 > avail {
		return nil, fmt.Errorf("%w: declared length %d, available %d", ErrMalformed, msgLen, avail)
	}
	end := off + msgLen + 1 // 校验字节位置
	if err := VerifyCRC8(b[off : end+1]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	payload := make([]byte, msgLen-lenOverhead)
	copy(payload, b[off+headerLen:end])
	return &Frame{
		Group:    b[off+2],
		Flags:    b[off+3],
		Command:  Command{Upper: b[off+4], Lower: b[off+5]},
		Payload:  payload,
		Checksum: b[end],
	}, nil
}
