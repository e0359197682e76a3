package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// 能力名称（主题最后一段）
const (
	CapPower      = "power"
	CapMode       = "mode"
	CapScene      = "scene"
	CapColor      = "color"
	CapInput      = "input"
	CapInputNames = "input_names"
	CapRefresh    = "refresh"
)

// Topics 主题构造：
//
//	<prefix>/command/<serial>/<capability>   主机 -> 网关
//	<prefix>/state/<serial>/<capability>     网关 -> 主机（retained）
//	<prefix>/status/<serial>                 设备在线状态（retained）
//	<prefix>/gateway/status                  网关 online/offline（LWT）
type Topics struct {
	prefix string
}

func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "dreamscreen"
	}
	return Topics{prefix: prefix}
}

func (t Topics) Command(serial uint32, capability string) string {
	return fmt.Sprintf("%s/command/%d/%s", t.prefix, serial, capability)
}

// AllCommands 订阅全部命令的通配主题
func (t Topics) AllCommands() string {
	return t.prefix + "/command/+/+"
}

func (t Topics) State(serial uint32, capability string) string {
	return fmt.Sprintf("%s/state/%d/%s", t.prefix, serial, capability)
}

func (t Topics) Status(serial uint32) string {
	return fmt.Sprintf("%s/status/%d", t.prefix, serial)
}

func (t Topics) Gateway() string {
	return t.prefix + "/gateway/status"
}

// ParseCommand 从命令主题中取出序列号与能力
func (t Topics) ParseCommand(topic string) (uint32, string, error) {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/command/")
	if !ok {
		return 0, "", fmt.Errorf("not a command topic: %q", topic)
	}
	serialStr, capability, ok := strings.Cut(rest, "/")
	if !ok || capability == "" || strings.Contains(capability, "/") {
		return 0, "", fmt.Errorf("malformed command topic: %q", topic)
	}
	serial, err := strconv.ParseUint(serialStr, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("invalid serial in topic %q: %w", topic, err)
	}
	return uint32(serial), capability, nil
}
