package device

import (
	"fmt"
	"strings"

	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

// Kind 设备机型
type Kind string

const (
	KindHD       Kind = "hd"
	Kind4K       Kind = "4k"
	KindSidekick Kind = "sidekick"
)

// ParseKind 解析机型名称（大小写不敏感）
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindHD, Kind4K, KindSidekick:
		return k, nil
	}
	return "", fmt.Errorf("unknown device kind %q", s)
}

// ProductID Refresh 中对应的产品 ID
func (k Kind) ProductID() byte {
	switch k {
	case KindHD:
		return dreamscreen.ProductHD
	case Kind4K:
		return dreamscreen.Product4K
	case KindSidekick:
		return dreamscreen.ProductSidekick
	}
	return 0
}

// TV HD/4K 机型带 HDMI 输入口
func (k Kind) TV() bool {
	return k == KindHD || k == Kind4K
}

// Phase 设备协议阶段
type Phase string

const (
	PhaseUnlinked  Phase = "UNLINKED"
	PhaseLinkedOff Phase = "LINKED_OFF"
	PhaseLinkedOn  Phase = "LINKED_ON"
)

// Status 对外的在线状态
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// StatusDetail 离线原因
type StatusDetail string

const (
	DetailNone               StatusDetail = ""
	DetailCommunicationError StatusDetail = "COMMUNICATION_ERROR"
	DetailConfigurationError StatusDetail = "CONFIGURATION_ERROR"
)
