package udpserver

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// ErrNoHostAddress 找不到可用的主机 IPv4 地址（不可重试的配置错误）
var ErrNoHostAddress = errors.New("no usable host IPv4 address")

// limitedBroadcast 无法推导子网时使用的受限广播地址
var limitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// NetConfig 主机网络配置
type NetConfig struct {
	Host      netip.Addr
	Prefix    netip.Prefix // 可能无效（手工指定主机地址且未找到对应接口）
	Broadcast netip.Addr
}

func (c NetConfig) String() string {
	return fmt.Sprintf("host=%s prefix=%s broadcast=%s", c.Host, c.Prefix, c.Broadcast)
}

// BroadcastAddress 把前缀的主机位全部置 1
func BroadcastAddress(p netip.Prefix) netip.Addr {
	a := p.Addr().Unmap()
	if !a.Is4() {
		return netip.Addr{}
	}
	b := a.As4()
	bits := p.Bits()
	for i := 0; i < 4; i++ {
		// 本字节中属于网络部分的位数
		netBits := bits - i*8
		switch {
		case netBits >= 8:
			continue
		case netBits <= 0:
			b[i] = 0xFF
		default:
			b[i] |= 0xFF >> netBits
		}
	}
	return netip.AddrFrom4(b)
}

// InterfaceAddrs 主机 IPv4 前缀列表（跳过 down 与回环接口）
type InterfaceAddrs func() ([]netip.Prefix, error)

// SystemInterfaceAddrs 从系统网络接口读取
func SystemInterfaceAddrs() ([]netip.Prefix, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var out []netip.Prefix
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipn.IP)
			if !ok {
				continue
			}
			ip = ip.Unmap()
			if !ip.Is4() || ip.IsLinkLocalUnicast() {
				continue
			}
			ones, _ := ipn.Mask.Size()
			out = append(out, netip.PrefixFrom(ip, ones))
		}
	}
	return out, nil
}

// ResolveNetConfig 计算主机与广播地址
// 显式配置的广播地址优先；否则由主机地址与前缀长度推导
func ResolveNetConfig(hostOverride, broadcastOverride string, list InterfaceAddrs) (NetConfig, error) {
	if list == nil {
		list = SystemInterfaceAddrs
	}
	prefixes, err := list()
	if err != nil {
		prefixes = nil
	}

	var cfg NetConfig
	if hostOverride != "" {
		host, err := netip.ParseAddr(hostOverride)
		if err != nil || !host.Unmap().Is4() {
			return cfg, fmt.Errorf("%w: invalid host address %q", ErrNoHostAddress, hostOverride)
		}
		cfg.Host = host.Unmap()
		for _, p := range prefixes {
			if p.Addr() == cfg.Host {
				cfg.Prefix = p
				break
			}
		}
	} else {
		if len(prefixes) == 0 {
			return cfg, ErrNoHostAddress
		}
		cfg.Host, cfg.Prefix = prefixes[0].Addr(), prefixes[0]
	}

	switch {
	case broadcastOverride != "":
		b, err := netip.ParseAddr(broadcastOverride)
		if err != nil || !b.Unmap().Is4() {
			return cfg, fmt.Errorf("invalid broadcast address %q", broadcastOverride)
		}
		cfg.Broadcast = b.Unmap()
	case cfg.Prefix.IsValid():
		cfg.Broadcast = BroadcastAddress(cfg.Prefix)
	default:
		cfg.Broadcast = limitedBroadcast
	}
	return cfg, nil
}
