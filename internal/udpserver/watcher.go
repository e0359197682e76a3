package udpserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NetworkListener 网络配置变化的接收方（设备注册表）
// 由它决定是否需要重启传输层
type NetworkListener interface {
	OnNetworkChanged(ctx context.Context) error
}

// NetworkWatcher 周期性重新计算网络配置，发生变化时通知 listener
type NetworkWatcher struct {
	server   *Server
	listener NetworkListener
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	primed bool
	last   NetConfig
}

// NewNetworkWatcher interval <= 0 时 Run 立即返回
func NewNetworkWatcher(s *Server, l NetworkListener, interval time.Duration, logger *zap.Logger) *NetworkWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkWatcher{server: s, listener: l, interval: interval, logger: logger}
}

// Run 阻塞直到 ctx 取消
func (w *NetworkWatcher) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check 比较一次当前与上次观察到的网络配置；返回是否发生了变化
// 首次比较的基准是服务当前生效的配置；主机地址消失也算变化
func (w *NetworkWatcher) Check(ctx context.Context) bool {
	s := w.server
	current, err := ResolveNetConfig(s.cfg.HostAddr, s.cfg.BroadcastAddr, s.ifaces)
	if err != nil {
		w.logger.Debug("network config unavailable", zap.Error(err))
		current = NetConfig{}
	}

	w.mu.Lock()
	if !w.primed {
		w.last, w.primed = s.NetConfig(), true
	}
	prev := w.last
	w.last = current
	w.mu.Unlock()

	if current == prev {
		return false
	}
	w.logger.Info("network config changed",
		zap.Stringer("old", prev),
		zap.Stringer("new", current))
	if w.listener != nil {
		if err := w.listener.OnNetworkChanged(ctx); err != nil {
			w.logger.Error("failed to apply network change", zap.Error(err))
		}
	}
	return true
}
