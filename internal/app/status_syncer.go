package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/events"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
)

// DeviceSet 状态同步器依赖的注册表能力
type DeviceSet interface {
	RequestRefreshAll()
	Len() int
	OnlineCount() int
}

// StatusSyncer 设备状态同步器
//   - 定期对所有设备发起（节流的）状态刷新，未绑定的设备借此重新广播 Scan
//   - 作为事件 sink 在在线状态变化时更新 devices_online
type StatusSyncer struct {
	devices DeviceSet
	metrics *metrics.AppMetrics
	logger  *zap.Logger

	interval time.Duration

	// 统计
	statsRounds int64
}

// NewStatusSyncer interval <= 0 时只更新指标，不做周期刷新
func NewStatusSyncer(devices DeviceSet, interval time.Duration, appm *metrics.AppMetrics, logger *zap.Logger) *StatusSyncer {
	return &StatusSyncer{
		devices:  devices,
		metrics:  appm,
		logger:   logger.With(zap.String("component", "status_syncer")),
		interval: interval,
	}
}

// Start 阻塞运行直到 ctx 取消
func (s *StatusSyncer) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.logger.Info("status syncer started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("status syncer stopped", zap.Int64("rounds", s.statsRounds))
			return
		case <-ticker.C:
			s.syncAll()
		}
	}
}

func (s *StatusSyncer) syncAll() {
	s.statsRounds++
	s.devices.RequestRefreshAll()
	s.updateGauges()
	s.logger.Debug("status sync round",
		zap.Int("registered", s.devices.Len()),
		zap.Int("online", s.devices.OnlineCount()))
}

func (s *StatusSyncer) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.DevicesOnline.Set(float64(s.devices.OnlineCount()))
}

func (s *StatusSyncer) Name() string { return "status" }

// Handle 在线状态事件触发指标刷新
func (s *StatusSyncer) Handle(_ context.Context, e events.Event) error {
	if e.Type == events.TypeDeviceStatus {
		s.updateGauges()
	}
	return nil
}
