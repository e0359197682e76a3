package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/events"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
	redisstorage "github.com/taoyao-code/dreamscreen-gateway/internal/storage/redis"
)

// NewEventBus 创建事件总线，挂载日志 sink；Redis 可用时再挂载 PUBLISH sink
// worker 由调用方 Start
func NewEventBus(
	cfg cfgpkg.EventsConfig,
	redisClient *redisstorage.Client,
	appm *metrics.AppMetrics,
	logger *zap.Logger,
) *events.Bus {
	log := logger.With(zap.String("component", "events"))
	bus := events.NewBus(cfg.QueueSize, log, appm.EventsDropped)
	bus.AddSink(events.NewLogSink(log))

	if redisClient == nil {
		logger.Info("redis event sink disabled")
		return bus
	}
	bus.AddSink(events.NewRedisSink(redisClient.Client, redisClient.Channel()))
	logger.Info("redis event sink enabled", zap.String("channel", redisClient.Channel()))
	return bus
}
