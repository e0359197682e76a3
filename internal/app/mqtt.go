package app

import (
	"go.uber.org/zap"

	mqttbridge "github.com/taoyao-code/dreamscreen-gateway/internal/bridge/mqtt"
	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/events"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
)

// NewMQTTBridge 连接 broker、订阅命令主题，并把桥接注册为事件 sink
// 未启用时返回 nil, nil
func NewMQTTBridge(
	cfg cfgpkg.MQTTConfig,
	serverID string,
	devices mqttbridge.DeviceLookup,
	bus *events.Bus,
	appm *metrics.AppMetrics,
	logger *zap.Logger,
) (*mqttbridge.Client, error) {
	if !cfg.Enabled {
		logger.Info("mqtt bridge disabled")
		return nil, nil
	}
	if cfg.ClientID == "" {
		cfg.ClientID = serverID
	}

	log := logger.With(zap.String("component", "mqtt"))
	client, err := mqttbridge.Connect(cfg, log)
	if err != nil {
		return nil, err
	}

	bridge := mqttbridge.NewBridge(client, devices, cfg, log, appm)
	if err := bridge.Start(); err != nil {
		_ = client.Close()
		return nil, err
	}
	bus.AddSink(bridge)

	logger.Info("mqtt bridge started",
		zap.String("broker", cfg.Broker),
		zap.String("topic_prefix", cfg.TopicPrefix))
	return client, nil
}
