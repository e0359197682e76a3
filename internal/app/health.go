package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/dreamscreen-gateway/internal/health"
	"github.com/taoyao-code/dreamscreen-gateway/internal/registry"
	redisstorage "github.com/taoyao-code/dreamscreen-gateway/internal/storage/redis"
	"github.com/taoyao-code/dreamscreen-gateway/internal/udpserver"
)

// NewHealthAggregator 传输层与设备检查器
func NewHealthAggregator(udp *udpserver.Server, reg *registry.Registry) *health.Aggregator {
	describe := func() map[string]any {
		if !udp.Running() {
			return nil
		}
		nc := udp.NetConfig()
		return map[string]any{
			"host":      nc.Host.String(),
			"broadcast": nc.Broadcast.String(),
		}
	}
	return health.NewAggregator(
		health.NewTransportChecker(udp, reg, describe),
		health.NewDevicesChecker(reg),
	)
}

// RegisterHealthRoutes 注册健康检查路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddRedisChecker 添加 Redis 检查器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}

// AddMQTTChecker 添加 MQTT 连接检查器
func AddMQTTChecker(aggregator *health.Aggregator, conn health.MQTTConn) {
	if conn != nil {
		aggregator.AddChecker(health.NewMQTTChecker(conn))
	}
}
