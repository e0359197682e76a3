package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPinger Redis 客户端需要提供的能力
type RedisPinger interface {
	HealthCheck(ctx context.Context) error
	PoolStats() *redis.PoolStats
}

// RedisChecker 事件发布所用 Redis 的健康检查
// 事件发布是旁路功能，Redis 故障只降级不判不健康
type RedisChecker struct {
	client RedisPinger
}

// NewRedisChecker 创建 Redis 检查器
func NewRedisChecker(client RedisPinger) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.client.HealthCheck(ctx); err != nil {
		return timed(start, CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
		})
	}

	stats := c.client.PoolStats()
	details := map[string]any{}
	status, message := StatusHealthy, "ok"
	if stats != nil {
		utilization := 0.0
		if stats.TotalConns > 0 {
			utilization = float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
		}
		if utilization > 0.9 {
			status, message = StatusDegraded, "connection pool near limit"
		}
		details["total_conns"] = stats.TotalConns
		details["idle_conns"] = stats.IdleConns
		details["timeouts"] = stats.Timeouts
		details["utilization"] = fmt.Sprintf("%.1f%%", utilization*100)
	}
	return timed(start, CheckResult{Status: status, Message: message, Details: details})
}
