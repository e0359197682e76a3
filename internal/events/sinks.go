package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogSink 把事件写入日志
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志消费方
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Handle(_ context.Context, e Event) error {
	s.logger.Info("device event",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.Uint32("serial", e.Serial),
		zap.Any("data", e.Data))
	return nil
}

// DefaultRedisChannel 默认发布频道
const DefaultRedisChannel = "dreamscreen:events"

// RedisSink 以 JSON 形式 PUBLISH 到 Redis 频道
type RedisSink struct {
	client  redis.Cmdable
	channel string
}

// NewRedisSink 创建 Redis 消费方
func NewRedisSink(client redis.Cmdable, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Handle(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// SinkFunc 函数适配器
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, e Event) error
}

func (s SinkFunc) Name() string { return s.SinkName }

func (s SinkFunc) Handle(ctx context.Context, e Event) error { return s.Fn(ctx, e) }
