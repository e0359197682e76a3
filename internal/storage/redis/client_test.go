package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
)

func TestNewClient_Disabled(t *testing.T) {
	c, err := NewClient(context.Background(), cfgpkg.RedisConfig{Enabled: false})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, c)
	assert.NoError(t, c.Close(), "nil client close")
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(context.Background(), cfgpkg.RedisConfig{
		Enabled:     true,
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	})
	assert.Error(t, err)
}

// 需要本地 Redis，连不上时跳过
func TestClient_PublishLive(t *testing.T) {
	ctx := context.Background()
	c, err := NewClient(ctx, cfgpkg.RedisConfig{
		Enabled:     true,
		Addr:        "localhost:6379",
		DialTimeout: 200 * time.Millisecond,
		Channel:     "dreamscreen:test",
	})
	if err != nil {
		t.Skip("需要Redis服务器，跳过测试")
	}
	defer c.Close()

	require.NoError(t, c.HealthCheck(ctx))
	assert.Equal(t, "dreamscreen:test", c.Channel())
	assert.NotNil(t, c.PoolStats())

	sub := c.Subscribe(ctx, c.Channel())
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, c.Channel(), `{"type":"power.changed"}`).Err())
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"power.changed"}`, msg.Payload)
}
