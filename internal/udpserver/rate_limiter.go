package udpserver

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter 入站数据报的令牌桶限流，超出速率的数据报直接丢弃
type RateLimiter struct {
	limiter       *rate.Limiter
	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewRateLimiter 创建限流器，ratePerSec <= 0 时不限流（返回 nil）
func NewRateLimiter(ratePerSec int, burst int) *RateLimiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = ratePerSec * 2
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Allow 非阻塞检查；nil 限流器总是放行
func (l *RateLimiter) Allow() bool {
	if l == nil {
		return true
	}
	if l.limiter.Allow() {
		l.allowedCount.Add(1)
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

// RejectedCount 被丢弃的数据报数（累计）
func (l *RateLimiter) RejectedCount() int64 {
	if l == nil {
		return 0
	}
	return l.rejectedCount.Load()
}
