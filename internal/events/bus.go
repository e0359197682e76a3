package events

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultQueueSize 事件队列默认容量
const DefaultQueueSize = 1024

// Sink 事件消费方，由总线的单个 worker 顺序调用
type Sink interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Bus 异步事件总线：有界队列 + 单个 worker
// Publish 从不阻塞，队列满时丢弃并计数
type Bus struct {
	queue   chan Event
	logger  *zap.Logger
	dropped prometheus.Counter

	mu    sync.RWMutex
	sinks []Sink

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewBus 创建事件总线，dropped 可为 nil
func NewBus(size int, logger *zap.Logger, dropped prometheus.Counter) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		queue:   make(chan Event, size),
		logger:  logger,
		dropped: dropped,
		done:    make(chan struct{}),
	}
}

// AddSink 注册消费方
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Publish 非阻塞入队
func (b *Bus) Publish(e Event) {
	select {
	case b.queue <- e:
	default:
		if b.dropped != nil {
			b.dropped.Inc()
		}
		b.logger.Warn("event queue full, dropping event",
			zap.String("event_type", string(e.Type)),
			zap.Uint32("serial", e.Serial))
	}
}

// Start 启动 worker（只生效一次）
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		go b.run(ctx)
	})
}

// Stop 停止 worker，并把已入队的事件处理完
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel == nil {
			close(b.done)
			return
		}
		b.cancel()
		<-b.done
	})
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case e := <-b.queue:
			b.dispatch(context.Background(), e)
		}
	}
}

func (b *Bus) drain() {
	for {
		select {
		case e := <-b.queue:
			b.dispatch(context.Background(), e)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Handle(ctx, e); err != nil {
			b.logger.Error("event sink failed",
				zap.String("sink", s.Name()),
				zap.String("event_id", e.ID),
				zap.String("event_type", string(e.Type)),
				zap.Error(err))
		}
	}
}
