package registry

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/device"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

var (
	// ErrDuplicateDevice 序列号已注册
	ErrDuplicateDevice = errors.New("device already registered")
	// ErrDeviceNotFound 序列号未注册
	ErrDeviceNotFound = errors.New("device not found")
)

// Transport 注册表依赖的传输层：发送能力加生命周期
type Transport interface {
	device.Sender
	Start(ctx context.Context) error
	Stop() error
	// Restart 按当前网络配置重新打开；未运行时等同于 Start
	Restart(ctx context.Context) error
	Running() bool
}

// IsConfigurationError 判断传输层启动失败是否属于不可重试的配置错误
type IsConfigurationError func(err error) bool

// Registry 序列号 -> 设备、地址 -> 设备两张表，负责入站消息路由
// 第一台设备注册时启动传输层，最后一台注销时停止
type Registry struct {
	transport Transport
	logger    *zap.Logger
	metrics   *metrics.AppMetrics
	devCfg    device.Config
	devOpts   []device.Option
	isConfErr IsConfigurationError

	// lifeMu 串行化传输层的启停判断（注册、注销、网络变化）
	// 持有顺序：lifeMu -> mu；接收协程只取 mu
	lifeMu sync.Mutex

	mu      sync.RWMutex
	devices map[uint32]*device.Device
	byAddr  map[netip.Addr]*device.Device
}

// Option 注册表选项
type Option func(*Registry)

// WithMetrics 指定业务指标
func WithMetrics(m *metrics.AppMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithDeviceDefaults 新设备的发送间隔与刷新节流
func WithDeviceDefaults(cfg device.Config) Option {
	return func(r *Registry) { r.devCfg = cfg }
}

// WithDeviceOptions 新设备共享的依赖（调度器、事件发布、时钟）
func WithDeviceOptions(opts ...device.Option) Option {
	return func(r *Registry) { r.devOpts = append(r.devOpts, opts...) }
}

// WithConfigurationErrorCheck 指定配置错误判定
func WithConfigurationErrorCheck(fn IsConfigurationError) Option {
	return func(r *Registry) { r.isConfErr = fn }
}

// New 创建注册表
func New(t Transport, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		transport: t,
		logger:    logger,
		isConfErr: func(error) bool { return false },
		devices:   make(map[uint32]*device.Device),
		byAddr:    make(map[netip.Addr]*device.Device),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 注册设备；第一台设备注册时启动传输层
// 传输层因网络配置失败无法启动时，设备仍然注册但标记为配置错误
func (r *Registry) Register(ctx context.Context, serial uint32, kind device.Kind, name string) (*device.Device, error) {
	cfg := r.devCfg
	cfg.Serial, cfg.Kind, cfg.Name = serial, kind, name
	opts := append([]device.Option{device.WithLogger(r.logger)}, r.devOpts...)
	d := device.New(cfg, r.transport, opts...)

	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	r.mu.Lock()
	if _, ok := r.devices[serial]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrDuplicateDevice, serial)
	}
	r.devices[serial] = d
	count := len(r.devices)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.DevicesRegistered.Set(float64(count))
	}
	r.logger.Info("device registered",
		zap.Uint32("serial", serial),
		zap.String("kind", string(kind)),
		zap.String("name", name))

	if !r.transport.Running() {
		if err := r.transport.Start(ctx); err != nil {
			r.logger.Error("transport start failed", zap.Error(err))
			if r.isConfErr(err) {
				d.MarkConfigurationError()
			}
		}
	}
	return d, nil
}

// Deregister 注销设备；最后一台设备注销时停止传输层
func (r *Registry) Deregister(serial uint32) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	r.mu.Lock()
	d, ok := r.devices[serial]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDeviceNotFound, serial)
	}
	delete(r.devices, serial)
	for addr, x := range r.byAddr {
		if x == d {
			delete(r.byAddr, addr)
		}
	}
	count := len(r.devices)
	r.mu.Unlock()

	d.Close()
	if r.metrics != nil {
		r.metrics.DevicesRegistered.Set(float64(count))
	}
	r.logger.Info("device deregistered", zap.Uint32("serial", serial))

	if count == 0 {
		if err := r.transport.Stop(); err != nil {
			r.logger.Warn("transport stop failed", zap.Error(err))
		}
	}
	return nil
}

// OnNetworkChanged 有设备注册时重启（或首次启动）传输层
// 失败且属于配置错误时所有设备标记为配置错误；成功时撤销该标记并刷新状态
func (r *Registry) OnNetworkChanged(ctx context.Context) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	devices := r.List()
	if len(devices) == 0 {
		return nil
	}
	r.logger.Info("network changed, restarting transport", zap.Int("devices", len(devices)))
	if err := r.transport.Restart(ctx); err != nil {
		if r.isConfErr(err) {
			for _, d := range devices {
				d.MarkConfigurationError()
			}
		}
		return fmt.Errorf("restart transport: %w", err)
	}
	for _, d := range devices {
		d.ClearConfigurationError()
		if _, err := d.RequestRefresh(); err != nil {
			r.logger.Warn("refresh after network change failed", zap.Uint32("serial", d.Serial()), zap.Error(err))
		}
	}
	return nil
}

// Get 按序列号查找
func (r *Registry) Get(serial uint32) (*device.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[serial]
	return d, ok
}

// List 按序列号排序的全部设备
func (r *Registry) List() []*device.Device {
	r.mu.RLock()
	out := make([]*device.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Serial() < out[j].Serial() })
	return out
}

// Len 已注册设备数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// OnlineCount 在线设备数
func (r *Registry) OnlineCount() int {
	n := 0
	for _, d := range r.List() {
		if d.Online() {
			n++
		}
	}
	return n
}

// Dispatch 入站消息路由，在接收协程上同步执行
//   - SerialNumber：序列号匹配的设备绑定来源地址
//   - 其他：组号为 0 投递给所有设备，否则只投递给组号相同的设备；
//     设备再拒绝来源地址不是自己的消息
//
// Refresh 携带设备的真实组号，不按组过滤
func (r *Registry) Dispatch(from netip.Addr, f *dreamscreen.Frame, m dreamscreen.Message) {
	if r.metrics != nil {
		r.metrics.MessageRouteTotal.WithLabelValues(f.Command.String()).Inc()
	}

	switch msg := m.(type) {
	case dreamscreen.SerialNumberMessage:
		r.link(msg.Serial, from)
		return
	case dreamscreen.ScanMessage:
		return
	}

	_, refresh := m.(dreamscreen.RefreshMessage)
	if _, tv := m.(dreamscreen.RefreshTvMessage); tv {
		refresh = true
	}

	r.mu.RLock()
	d, ok := r.byAddr[from]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("message from unknown address", zap.Stringer("from", from), zap.Stringer("command", f.Command))
		return
	}
	if f.Group != dreamscreen.GroupAll && !refresh && d.Group() != f.Group {
		return
	}
	if !d.HandleMessage(from, m) {
		r.logger.Debug("message not applicable",
			zap.Uint32("serial", d.Serial()),
			zap.Stringer("command", f.Command))
	}
}

func (r *Registry) link(serial uint32, from netip.Addr) {
	r.mu.Lock()
	d, ok := r.devices[serial]
	r.mu.Unlock()
	if !ok {
		r.logger.Debug("serial number from unregistered device", zap.Uint32("serial", serial), zap.Stringer("from", from))
		return
	}

	prev := d.Address()
	if !d.Link(from) {
		return
	}

	r.mu.Lock()
	if prev.IsValid() && r.byAddr[prev] == d {
		delete(r.byAddr, prev)
	}
	r.byAddr[from] = d
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.DeviceLinkTotal.Inc()
	}
}

// RequestRefreshAll 对所有设备发起（节流的）状态刷新
func (r *Registry) RequestRefreshAll() {
	for _, d := range r.List() {
		if _, err := d.RequestRefresh(); err != nil {
			r.logger.Warn("refresh request failed", zap.Uint32("serial", d.Serial()), zap.Error(err))
		}
	}
}
