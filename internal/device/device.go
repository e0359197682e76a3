package device

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/dreamscreen-gateway/internal/events"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

const (
	// DefaultSendDelay 延迟发送间隔
	DefaultSendDelay = 10 * time.Millisecond

	// DefaultRefreshInterval 状态刷新请求的最小间隔
	DefaultRefreshInterval = time.Second
)

var (
	// ErrNotLinked 设备尚未通过序列号绑定地址
	ErrNotLinked = errors.New("device not linked")
	// ErrPoweredOff 关机状态下不能切换模式
	ErrPoweredOff = errors.New("device is powered off")
	// ErrUnsupported 机型不支持该能力
	ErrUnsupported = errors.New("capability not supported by device kind")
	// ErrInvalidArgument 命令参数越界
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSendFailed 发送失败，设备已标记为离线
	ErrSendFailed = errors.New("send failed")
	// ErrClosed 设备已注销
	ErrClosed = errors.New("device closed")
)

// Sender 出站发送能力（由传输层实现）
type Sender interface {
	// Send 单播到设备地址的协议端口
	Send(dst netip.Addr, frame []byte) error
	// Broadcast 发送到子网广播地址
	Broadcast(frame []byte) error
}

// Config 设备配置
type Config struct {
	Serial          uint32
	Kind            Kind
	Name            string
	SendDelay       time.Duration
	RefreshInterval time.Duration
}

// Option 可选依赖
type Option func(*Device)

// WithScheduler 指定延迟发送调度器
func WithScheduler(s Scheduler) Option {
	return func(d *Device) { d.sched = s }
}

// WithPublisher 指定事件发布方
func WithPublisher(p events.Publisher) Option {
	return func(d *Device) { d.pub = p }
}

// WithLogger 指定日志
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// WithClock 指定刷新节流使用的时钟
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// Device 单台设备的状态机，所有可变字段由 mu 保护
// 发送在持锁期间完成，事件在解锁后发布
type Device struct {
	cfg     Config
	sender  Sender
	sched   Scheduler
	pub     events.Publisher
	logger  *zap.Logger
	now     func() time.Time
	limiter *rate.Limiter

	mu              sync.Mutex
	closed          bool
	addr            netip.Addr
	status          Status
	detail          StatusDetail
	reportedName    string
	group           byte
	mode            dreamscreen.Mode
	powerOnMode     dreamscreen.Mode
	ambientModeType byte
	ambientScene    byte
	color           dreamscreen.RGB
	input           byte
	inputNames      [3]string
	pending         *dreamscreen.Scene
}

// New 创建设备状态机，初始为未绑定
func New(cfg Config, sender Sender, opts ...Option) *Device {
	if cfg.SendDelay <= 0 {
		cfg.SendDelay = DefaultSendDelay
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	d := &Device{
		cfg:             cfg,
		sender:          sender,
		sched:           TimerScheduler{},
		pub:             events.Discard,
		logger:          zap.NewNop(),
		now:             time.Now,
		status:          StatusUnknown,
		powerOnMode:     dreamscreen.ModeVideo,
		ambientModeType: dreamscreen.AmbientTypeColor,
		color:           dreamscreen.RGB{R: 0xFF, G: 0xFF, B: 0xFF},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.Uint32("serial", cfg.Serial), zap.String("kind", string(cfg.Kind)))
	d.limiter = rate.NewLimiter(rate.Every(cfg.RefreshInterval), 1)
	return d
}

// Serial 设备序列号
func (d *Device) Serial() uint32 { return d.cfg.Serial }

// Kind 设备机型
func (d *Device) Kind() Kind { return d.cfg.Kind }

// Address 已绑定的地址（未绑定时无效）
func (d *Device) Address() netip.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Group 设备上报的组号
func (d *Device) Group() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.group
}

// Online 最近一次状态是否为在线
func (d *Device) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status == StatusOnline
}

// Close 注销设备，之后到期的延迟发送不再执行
func (d *Device) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Link 绑定设备地址，并延迟请求一次完整状态
// 相同地址的重复响应不做处理；地址变化时重新绑定
func (d *Device) Link(addr netip.Addr) bool {
	d.mu.Lock()
	if d.closed || !addr.IsValid() || d.addr == addr {
		d.mu.Unlock()
		return false
	}
	prev := d.addr
	d.addr = addr
	d.delayedLocked(dreamscreen.WriteFrame(dreamscreen.NewRefreshRequest()))
	d.mu.Unlock()

	if prev.IsValid() {
		d.logger.Info("device relinked", zap.Stringer("from", prev), zap.Stringer("to", addr))
	} else {
		d.logger.Info("device linked", zap.Stringer("address", addr))
	}
	d.pub.Publish(events.New(events.TypeDeviceLinked, d.cfg.Serial, map[string]any{
		"address": addr.String(),
	}))
	return true
}

// MarkConfigurationError 网络配置不可用（无主机地址），设备置为离线
func (d *Device) MarkConfigurationError() {
	var out batch
	d.mu.Lock()
	d.setStatusLocked(StatusOffline, DetailConfigurationError, &out)
	d.mu.Unlock()
	d.emit(out)
}

// ClearConfigurationError 网络恢复后撤销配置错误，状态回到未知，等待设备上报
// 其他状态不受影响
func (d *Device) ClearConfigurationError() {
	var out batch
	d.mu.Lock()
	if d.detail == DetailConfigurationError {
		d.setStatusLocked(StatusUnknown, DetailNone, &out)
	}
	d.mu.Unlock()
	d.emit(out)
}

// batch 锁内收集、锁外发布的事件
type batch []events.Event

func (b *batch) add(t events.Type, serial uint32, data map[string]any) {
	*b = append(*b, events.New(t, serial, data))
}

func (d *Device) emit(out batch) {
	for _, e := range out {
		d.pub.Publish(e)
	}
}

func (d *Device) setStatusLocked(s Status, detail StatusDetail, out *batch) {
	if d.status == s && d.detail == detail {
		return
	}
	d.status, d.detail = s, detail
	out.add(events.TypeDeviceStatus, d.cfg.Serial, map[string]any{
		"status": string(s),
		"detail": string(detail),
	})
}

func (d *Device) onlineLocked(out *batch) {
	d.setStatusLocked(StatusOnline, DetailNone, out)
}

// sendLocked 单播发送，失败时标记通信错误（状态保持不变）
func (d *Device) sendLocked(frame []byte, out *batch) error {
	if !d.addr.IsValid() {
		return ErrNotLinked
	}
	if err := d.sender.Send(d.addr, frame); err != nil {
		d.logger.Error("send failed", zap.Stringer("address", d.addr), zap.Error(err))
		d.setStatusLocked(StatusOffline, DetailCommunicationError, out)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// delayedLocked 帧在调度时编码，发送时使用当时的地址；失败不重试
func (d *Device) delayedLocked(frame []byte) {
	d.sched.AfterFunc(d.cfg.SendDelay, func() {
		var out batch
		d.mu.Lock()
		if !d.closed {
			_ = d.sendLocked(frame, &out)
		}
		d.mu.Unlock()
		d.emit(out)
	})
}

// State 设备状态快照
type State struct {
	Serial          uint32       `json:"serial"`
	Kind            Kind         `json:"kind"`
	Name            string       `json:"name"`
	Address         string       `json:"address,omitempty"`
	Phase           Phase        `json:"phase"`
	Status          Status       `json:"status"`
	StatusDetail    StatusDetail `json:"status_detail,omitempty"`
	Group           byte         `json:"group"`
	Power           bool         `json:"power"`
	Mode            string       `json:"mode"`
	PowerOnMode     string       `json:"power_on_mode"`
	AmbientModeType byte         `json:"ambient_mode_type"`
	AmbientScene    int8         `json:"ambient_scene"`
	Scene           string       `json:"scene,omitempty"`
	Color           string       `json:"color"`
	Input           *int         `json:"input,omitempty"`
	InputNames      []string     `json:"input_names,omitempty"`
	PendingScene    string       `json:"pending_scene,omitempty"`
}

// Snapshot 当前状态的只读副本
func (d *Device) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := State{
		Serial:          d.cfg.Serial,
		Kind:            d.cfg.Kind,
		Name:            d.cfg.Name,
		Phase:           d.phaseLocked(),
		Status:          d.status,
		StatusDetail:    d.detail,
		Group:           d.group,
		Power:           d.mode.Powered(),
		Mode:            d.mode.String(),
		PowerOnMode:     d.powerOnMode.String(),
		AmbientModeType: d.ambientModeType,
		AmbientScene:    int8(d.ambientScene),
		Color:           d.color.Hex(),
	}
	if s.Name == "" {
		s.Name = d.reportedName
	}
	if d.addr.IsValid() {
		s.Address = d.addr.String()
	}
	if sc, ok := dreamscreen.SceneFromDevice(d.ambientModeType, d.ambientScene); ok {
		s.Scene = sc.String()
	}
	if d.cfg.Kind.TV() {
		in := int(d.input)
		s.Input = &in
		s.InputNames = append([]string(nil), d.inputNames[:]...)
	}
	if d.pending != nil {
		s.PendingScene = d.pending.String()
	}
	return s
}

func (d *Device) phaseLocked() Phase {
	switch {
	case !d.addr.IsValid():
		return PhaseUnlinked
	case d.mode.Powered():
		return PhaseLinkedOn
	}
	return PhaseLinkedOff
}
