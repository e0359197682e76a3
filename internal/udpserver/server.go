package udpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

var (
	// ErrNotRunning 套接字未启动
	ErrNotRunning = errors.New("udp server not running")
)

// Handler 已解码消息的接收方（设备注册表）
type Handler interface {
	Dispatch(from netip.Addr, f *dreamscreen.Frame, m dreamscreen.Message)
}

// HandlerFunc 函数适配器
type HandlerFunc func(from netip.Addr, f *dreamscreen.Frame, m dreamscreen.Message)

func (fn HandlerFunc) Dispatch(from netip.Addr, f *dreamscreen.Frame, m dreamscreen.Message) {
	fn(from, f, m)
}

// Server 协议 UDP 端点：单个接收协程，发送在调用方协程执行
type Server struct {
	cfg     cfgpkg.UDPConfig
	logger  *zap.Logger
	metrics *metrics.AppMetrics
	ifaces  InterfaceAddrs
	limiter *RateLimiter

	handlerMu sync.RWMutex
	handler   Handler

	// lifeMu 串行化 Start/Stop/Restart；mu 只保护下面的字段，不跨阻塞操作持有
	lifeMu sync.Mutex

	mu     sync.RWMutex
	conn   *net.UDPConn
	netCfg NetConfig
	stopC  chan struct{}
	done   chan struct{}
}

// Option 服务选项
type Option func(*Server)

// WithMetrics 指定业务指标
func WithMetrics(m *metrics.AppMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithInterfaceAddrs 指定网络接口枚举（测试用）
func WithInterfaceAddrs(fn InterfaceAddrs) Option {
	return func(s *Server) { s.ifaces = fn }
}

// New 创建 UDP 服务（不立即监听）
func New(cfg cfgpkg.UDPConfig, logger *zap.Logger, opts ...Option) *Server {
	if cfg.Port <= 0 {
		cfg.Port = dreamscreen.DefaultPort
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port))
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = dreamscreen.MaxDatagramSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		ifaces:  SystemInterfaceAddrs,
		limiter: NewRateLimiter(cfg.MaxDatagramsPerSec, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler 设置入站消息处理方
func (s *Server) SetHandler(h Handler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// Running 套接字是否已打开
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// NetConfig 当前主机网络配置
func (s *Server) NetConfig() NetConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.netCfg
}

// LocalAddr 监听地址（未启动时为 nil）
func (s *Server) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Start 计算网络配置并打开套接字；已启动时直接返回
// 无主机地址返回 ErrNoHostAddress
func (s *Server) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.Running() {
		return nil
	}
	return s.start(ctx)
}

func (s *Server) start(ctx context.Context) error {
	nc, err := ResolveNetConfig(s.cfg.HostAddr, s.cfg.BroadcastAddr, s.ifaces)
	if err != nil {
		return err
	}

	lc := net.ListenConfig{Control: controlSocket}
	pc, err := lc.ListenPacket(ctx, "udp4", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return fmt.Errorf("listen %s: unexpected connection type %T", s.cfg.ListenAddr, pc)
	}

	stopC, done := make(chan struct{}), make(chan struct{})
	s.mu.Lock()
	s.conn, s.netCfg = conn, nc
	s.stopC, s.done = stopC, done
	s.mu.Unlock()
	go s.serve(conn, nc.Host, stopC, done)

	s.logger.Info("udp server started",
		zap.Stringer("local", conn.LocalAddr()),
		zap.Stringer("host", nc.Host),
		zap.Stringer("broadcast", nc.Broadcast))
	return nil
}

// Stop 关闭套接字并等待接收协程退出
// 等待接收协程期间不持有 mu
func (s *Server) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.stop()
}

func (s *Server) stop() error {
	s.mu.Lock()
	conn, stopC, done := s.conn, s.stopC, s.done
	s.conn, s.stopC, s.done = nil, nil, nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	close(stopC)
	err := conn.Close()
	<-done
	s.logger.Info("udp server stopped")
	return err
}

// Restart 关闭（如已打开）并按当前网络配置重新打开套接字
// 启动失败时套接字保持关闭，网络配置清空
func (s *Server) Restart(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.logger.Info("restarting udp server")
	_ = s.stop()
	if err := s.start(ctx); err != nil {
		s.mu.Lock()
		s.netCfg = NetConfig{}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Send 单播到 dst 的协议端口
func (s *Server) Send(dst netip.Addr, frame []byte) error {
	return s.write(netip.AddrPortFrom(dst, uint16(s.cfg.Port)), frame, "unicast")
}

// Broadcast 发送到当前广播地址
func (s *Server) Broadcast(frame []byte) error {
	s.mu.RLock()
	bcast := s.netCfg.Broadcast
	s.mu.RUnlock()
	if !bcast.IsValid() {
		return ErrNotRunning
	}
	return s.write(netip.AddrPortFrom(bcast, uint16(s.cfg.Port)), frame, "broadcast")
}

func (s *Server) write(dst netip.AddrPort, frame []byte, kind string) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		s.logger.Warn("message not sent because the server is not running", zap.Stringer("dst", dst))
		return ErrNotRunning
	}

	if _, err := conn.WriteToUDPAddrPort(frame, dst); err != nil {
		if s.metrics != nil {
			s.metrics.SendErrors.Inc()
		}
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	if s.metrics != nil {
		s.metrics.DatagramsSent.WithLabelValues(kind).Inc()
	}
	s.logger.Debug("datagram sent", zap.Stringer("dst", dst), zap.Binary("frame", frame))
	return nil
}

func (s *Server) serve(conn *net.UDPConn, host netip.Addr, stopC, done chan struct{}) {
	defer close(done)

	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("error receiving data", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		src := from.Addr().Unmap()
		if src == host {
			continue
		}
		if s.metrics != nil {
			s.metrics.DatagramsReceived.Inc()
		}
		if !s.limiter.Allow() {
			s.countDecode("dropped")
			continue
		}
		s.handleDatagram(src, buf[:n])
	}
}

func (s *Server) handleDatagram(src netip.Addr, data []byte) {
	f, m, err := dreamscreen.DecodeMessage(data)
	switch {
	case err == nil:
		s.countDecode("ok")
	case errors.Is(err, dreamscreen.ErrMalformed):
		s.countDecode("malformed")
		s.logger.Debug("dropping malformed frame", zap.Stringer("from", src), zap.Error(err))
		return
	case errors.Is(err, dreamscreen.ErrUnknownCommand):
		s.countDecode("unknown")
		return
	default:
		s.countDecode("invalid")
		s.logger.Debug("message not applicable", zap.Stringer("from", src), zap.Error(err))
		return
	}

	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()
	if h != nil {
		h.Dispatch(src, f, m)
	}
}

func (s *Server) countDecode(result string) {
	if s.metrics != nil {
		s.metrics.FrameDecodeTotal.WithLabelValues(result).Inc()
	}
}
