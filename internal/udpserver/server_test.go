package udpserver

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

type received struct {
	from netip.Addr
	msg  dreamscreen.Message
}

func noInterfaces() ([]netip.Prefix, error) { return nil, nil }

// newLoopbackPair 返回监听 127.0.0.1 的服务端与一个模拟设备套接字
// 服务端的目标端口指向设备套接字
func newLoopbackPair(t *testing.T, hostAddr string) (*Server, *net.UDPConn, chan received, *metrics.AppMetrics) {
	t.Helper()
	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	s := New(cfgpkg.UDPConfig{
		ListenAddr:    "127.0.0.1:0",
		Port:          peer.LocalAddr().(*net.UDPAddr).Port,
		HostAddr:      hostAddr,
		BroadcastAddr: "127.0.0.1",
	}, zap.NewNop(), WithMetrics(m), WithInterfaceAddrs(noInterfaces))

	ch := make(chan received, 8)
	s.SetHandler(HandlerFunc(func(from netip.Addr, _ *dreamscreen.Frame, msg dreamscreen.Message) {
		ch <- received{from: from, msg: msg}
	}))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return s, peer, ch, m
}

func readFrame(t *testing.T, c *net.UDPConn) []byte {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, _, err := c.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestServer_SendAndReceive(t *testing.T) {
	s, peer, ch, m := newLoopbackPair(t, "10.255.255.1")
	assert.True(t, s.Running())

	// 单播
	frame := dreamscreen.WriteFrame(dreamscreen.ModeMessage{Mode: dreamscreen.ModeAmbient})
	require.NoError(t, s.Send(netip.MustParseAddr("127.0.0.1"), frame))
	assert.Equal(t, frame, readFrame(t, peer))

	// 广播地址被覆盖为 127.0.0.1
	scan := dreamscreen.BroadcastFrame(dreamscreen.NewScan())
	require.NoError(t, s.Broadcast(scan))
	assert.Equal(t, scan, readFrame(t, peer))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DatagramsSent.WithLabelValues("unicast")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DatagramsSent.WithLabelValues("broadcast")))

	// 入站
	reply := dreamscreen.WriteFrame(dreamscreen.SerialNumberMessage{Serial: 12345})
	_, err := peer.WriteTo(reply, s.LocalAddr())
	require.NoError(t, err)

	select {
	case r := <-ch:
		assert.Equal(t, netip.MustParseAddr("127.0.0.1"), r.from)
		assert.Equal(t, dreamscreen.SerialNumberMessage{Serial: 12345}, r.msg)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not dispatched")
	}
}

func TestServer_MalformedAndUnknownDropped(t *testing.T) {
	s, peer, ch, m := newLoopbackPair(t, "10.255.255.1")

	_, err := peer.WriteTo([]byte{0xFC, 0x05, 0xFF, 0x21, 0x01, 0x03, 0x00}, s.LocalAddr())
	require.NoError(t, err)
	_, err = peer.WriteTo(dreamscreen.Encode(0, dreamscreen.FlagWrite, dreamscreen.Command{Upper: 0x7E, Lower: 0x7E}, nil), s.LocalAddr())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.FrameDecodeTotal.WithLabelValues("malformed")) == 1 &&
			testutil.ToFloat64(m.FrameDecodeTotal.WithLabelValues("unknown")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, ch)
}

func TestServer_LoopbackSuppressed(t *testing.T) {
	s, peer, ch, m := newLoopbackPair(t, "127.0.0.1")

	_, err := peer.WriteTo(dreamscreen.BroadcastFrame(dreamscreen.NewScan()), s.LocalAddr())
	require.NoError(t, err)

	select {
	case r := <-ch:
		t.Fatalf("own datagram dispatched: %v", r.msg)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Zero(t, testutil.ToFloat64(m.DatagramsReceived))
}

func TestServer_Lifecycle(t *testing.T) {
	s := New(cfgpkg.UDPConfig{ListenAddr: "127.0.0.1:0"}, zap.NewNop(), WithInterfaceAddrs(noInterfaces))

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoHostAddress)
	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Send(netip.MustParseAddr("127.0.0.1"), []byte{1}), ErrNotRunning)
	assert.ErrorIs(t, s.Broadcast([]byte{1}), ErrNotRunning)
	assert.NoError(t, s.Stop())

	s = New(cfgpkg.UDPConfig{ListenAddr: "127.0.0.1:0", HostAddr: "10.255.255.1"}, zap.NewNop(), WithInterfaceAddrs(noInterfaces))
	require.NoError(t, s.Start(context.Background()))
	first := s.LocalAddr()
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.Equal(t, first, s.LocalAddr())
	assert.Equal(t, netip.MustParseAddr("255.255.255.255"), s.NetConfig().Broadcast)

	require.NoError(t, s.Restart(context.Background()))
	assert.True(t, s.Running())

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	assert.Nil(t, s.LocalAddr())
}

func TestServer_RestartWithoutHostAddress(t *testing.T) {
	var mu sync.Mutex
	prefixes := []netip.Prefix{netip.MustParsePrefix("192.168.1.10/24")}
	list := func() ([]netip.Prefix, error) {
		mu.Lock()
		defer mu.Unlock()
		return prefixes, nil
	}
	s := New(cfgpkg.UDPConfig{ListenAddr: "127.0.0.1:0"}, zap.NewNop(), WithInterfaceAddrs(list))
	t.Cleanup(func() { _ = s.Stop() })

	// 未运行时 Restart 等同于 Start
	require.NoError(t, s.Restart(context.Background()))
	assert.True(t, s.Running())

	mu.Lock()
	prefixes = nil
	mu.Unlock()
	assert.ErrorIs(t, s.Restart(context.Background()), ErrNoHostAddress)
	assert.False(t, s.Running())
	assert.Equal(t, NetConfig{}, s.NetConfig())
}

func TestServer_StopWhileHandlerBlocked(t *testing.T) {
	s, peer, _, _ := newLoopbackPair(t, "10.255.255.1")

	entered := make(chan struct{})
	release := make(chan struct{})
	s.SetHandler(HandlerFunc(func(netip.Addr, *dreamscreen.Frame, dreamscreen.Message) {
		close(entered)
		<-release
	}))
	_, err := peer.WriteTo(dreamscreen.WriteFrame(dreamscreen.ModeMessage{Mode: dreamscreen.ModeVideo}), s.LocalAddr())
	require.NoError(t, err)
	<-entered

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(stopped)
	}()

	// Stop 等待接收协程期间，发送与状态查询不被阻塞
	require.Eventually(t, func() bool { return !s.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Send(netip.MustParseAddr("127.0.0.1"), []byte{1}), ErrNotRunning)

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}

type restartListener struct {
	s     *Server
	calls int
}

func (l *restartListener) OnNetworkChanged(ctx context.Context) error {
	l.calls++
	return l.s.Restart(ctx)
}

func TestNetworkWatcher_Check(t *testing.T) {
	var mu sync.Mutex
	prefixes := []netip.Prefix{netip.MustParsePrefix("192.168.1.10/24")}
	list := func() ([]netip.Prefix, error) {
		mu.Lock()
		defer mu.Unlock()
		return prefixes, nil
	}
	s := New(cfgpkg.UDPConfig{ListenAddr: "127.0.0.1:0"}, zap.NewNop(), WithInterfaceAddrs(list))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	l := &restartListener{s: s}
	w := NewNetworkWatcher(s, l, time.Minute, zap.NewNop())
	assert.False(t, w.Check(context.Background()))
	assert.Zero(t, l.calls)

	mu.Lock()
	prefixes = []netip.Prefix{netip.MustParsePrefix("10.1.2.3/20")}
	mu.Unlock()
	assert.True(t, w.Check(context.Background()))
	assert.Equal(t, 1, l.calls)
	assert.Equal(t, netip.MustParseAddr("10.1.2.3"), s.NetConfig().Host)
	assert.Equal(t, netip.MustParseAddr("10.1.15.255"), s.NetConfig().Broadcast)
	assert.True(t, s.Running())

	// 地址消失也通知
	mu.Lock()
	prefixes = nil
	mu.Unlock()
	assert.True(t, w.Check(context.Background()))
	assert.Equal(t, 2, l.calls)
	assert.False(t, s.Running())
	assert.False(t, w.Check(context.Background()))
	assert.Equal(t, 2, l.calls)
}
