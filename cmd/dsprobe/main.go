// dsprobe 广播一次 Scan，在窗口期内打印收到的所有 DreamScreen 报文
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/netip"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
	"github.com/taoyao-code/dreamscreen-gateway/internal/udpserver"
)

func main() {
	host := flag.String("host", "", "host IPv4 address (default: first usable interface)")
	broadcast := flag.String("broadcast", "", "broadcast address (default: derived from host prefix)")
	port := flag.Int("port", dreamscreen.DefaultPort, "DreamScreen UDP port")
	window := flag.Duration("window", 3*time.Second, "how long to listen for replies")
	refresh := flag.Bool("refresh", true, "request full state from each discovered device")
	verbose := flag.Bool("v", false, "log transport details")
	flag.Parse()

	logger := log.New(os.Stdout, "[dsprobe] ", log.LstdFlags|log.Lmicroseconds)

	zl := zap.NewNop()
	if *verbose {
		zl, _ = zap.NewDevelopment()
	}

	srv := udpserver.New(cfgpkg.UDPConfig{
		Port:          *port,
		HostAddr:      *host,
		BroadcastAddr: *broadcast,
	}, zl)

	var mu sync.Mutex
	seen := make(map[netip.Addr]uint32)
	srv.SetHandler(udpserver.HandlerFunc(func(from netip.Addr, f *dreamscreen.Frame, m dreamscreen.Message) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Printf("%-15s group=%-3d flags=0x%02x %-16s %s\n", from, f.Group, f.Flags, f.Command, m)

		sn, ok := m.(dreamscreen.SerialNumberMessage)
		if !ok {
			return
		}
		if _, dup := seen[from]; dup {
			return
		}
		seen[from] = sn.Serial
		if *refresh {
			if err := srv.Send(from, dreamscreen.ReadFrame(dreamscreen.NewRefreshRequest())); err != nil {
				logger.Printf("refresh %s failed: %v", from, err)
			}
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), *window+time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		logger.Fatalf("start udp: %v", err)
	}
	defer func() { _ = srv.Stop() }()

	nc := srv.NetConfig()
	logger.Printf("scanning host=%s broadcast=%s port=%d window=%s", nc.Host, nc.Broadcast, *port, *window)
	if err := srv.Broadcast(dreamscreen.WriteFrame(dreamscreen.NewScan())); err != nil {
		logger.Fatalf("broadcast scan: %v", err)
	}

	select {
	case <-time.After(*window):
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	logger.Printf("discovered %d device(s)", len(seen))
	for addr, serial := range seen {
		logger.Printf("  %s serial=%d", addr, serial)
	}
}
