package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
	"github.com/taoyao-code/dreamscreen-gateway/internal/udpserver"
)

// NewUDPServer 创建协议端点；socket 在第一台设备注册时才打开
func NewUDPServer(cfg cfgpkg.UDPConfig, appm *metrics.AppMetrics, logger *zap.Logger) *udpserver.Server {
	return udpserver.New(cfg, logger.With(zap.String("component", "udp")), udpserver.WithMetrics(appm))
}
