package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/api"
	"github.com/taoyao-code/dreamscreen-gateway/internal/api/middleware"
	"github.com/taoyao-code/dreamscreen-gateway/internal/app"
	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/device"
	"github.com/taoyao-code/dreamscreen-gateway/internal/health"
	"github.com/taoyao-code/dreamscreen-gateway/internal/inventory"
	"github.com/taoyao-code/dreamscreen-gateway/internal/metrics"
	"github.com/taoyao-code/dreamscreen-gateway/internal/registry"
	"github.com/taoyao-code/dreamscreen-gateway/internal/udpserver"
)

// Version 构建时通过 -ldflags 覆盖
var Version = "dev"

// Run 统一启动流程，阻塞直到收到退出信号
// 顺序：基础组件 -> Redis/事件总线 -> 传输层与注册表 -> MQTT -> 设备清单 -> HTTP
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	serverID := app.GenerateServerID()
	log.Info("starting dreamscreen gateway",
		zap.String("version", Version),
		zap.String("server_id", serverID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ========== 阶段1: 基础组件 ==========
	promReg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(promReg)
	ready := health.New()

	// ========== 阶段2: Redis（可选）与事件总线 ==========
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	defer func() { _ = redisClient.Close() }()

	bus := app.NewEventBus(cfg.Events, redisClient, appm, log)
	bus.Start(ctx)
	defer bus.Stop()

	// ========== 阶段3: 传输层与注册表 ==========
	udpSrv := app.NewUDPServer(cfg.UDP, appm, log)
	reg := registry.New(udpSrv, log.With(zap.String("component", "registry")),
		registry.WithMetrics(appm),
		registry.WithDeviceDefaults(device.Config{
			SendDelay:       cfg.Device.DelayedSendInterval,
			RefreshInterval: cfg.Device.RefreshThrottle,
		}),
		registry.WithDeviceOptions(device.WithPublisher(bus)),
		registry.WithConfigurationErrorCheck(func(err error) bool {
			return errors.Is(err, udpserver.ErrNoHostAddress)
		}),
	)
	udpSrv.SetHandler(reg)
	defer func() { _ = udpSrv.Stop() }()

	syncer := app.NewStatusSyncer(reg, cfg.Device.RefreshPeriod, appm, log)
	bus.AddSink(syncer)

	// ========== 阶段4: MQTT 桥接（可选）==========
	mqttClient, err := app.NewMQTTBridge(cfg.MQTT, serverID, reg, bus, appm, log)
	if err != nil {
		log.Error("mqtt initialization failed", zap.Error(err))
		return err
	}
	if mqttClient != nil {
		defer func() { _ = mqttClient.Close() }()
	}

	// ========== 阶段5: 设备清单 ==========
	entries, err := inventory.Collect(cfg, log)
	if err != nil {
		log.Error("device inventory invalid", zap.Error(err))
		return err
	}
	n, err := inventory.Apply(ctx, reg, entries, log)
	if err != nil {
		log.Warn("some devices failed to register", zap.Error(err))
	}
	ready.SetDevicesLoaded(true)
	// 无设备时传输层保持关闭，也视为就绪
	ready.SetTransportReady(udpSrv.Running() || reg.Len() == 0)
	log.Info("devices registered", zap.Int("count", n), zap.Int("declared", len(entries)))

	watcher := udpserver.NewNetworkWatcher(udpSrv, reg, cfg.UDP.NetWatchInterval, log.With(zap.String("component", "netwatch")))
	go watcher.Run(ctx)
	go syncer.Start(ctx)

	// ========== 阶段6: HTTP ==========
	readyFn := func() bool {
		return ready.Ready() && (udpSrv.Running() || reg.Len() == 0)
	}
	httpSrv := app.NewHTTPServer(cfg, metricsHandler, readyFn, log)

	healthAgg := app.NewHealthAggregator(udpSrv, reg)
	app.AddRedisChecker(healthAgg, redisClient)
	if mqttClient != nil {
		app.AddMQTTChecker(healthAgg, mqttClient)
	}

	httpSrv.Register(func(r *gin.Engine) {
		authCfg := middleware.AuthConfig{
			APIKeys: cfg.API.Auth.APIKeys,
			Enabled: cfg.API.Auth.Enabled,
		}
		api.RegisterDeviceRoutes(r, reg, authCfg, log.With(zap.String("component", "api")))
		app.RegisterHealthRoutes(r, healthAgg)
	})

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpSrv.Start()
	}()
	log.Info("all services ready", zap.String("http_addr", cfg.HTTP.Addr))

	// ========== 阶段7: 等待关闭信号 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal, gracefully shutting down...", zap.Stringer("signal", sig))
	case err := <-httpErr:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("http server stopped")

	cancel()
	for _, d := range reg.List() {
		_ = reg.Deregister(d.Serial())
	}
	log.Info("shutdown complete")
	return runErr
}
