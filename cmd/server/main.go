package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: $DSG_CONFIG or configs/example.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(bootstrap.Version)
		return
	}

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动网关
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Error("gateway exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
