// cmd/inventory-service/main.go
package main

import (
	"context"
	"flag"
	"os"

	"inventory-core/internal/pkg/bootstrap"
	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/pkg/tracing"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.Name, cfg.App.LogLevel, cfg.App.LogPretty)

	tp, err := tracing.InitTracerProvider(cfg.App.Name, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	app, err := wire(cfg, tp.Tracer(cfg.App.Name))
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to assemble service")
	}

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      cfg.App.Name,
		Config:           cfg,
		RegisterHandlers: app.registerHandlers,
		Components:       app.components,
		OnShutdown:       append([]func(ctx context.Context) error{tp.Shutdown}, app.closers...),
	})
	if err != nil {
		logger.L().Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
}
