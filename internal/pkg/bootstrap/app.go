// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"inventory-core/internal/pkg/logger"
	"inventory-core/internal/pkg/nacos"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Component 是随服务一起启动、关停的后台组件（dispatcher、定时任务、消费者等）。
// Start 不能阻塞；ctx 在关停时被取消。
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client
	Config *Config
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Config           *Config
	RegisterHandlers func(appCtx AppCtx) // 每个服务注册自己独特的 HTTP 路由
	Components       []Component         // 按顺序启动，逆序关停
	OnShutdown       []func(ctx context.Context) error
}

// StartService 阻塞直到收到 SIGINT / SIGTERM，然后优雅关停。
func StartService(info AppInfo) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Run(ctx, info)
}

// Run 是 StartService 的可测试版本：ctx 结束即触发关停。
func Run(ctx context.Context, info AppInfo) error {
	cfg := info.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := logger.L()

	// 1. 后台组件
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	started := make([]Component, 0, len(info.Components))
	for _, c := range info.Components {
		if err := c.Start(runCtx); err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
			stopAll(shutdownCtx, started)
			cancel()
			return errors.Wrapf(err, "start component %T", c)
		}
		started = append(started, c)
	}

	// 2. 服务注册（可选）
	var namingClient *nacos.Client
	ip := ""
	if cfg.Infra.Nacos.ServerAddrs != "" {
		var err error
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Warn().Err(err).Msg("Nacos unavailable, continuing without service registration")
			namingClient = nil
		} else if ip, err = GetOutboundIP(); err != nil {
			log.Warn().Err(err).Msg("Could not resolve outbound IP, skipping Nacos registration")
			namingClient = nil
		} else if err = namingClient.RegisterServiceInstance(info.ServiceName, ip, cfg.App.HTTPPort); err != nil {
			log.Warn().Err(err).Msg("Nacos registration failed")
			namingClient = nil
		}
	}

	// 3. HTTP Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient, Config: cfg})
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("service", info.ServiceName).Int("port", cfg.App.HTTPPort).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = errors.Wrap(err, "http server")
		}
	}
	log.Info().Str("service", info.ServiceName).Msg("Shutting down service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// 4. 关停：先摘流量，再停组件，最后清理资源（后进先出）
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, cfg.App.HTTPPort); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}

	cancelRun()
	stopAll(shutdownCtx, started)

	for i := len(info.OnShutdown) - 1; i >= 0; i-- {
		if err := info.OnShutdown[i](shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown hook failed")
		}
	}

	log.Info().Str("service", info.ServiceName).Msg("Service gracefully shut down.")
	return runErr
}

func stopAll(ctx context.Context, started []Component) {
	for i := len(started) - 1; i >= 0; i-- {
		started[i].Stop(ctx)
	}
}

// GetOutboundIP 通过一次 UDP "连接" 拿到本机对外的出口 IP，不会真正发包。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
