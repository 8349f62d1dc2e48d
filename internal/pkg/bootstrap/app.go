// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/tracing"
)

type AppCtx struct {
	Mux *http.ServeMux
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 每个服务注册自己独特的 HTTP 路由
	// BackgroundTasks 是与 HTTP 服务并行运行的长期任务（如 Kafka 消费循环）。
	// 任务应在 ctx 取消后尽快返回。
	BackgroundTasks []func(ctx context.Context) error
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName, GetCurrentConfig().App.PrettyLog)

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, GetCurrentConfig().Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	// 3. 监听退出信号；ctx 取消后所有后台任务随之退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Logger.Info().Str("addr", server.Addr).Msgf("✅ %s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	for _, task := range info.BackgroundTasks {
		task := task
		g.Go(func() error { return task(gctx) })
	}

	// 关停协调：任何任务出错或收到信号都会触发整体退出
	g.Go(func() error {
		<-gctx.Done()
		logger.Logger.Info().Msgf("Shutting down service %s...", info.ServiceName)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error().Err(err).Msg("Error shutting down http server")
		}
		// 关闭 TracerProvider，确保缓冲的 Span 全部送出
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error().Err(err).Msg("Error shutting down tracer provider")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Logger.Fatal().Err(err).Msgf("service %s exited with error", info.ServiceName)
	}
	logger.Logger.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}
