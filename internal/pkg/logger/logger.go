// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是全局的 zerolog 实例。
// 默认输出 JSON 格式，便于日志采集系统（ELK/Loki）解析。
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 根据服务名和格式初始化全局 Logger。
// pretty 模式仅用于本地开发，生产环境应保持 JSON 输出。
func Init(serviceName string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}).
			With().Timestamp().Str("service", serviceName).Logger()
		return
	}
	Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 返回一个绑定了追踪上下文的 Logger。
// 如果 ctx 中存在有效的 Span，则自动在日志中附加 trace_id / span_id，
// 这样可以在 Jaeger 和日志系统之间互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return &Logger
	}
	l := Logger.With().
		Str("trace_id", spanCtx.TraceID().String()).
		Str("span_id", spanCtx.SpanID().String()).
		Logger()
	return &l
}
