// cmd/payment-service/main.go
package main

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/breaker"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/pkg/redis"
	"orderflow/internal/service/payment/application"
	"orderflow/internal/service/payment/domain"
	"orderflow/internal/service/payment/domain/port"
	"orderflow/internal/service/payment/infrastructure"
	"orderflow/internal/service/payment/interfaces"
)

const (
	serviceName = "payment-service"

	// orderCreatedGroupID 对应原系统里绑定 order.created 的队列
	orderCreatedGroupID = "payment-service.order-created"
	deadLetterTopic     = "payment-service.dlt"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	repo := infrastructure.NewMemoryPaymentRepository()

	// 1. 支付网关：按名字注册，SelectGateway 按支付方式路由
	gw := cfg.App.Gateway
	gateways := map[string]port.Gateway{
		"stripe":   infrastructure.NewStripeGateway(time.Duration(gw.Latency), gw.FailureRate),
		"yoomoney": infrastructure.NewYooMoneyGateway(time.Duration(gw.Latency), gw.FailureRate),
	}

	// 2. 熔断器注册表：每个受保护操作一个实例，参数从配置读取
	breakerCfgs := make(map[string]breaker.Config, len(cfg.App.Breakers))
	for name, bc := range cfg.App.Breakers {
		breakerCfgs[name] = breaker.Config{
			FailureThreshold: bc.FailureThreshold,
			RecoveryTimeout:  time.Duration(bc.RecoveryTimeout),
			CallTimeout:      time.Duration(bc.CallTimeout),
		}
	}
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), breakerCfgs, clockz.RealClock)

	// 3. 幂等存储：Redis 可用时跨实例去重，否则退化为进程内去重
	var idem port.IdempotencyStore
	if redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs); err == nil {
		idem = infrastructure.NewRedisIdempotencyStore(redisClient)
	} else {
		logger.Logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory idempotency store")
		idem = infrastructure.NewMemoryIdempotencyStore()
	}

	// 4. 出站适配器：支付结果事件生产者
	producer := infrastructure.NewPaymentEventKafkaProducer(cfg.Infra.Kafka.Brokers)
	defer producer.Close()

	appSvc := application.NewPaymentApplicationService(repo, gateways, breakers, producer, idem, otel.Tracer(serviceName))

	// 5. 入站适配器：order.created 消费者（含死信处理）
	reader := mq.NewGroupReader(cfg.Infra.Kafka.Brokers, orderCreatedGroupID, []string{domain.RoutingKeyOrderCreated})
	dltWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, deadLetterTopic)
	defer dltWriter.Close()
	consumer := interfaces.NewOrderCreatedConsumerAdapter(reader, appSvc, mq.NewFailureHandler(dltWriter))

	httpHandler := interfaces.NewPaymentHandler(appSvc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		BackgroundTasks: []func(ctx context.Context) error{
			func(ctx context.Context) error {
				defer consumer.Stop(context.Background())
				return consumer.Start(ctx)
			},
		},
	})
}
