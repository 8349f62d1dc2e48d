// cmd/order-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/infrastructure"
	"orderflow/internal/service/order/interfaces"
)

const (
	serviceName = "order-service"

	// paymentEventsGroupID 对应原系统里绑定 payment.* 的队列
	paymentEventsGroupID = "order-service.payment-events"
	deadLetterTopic      = "order-service.dlt"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	// 1. 仓储：默认内存实现，生产环境切到 MySQL
	var repo domain.OrderRepository
	if cfg.App.Storage == "mysql" {
		gormRepo, err := infrastructure.NewGormOrderRepository(cfg.Infra.Mysql.DSN)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize mysql repository")
		}
		repo = gormRepo
	} else {
		repo = infrastructure.NewMemoryOrderRepository()
	}

	// 2. 出站适配器：订单事件生产者
	producer := infrastructure.NewOrderEventKafkaProducer(cfg.Infra.Kafka.Brokers)
	defer producer.Close()

	// 3. 应用服务
	appSvc := application.NewOrderApplicationService(repo, producer, otel.Tracer(serviceName))

	// 4. 入站适配器：支付事件消费者（含死信处理）
	reader := mq.NewGroupReader(cfg.Infra.Kafka.Brokers, paymentEventsGroupID, []string{
		domain.RoutingKeyPaymentSucceeded,
		domain.RoutingKeyPaymentFailed,
	})
	dltWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, deadLetterTopic)
	defer dltWriter.Close()
	consumer := interfaces.NewPaymentEventConsumerAdapter(reader, appSvc, mq.NewFailureHandler(dltWriter))

	httpHandler := interfaces.NewOrderHandler(appSvc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8081,
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
