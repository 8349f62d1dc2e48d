// internal/service/payment/interfaces/order_event_handler.go
package interfaces

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/payment/application"
	"orderflow/internal/service/payment/domain"
)

const (
	maxHandleAttempts  = 5
	handleRetryBackoff = 1 * time.Second
)

// OrderCreatedConsumerAdapter 是一个驱动适配器，
// 订阅 order.created 主题并触发自动支付执行，构成编排式 Saga 的支付侧。
type OrderCreatedConsumerAdapter struct {
	reader         *kafka.Reader
	appSvc         *application.PaymentApplicationService
	failureHandler *mq.FailureHandler
	wg             sync.WaitGroup
}

func NewOrderCreatedConsumerAdapter(reader *kafka.Reader, appSvc *application.PaymentApplicationService, failureHandler *mq.FailureHandler) *OrderCreatedConsumerAdapter {
	return &OrderCreatedConsumerAdapter{
		reader:         reader,
		appSvc:         appSvc,
		failureHandler: failureHandler,
	}
}

// Start 开始监听。这是一个长期运行的方法，ctx 取消或 reader 关闭后返回。
func (a *OrderCreatedConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	defer a.wg.Done()
	logger.Ctx(ctx).Info().Str("topic", domain.RoutingKeyOrderCreated).Msg("✅ Order event consumer started")

	for {
		// 使用 FetchMessage 而不是 ReadMessage，把提交 Offset 的时机握在自己手里
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				logger.Ctx(ctx).Info().Msg("🛑 Order event consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
			time.Sleep(1 * time.Second) // 避免快速失败循环
			continue
		}

		// 重建跨服务的追踪上下文
		propagator := otel.GetTextMapPropagator()
		headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
		msgCtx := propagator.Extract(ctx, &headerCarrier)

		// 可重试失败在当前消息上原地解决，绝不丢下它继续拉取：
		// 提交任何后续消息都会连带提交这条消息的位点，它将永远不会被重投
		if err := mq.HandleWithRetry(msgCtx, maxHandleAttempts, handleRetryBackoff, func(ctx context.Context) error {
			return a.processMessage(ctx, msg)
		}); err != nil {
			if ctx.Err() != nil {
				// 停机打断了重试：不提交，重启后从这条消息继续
				return nil
			}
			// 重试耗尽或永久失败：转入死信主题后照常提交，避免坏消息阻塞队列
			a.failureHandler.Handle(msgCtx, msg, err)
		}

		if err := a.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
		}
	}
}

// Stop 优雅地停止消费者。
func (a *OrderCreatedConsumerAdapter) Stop(ctx context.Context) {
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Order event consumer stopped")
}

func (a *OrderCreatedConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	evt, err := domain.DecodeOrderCreated(msg.Value)
	if err != nil {
		// 坏载荷属于永久失败，交给 FailureHandler 转死信
		return err
	}
	return a.appSvc.HandleOrderCreated(ctx, evt)
}
