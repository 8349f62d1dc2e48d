// internal/service/order/interfaces/payment_event_handler.go
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
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
)

const (
	maxHandleAttempts  = 5
	handleRetryBackoff = 1 * time.Second
)

// PaymentEventConsumerAdapter 是一个驱动适配器，
// 订阅 payment.succeeded / payment.failed 两个主题（即原系统里绑定 payment.* 的队列），
// 并把事件交给应用服务驱动订单状态机。
type PaymentEventConsumerAdapter struct {
	reader         *kafka.Reader
	appSvc         *application.OrderApplicationService
	failureHandler *mq.FailureHandler
	wg             sync.WaitGroup
}

func NewPaymentEventConsumerAdapter(reader *kafka.Reader, appSvc *application.OrderApplicationService, failureHandler *mq.FailureHandler) *PaymentEventConsumerAdapter {
	return &PaymentEventConsumerAdapter{
		reader:         reader,
		appSvc:         appSvc,
		failureHandler: failureHandler,
	}
}

// Start 开始监听。这是一个长期运行的方法，ctx 取消或 reader 关闭后返回。
func (a *PaymentEventConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	defer a.wg.Done()
	logger.Ctx(ctx).Info().Strs("topics", a.reader.Config().GroupTopics).Msg("✅ Payment event consumer started")

	for {
		// 使用 FetchMessage 而不是 ReadMessage，把提交 Offset 的时机握在自己手里
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				logger.Ctx(ctx).Info().Msg("🛑 Payment event consumer shutting down")
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
func (a *PaymentEventConsumerAdapter) Stop(ctx context.Context) {
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Payment event consumer stopped")
}

// processMessage 在总线边界解析消息并调用应用服务。
// 消息的主题名就是路由键。
func (a *PaymentEventConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	evt, err := domain.DecodePaymentEvent(msg.Value)
	if err != nil {
		// 坏载荷属于永久失败，交给 FailureHandler 转死信
		return err
	}
	return a.appSvc.HandlePaymentEvent(ctx, msg.Topic, evt)
}
