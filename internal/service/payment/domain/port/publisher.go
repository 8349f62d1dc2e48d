// internal/service/payment/domain/port/publisher.go
package port

import (
	"context"

	"orderflow/internal/service/payment/domain"
)

// PaymentEventPublisher 是支付侧的出站端口，由 Kafka 适配器实现。
type PaymentEventPublisher interface {
	PublishPaymentSucceeded(ctx context.Context, evt *domain.PaymentSucceeded) error
	PublishPaymentFailed(ctx context.Context, evt *domain.PaymentFailed) error
}

// IdempotencyStore 为 at-least-once 的 order.created 消费提供幂等保护。
// Acquire 返回 true 表示首次处理该订单；处理失败需要重投时用 Release 释放。
type IdempotencyStore interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
