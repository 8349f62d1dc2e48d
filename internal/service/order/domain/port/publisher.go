// internal/service/order/domain/port/publisher.go
package port

import (
	"context"

	"orderflow/internal/service/order/domain"
)

// OrderEventPublisher 是订单侧的出站端口，由 Kafka 适配器实现。
// 测试中替换为内存实现，应用层对传输方式无感知。
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, evt *domain.OrderCreated) error
	PublishOrderCancelled(ctx context.Context, evt *domain.OrderCancelled) error
}
