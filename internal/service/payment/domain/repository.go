// internal/service/payment/domain/repository.go
package domain

import "context"

// PaymentRepository 定义了支付尝试记录的持久化接口。
// 记录只增不删。
type PaymentRepository interface {
	Save(ctx context.Context, payment *Payment) error
	FindByID(ctx context.Context, id string) (*Payment, error)
	FindByOrderID(ctx context.Context, orderID string) ([]*Payment, error)
}
