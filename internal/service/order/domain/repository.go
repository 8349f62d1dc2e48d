// internal/service/order/domain/repository.go
package domain

import "context"

// ListFilter 描述列表查询的过滤条件。Limit 的上限由应用层裁剪。
type ListFilter struct {
	UserID string
	Status Status
	Limit  int
}

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，由基础设施层实现（内存 / MySQL）。
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
	Delete(ctx context.Context, id string) error
}
