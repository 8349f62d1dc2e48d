// internal/service/order/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sort"
	"sync"

	"orderflow/internal/service/order/domain"
)

// MemoryOrderRepository 是 OrderRepository 的进程内实现，也是默认实现。
// 存取的都是聚合的深拷贝，调用方拿到的对象修改后必须通过 Save 写回，
// 与真实数据库的读改写语义保持一致。
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *MemoryOrderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	// map 遍历顺序不稳定，按创建时间排序保证分页结果可预期
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryOrderRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.orders, id)
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = make([]domain.Item, len(o.Items))
	copy(c.Items, o.Items)
	return &c
}
