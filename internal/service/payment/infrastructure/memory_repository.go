// internal/service/payment/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"

	"orderflow/internal/service/payment/domain"
)

// MemoryPaymentRepository 是 PaymentRepository 的进程内实现。
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[string]*domain.Payment)}
}

func (r *MemoryPaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *payment
	r.payments[payment.ID] = &c
	return nil
}

func (r *MemoryPaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payment, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	c := *payment
	return &c, nil
}

func (r *MemoryPaymentRepository) FindByOrderID(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Payment
	for _, p := range r.payments {
		if p.OrderID == orderID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}
