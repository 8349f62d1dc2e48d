// internal/service/payment/infrastructure/idempotency.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"orderflow/internal/pkg/redis"
)

// 幂等标记保留 24 小时，覆盖总线可能的最长重投窗口。
const idempotencyTTL = 24 * time.Hour

// RedisIdempotencyStore 用 Redis SETNX 实现跨实例的消费幂等。
// 多个 payment-service 副本共享同一个标记空间，
// 同一订单的 order.created 重投只有一个副本会真正发起扣款。
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Acquire(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, key, "1", idempotencyTTL)
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key)
}

// MemoryIdempotencyStore 是单实例部署和测试用的进程内实现。
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{seen: make(map[string]struct{})}
}

func (s *MemoryIdempotencyStore) Acquire(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

func (s *MemoryIdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
	return nil
}
