// internal/pkg/keymutex/keymutex.go
package keymutex

import "sync"

// KeyMutex 提供按 key 粒度的互斥锁。
// 订单服务用它把同一订单上的并发变更（HTTP 更新命令 vs 支付事件迁移）
// 串行化，不同订单之间互不阻塞。
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *KeyMutex {
	return &KeyMutex{locks: make(map[string]*entry)}
}

// Lock 获取 key 对应的锁，返回对应的解锁函数。
// 引用计数归零时回收条目，长期运行不会泄漏已删除订单的锁。
func (k *KeyMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len 返回当前持有或等待中的 key 数量。
func (k *KeyMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
