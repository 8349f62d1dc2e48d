// internal/pkg/breaker/breaker.go
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zoobzio/clockz"

	"orderflow/internal/pkg/logger"
)

// State 是熔断器的三种工作模式。
type State string

const (
	StateClosed   State = "CLOSED"    // 正常放行，统计连续失败次数
	StateOpen     State = "OPEN"      // 快速失败，调用被短路到降级路径
	StateHalfOpen State = "HALF_OPEN" // 恢复窗口到期后放行一次试探调用
)

// ErrOpen 表示调用被熔断器短路。调用方据此走降级路径，
// 不应把它当作底层操作的真实失败向上抛。
var ErrOpen = errors.New("circuit breaker is open")

// Config 是单个受保护操作的熔断参数。
type Config struct {
	// FailureThreshold 连续失败多少次后打开熔断器
	FailureThreshold int
	// RecoveryTimeout 打开后多久允许试探恢复
	RecoveryTimeout time.Duration
	// CallTimeout 单次调用的超时上限，超时计为一次失败；0 表示不限制
	CallTimeout time.Duration
}

// DefaultConfig 是未做显式配置的操作使用的熔断参数。
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		CallTimeout:      5 * time.Second,
	}
}

// CircuitBreaker 按操作名独立统计失败并执行 CLOSED→OPEN→HALF_OPEN 状态机。
// 所有状态读写都在互斥锁内完成；底层调用本身在锁外执行，
// 因此慢调用不会阻塞其他并发调用者对状态的判断。
type CircuitBreaker struct {
	name  string
	cfg   Config
	clock clockz.Clock

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// New 创建一个受保护操作的熔断器。clock 注入便于测试中使用假时钟。
func New(name string, cfg Config, clock clockz.Clock) *CircuitBreaker {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		clock: clock,
		state: StateClosed,
	}
}

// Execute 通过熔断器调用 fn。
// 返回 ErrOpen 时表示调用被短路，底层操作没有被执行；
// 其他非 nil 错误是底层操作的真实失败，同时已被计入失败统计。
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(ctx); err != nil {
		return err
	}

	callCtx := ctx
	if b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	b.record(ctx, err)
	return err
}

// admit 判断当前调用是否放行。
func (b *CircuitBreaker) admit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		// 恢复窗口到期，本次调用作为 HALF_OPEN 的唯一试探
		if b.clock.Now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.setState(ctx, StateHalfOpen)
			b.trialInFlight = true
			return nil
		}
		return ErrOpen
	case StateHalfOpen:
		// 试探期间只允许一个调用在途，其余并发调用继续走降级
		if b.trialInFlight {
			return ErrOpen
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// record 根据调用结果推进状态机。
func (b *CircuitBreaker) record(ctx context.Context, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		if callErr != nil {
			// 试探失败，重新打开并刷新计时
			b.openedAt = b.clock.Now()
			b.setState(ctx, StateOpen)
			return
		}
		b.failures = 0
		b.setState(ctx, StateClosed)
	case StateClosed:
		if callErr == nil {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.clock.Now()
			b.setState(ctx, StateOpen)
		}
	case StateOpen:
		// 并发竞争下可能有调用在状态翻转前已放行，结果直接忽略
	}
}

// Reset 强制恢复到 CLOSED 并清零计数（管理接口使用）。
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trialInFlight = false
	b.setState(context.Background(), StateClosed)
}

// Snapshot 返回当前状态的只读副本。
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:         b.name,
		State:        b.state,
		FailureCount: b.failures,
	}
}

// Snapshot 用于管理端点展示单个熔断器的状态。
type Snapshot struct {
	Name         string `json:"name"`
	State        State  `json:"state"`
	FailureCount int    `json:"failure_count"`
}

// setState 必须在持锁状态下调用。
func (b *CircuitBreaker) setState(ctx context.Context, next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	stateGauge.WithLabelValues(b.name).Set(stateValue(next))
	logger.Ctx(ctx).Warn().
		Str("operation", b.name).
		Str("from", string(prev)).
		Str("to", string(next)).
		Int("failures", b.failures).
		Msg("Circuit breaker state changed")
}

func stateValue(s State) float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}
