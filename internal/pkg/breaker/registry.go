// internal/pkg/breaker/registry.go
package breaker

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zoobzio/clockz"
)

var stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "orderflow_circuit_breaker_state",
	Help: "Circuit breaker state per protected operation (0=closed, 1=open, 2=half-open).",
}, []string{"operation"})

// Registry 按操作名管理一组熔断器，每个操作有独立的阈值和恢复超时。
type Registry struct {
	clock    clockz.Clock
	defaults Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	configs  map[string]Config
}

// NewRegistry 创建注册表。configs 中未出现的操作使用 defaults。
func NewRegistry(defaults Config, configs map[string]Config, clock clockz.Clock) *Registry {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Registry{
		clock:    clock,
		defaults: defaults,
		configs:  configs,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get 返回操作名对应的熔断器，首次访问时惰性创建。
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg, ok := r.configs[name]
	if !ok {
		cfg = r.defaults
	}
	b := New(name, cfg, r.clock)
	r.breakers[name] = b
	return b
}

// Snapshots 返回所有已创建熔断器的状态，按名称排序。
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset 重置指定操作的熔断器；name 为空时重置所有。
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name != "" {
		if b, ok := r.breakers[name]; ok {
			b.Reset()
		}
		return
	}
	for _, b := range r.breakers {
		b.Reset()
	}
}
