// internal/service/payment/infrastructure/simulated_gateway.go
package infrastructure

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"orderflow/internal/service/payment/domain"
	"orderflow/internal/service/payment/domain/port"
)

// SimulatedGateway 模拟一个真实支付后端：带延迟，按配置概率失败。
// 仅用于演示和联调；生产部署应替换为真实网关适配器，接口不变。
// 测试不要用它——注入确定性的假实现。
type SimulatedGateway struct {
	name        string
	latency     time.Duration
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedGateway(name string, latency time.Duration, failureRate float64) *SimulatedGateway {
	return &SimulatedGateway{
		name:        name,
		latency:     latency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewStripeGateway 处理 card / apple_pay / google_pay。
func NewStripeGateway(latency time.Duration, failureRate float64) *SimulatedGateway {
	return NewSimulatedGateway("stripe", latency, failureRate)
}

// NewYooMoneyGateway 处理 yoomoney 钱包。
func NewYooMoneyGateway(latency time.Duration, failureRate float64) *SimulatedGateway {
	return NewSimulatedGateway("yoomoney", latency, failureRate)
}

func (g *SimulatedGateway) Name() string { return g.name }

func (g *SimulatedGateway) CreatePayment(ctx context.Context, req *port.GatewayRequest) (*port.GatewayResult, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}
	return &port.GatewayResult{
		TransactionID: "txn_" + req.PaymentID,
		Status:        string(domain.StatusSucceeded),
	}, nil
}

func (g *SimulatedGateway) GetStatus(ctx context.Context, paymentID string) (string, error) {
	if err := g.simulate(ctx); err != nil {
		return "", err
	}
	return string(domain.StatusSucceeded), nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, paymentID string, amount float64) (*port.RefundResult, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}
	return &port.RefundResult{
		RefundID: "re_" + paymentID,
		Status:   "refund_initiated",
		Amount:   amount,
	}, nil
}

// simulate 模拟网关延迟和随机失败。
// 延迟期间尊重 ctx 取消：熔断器的调用超时到期时立刻返回，
// 不会把消费 goroutine 卡在人为延迟上。
func (g *SimulatedGateway) simulate(ctx context.Context) error {
	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	g.mu.Lock()
	failed := g.rng.Float64() < g.failureRate
	g.mu.Unlock()
	if failed {
		return errors.Errorf("%s: simulated backend failure", g.name)
	}
	return nil
}
