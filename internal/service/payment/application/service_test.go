package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/trace/noop"

	"orderflow/internal/pkg/breaker"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/payment/domain"
	"orderflow/internal/service/payment/domain/port"
	"orderflow/internal/service/payment/infrastructure"
)

// scriptedGateway 按脚本返回结果，覆盖成功、失败、超时三类场景。
type scriptedGateway struct {
	name       string
	mu         sync.Mutex
	err        error
	hang       bool // 模拟慢网关：阻塞到 ctx 超时
	statusResp string
	calls      int
	refunds    int
}

func (g *scriptedGateway) Name() string { return g.name }

func (g *scriptedGateway) CreatePayment(ctx context.Context, _ *port.GatewayRequest) (*port.GatewayResult, error) {
	g.mu.Lock()
	hang, err := g.hang, g.err
	g.calls++
	g.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &port.GatewayResult{TransactionID: "tx-1", Status: "succeeded"}, nil
}

func (g *scriptedGateway) GetStatus(_ context.Context, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if g.statusResp != "" {
		return g.statusResp, nil
	}
	return "succeeded", nil
}

func (g *scriptedGateway) Refund(_ context.Context, _ string, _ float64) (*port.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds++
	if g.err != nil {
		return nil, g.err
	}
	return &port.RefundResult{RefundID: "rf-1", Status: "refunded"}, nil
}

func (g *scriptedGateway) set(err error, hang bool) {
	g.mu.Lock()
	g.err, g.hang = err, hang
	g.mu.Unlock()
}

// recordingPublisher 记录发布的结果事件。
type recordingPublisher struct {
	mu        sync.Mutex
	succeeded []*domain.PaymentSucceeded
	failed    []*domain.PaymentFailed
}

func (p *recordingPublisher) PublishPaymentSucceeded(_ context.Context, evt *domain.PaymentSucceeded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.succeeded = append(p.succeeded, evt)
	return nil
}

func (p *recordingPublisher) PublishPaymentFailed(_ context.Context, evt *domain.PaymentFailed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, evt)
	return nil
}

type fixture struct {
	svc     *PaymentApplicationService
	repo    *infrastructure.MemoryPaymentRepository
	gateway *scriptedGateway
	pub     *recordingPublisher
	clock   *clockz.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := infrastructure.NewMemoryPaymentRepository()
	gw := &scriptedGateway{name: "stripe"}
	pub := &recordingPublisher{}
	clock := clockz.NewFakeClock()

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}, nil, clock)

	svc := NewPaymentApplicationService(
		repo,
		map[string]port.Gateway{"stripe": gw, "yoomoney": &scriptedGateway{name: "yoomoney"}},
		breakers,
		pub,
		infrastructure.NewMemoryIdempotencyStore(),
		noop.NewTracerProvider().Tracer("test"),
	)
	return &fixture{svc: svc, repo: repo, gateway: gw, pub: pub, clock: clock}
}

func executeReq(orderID string) *ExecutePaymentRequest {
	return &ExecutePaymentRequest{
		OrderID:  orderID,
		UserID:   "user-1",
		Amount:   25.0,
		Currency: "USD",
		Method:   "card",
	}
}

func TestExecutePayment_Success(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
	require.NoError(t, err)

	assert.True(t, len(result.PaymentID) > 4 && result.PaymentID[:4] == "PAY-")
	assert.Equal(t, domain.StatusSucceeded, result.Status)
	assert.Equal(t, "stripe", result.Gateway)

	require.Len(t, f.pub.succeeded, 1)
	assert.Equal(t, "ORD-1", f.pub.succeeded[0].OrderID)
	assert.InDelta(t, 25.0, f.pub.succeeded[0].Amount, 1e-9)
}

func TestExecutePayment_GatewayRouting(t *testing.T) {
	f := newFixture(t)

	for _, method := range []string{"card", "apple_pay", "google_pay"} {
		req := executeReq("ORD-" + method)
		req.Method = method
		result, err := f.svc.ExecutePayment(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "stripe", result.Gateway, method)
	}

	req := executeReq("ORD-ym")
	req.Method = "yoomoney"
	result, err := f.svc.ExecutePayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "yoomoney", result.Gateway)

	req = executeReq("ORD-x")
	req.Method = "barter"
	_, err = f.svc.ExecutePayment(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)
}

func TestExecutePayment_Validation(t *testing.T) {
	f := newFixture(t)

	req := executeReq("ORD-1")
	req.Amount = 0
	_, err := f.svc.ExecutePayment(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	req = executeReq("")
	_, err = f.svc.ExecutePayment(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestExecutePayment_GatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.set(errors.New("card declined"), false)

	result, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
	require.NoError(t, err, "gateway rejection is a result, not an error")

	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Contains(t, result.Reason, domain.ReasonGatewayError)
	assert.Contains(t, result.Reason, "card declined")

	require.Len(t, f.pub.failed, 1)
	assert.Equal(t, result.Reason, f.pub.failed[0].Reason)
	assert.Empty(t, f.pub.succeeded)
}

func TestExecutePayment_CircuitOpenFallback(t *testing.T) {
	f := newFixture(t)
	f.gateway.set(errors.New("gateway 500"), false)

	// 连续失败到阈值，熔断器打开
	for i := 0; i < 3; i++ {
		_, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
		require.NoError(t, err)
	}
	callsBefore := f.gateway.calls

	result, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-2"))
	require.NoError(t, err)

	// 降级路径：网关没有被调用，同步结果是合成的 processing 状态
	assert.Equal(t, callsBefore, f.gateway.calls, "open breaker must short-circuit the gateway")
	assert.Equal(t, domain.StatusProcessing, result.Status)
	assert.Equal(t, domain.ReasonFallback, result.Reason)

	// 落库记录保持 pending
	stored, err := f.repo.FindByOrderID(context.Background(), "ORD-2")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.StatusPending, stored[0].Status)

	// 仍然发布了带 fallback 原因的失败事件，订单流程能得到结论
	last := f.pub.failed[len(f.pub.failed)-1]
	assert.Equal(t, "ORD-2", last.OrderID)
	assert.Equal(t, domain.ReasonFallback, last.Reason)
}

func TestExecutePayment_RecoveryAfterTimeout(t *testing.T) {
	f := newFixture(t)
	f.gateway.set(errors.New("gateway 500"), false)

	for i := 0; i < 3; i++ {
		_, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
		require.NoError(t, err)
	}

	// 恢复窗口到期后网关恢复，试探调用成功并关闭熔断器
	f.gateway.set(nil, false)
	f.clock.Advance(30 * time.Second)

	result, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-2"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, result.Status)

	snapshots := f.svc.Breakers().Snapshots()
	require.NotEmpty(t, snapshots)
	for _, s := range snapshots {
		if s.Name == OpCreatePayment {
			assert.Equal(t, breaker.StateClosed, s.State)
		}
	}
}

func TestExecutePayment_CallTimeoutCountsAsFailure(t *testing.T) {
	repo := infrastructure.NewMemoryPaymentRepository()
	gw := &scriptedGateway{name: "stripe"}
	gw.set(nil, true) // 网关挂起，只能靠 CallTimeout 解围

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		CallTimeout:      10 * time.Millisecond,
	}, nil, clockz.RealClock)

	svc := NewPaymentApplicationService(
		repo, map[string]port.Gateway{"stripe": gw}, breakers, &recordingPublisher{},
		infrastructure.NewMemoryIdempotencyStore(), noop.NewTracerProvider().Tracer("test"),
	)

	result, err := svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)

	// 阈值为 1，超时后熔断器立即打开
	result, err = svc.ExecutePayment(context.Background(), executeReq("ORD-2"))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonFallback, result.Reason)
}

func TestGetStatus_DegradesToLocalRecord(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
	require.NoError(t, err)

	f.gateway.set(errors.New("gateway down"), false)
	result, err := f.svc.GetStatus(context.Background(), created.PaymentID)
	require.NoError(t, err, "status lookup must degrade, not fail")
	assert.Equal(t, domain.StatusSucceeded, result.Status)

	_, err = f.svc.GetStatus(context.Background(), "PAY-NOPE")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestGetStatus_ReflectsGatewayStatus(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
	require.NoError(t, err)

	// 网关侧状态已经翻转为 failed：查询结果和本地记录都要跟上
	f.gateway.mu.Lock()
	f.gateway.statusResp = "failed"
	f.gateway.mu.Unlock()

	result, err := f.svc.GetStatus(context.Background(), created.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)

	stored, err := f.repo.FindByID(context.Background(), created.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)

	// 网关返回无法识别的状态值时保持本地记录
	f.gateway.mu.Lock()
	f.gateway.statusResp = "quantum"
	f.gateway.mu.Unlock()

	result, err = f.svc.GetStatus(context.Background(), created.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
}

// saveFailingRepo 在第 failAt 次 Save 时返回错误。
type saveFailingRepo struct {
	domain.PaymentRepository
	saves  int
	failAt int
}

func (r *saveFailingRepo) Save(ctx context.Context, payment *domain.Payment) error {
	r.saves++
	if r.saves == r.failAt {
		return errors.New("storage unavailable")
	}
	return r.PaymentRepository.Save(ctx, payment)
}

func TestExecutePayment_OutcomePersistedBeforePublish(t *testing.T) {
	repo := &saveFailingRepo{PaymentRepository: infrastructure.NewMemoryPaymentRepository(), failAt: 2}
	gw := &scriptedGateway{name: "stripe"}
	pub := &recordingPublisher{}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}, nil, clockz.NewFakeClock())

	svc := NewPaymentApplicationService(
		repo, map[string]port.Gateway{"stripe": gw}, breakers, pub,
		infrastructure.NewMemoryIdempotencyStore(), noop.NewTracerProvider().Tracer("test"),
	)

	// 结果落库失败：不能有事件流出，否则总线上的结论和存储对不上
	_, err := svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
	require.Error(t, err)
	assert.Empty(t, pub.succeeded)
	assert.Empty(t, pub.failed)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.ExecutePayment(context.Background(), executeReq("ORD-1"))
	require.NoError(t, err)

	result, err := f.svc.Refund(context.Background(), created.PaymentID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, result.Status)
	assert.Equal(t, 1, f.gateway.refunds)

	// 只有 succeeded 的支付可以退款
	_, err = f.svc.Refund(context.Background(), created.PaymentID, 0)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestHandleOrderCreated_Idempotent(t *testing.T) {
	f := newFixture(t)

	evt := &domain.OrderCreated{
		OrderID:       "ORD-1",
		UserID:        "user-1",
		TotalAmount:   25.0,
		PaymentMethod: "card",
	}
	require.NoError(t, f.svc.HandleOrderCreated(context.Background(), evt))
	// at-least-once 重投：不发起第二次扣款
	require.NoError(t, f.svc.HandleOrderCreated(context.Background(), evt))

	assert.Equal(t, 1, f.gateway.calls, "duplicate order.created must not charge twice")
	assert.Len(t, f.pub.succeeded, 1)
}

func TestHandleOrderCreated_UnsupportedMethodGoesToDLT(t *testing.T) {
	f := newFixture(t)

	evt := &domain.OrderCreated{OrderID: "ORD-1", UserID: "user-1", TotalAmount: 25.0, PaymentMethod: "barter"}
	err := f.svc.HandleOrderCreated(context.Background(), evt)
	require.Error(t, err)
	assert.False(t, mq.IsRetryable(err), "bad input must not be redelivered forever")
}

func TestHandleOrderCreated_DefaultsMethodToCard(t *testing.T) {
	f := newFixture(t)

	evt := &domain.OrderCreated{OrderID: "ORD-1", UserID: "user-1", TotalAmount: 25.0}
	require.NoError(t, f.svc.HandleOrderCreated(context.Background(), evt))

	payments, err := f.repo.FindByOrderID(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "stripe", payments[0].Gateway)
}
