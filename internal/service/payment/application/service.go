// internal/service/payment/application/service.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/breaker"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/payment/domain"
	"orderflow/internal/service/payment/domain/port"
)

// 受熔断器保护的操作名。每个操作独立统计失败、独立配置阈值。
const (
	OpCreatePayment = "create-payment"
	OpGetStatus     = "get-status"
	OpRefund        = "refund"
)

var (
	paymentsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_payments_executed_total",
		Help: "Payment attempts by terminal outcome.",
	}, []string{"outcome"})
	orderEventsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_order_events_skipped_total",
		Help: "order.created redeliveries skipped by the idempotency guard.",
	})
)

// ExecutePaymentRequest 是执行支付的输入。
type ExecutePaymentRequest struct {
	OrderID  string  `json:"order_id"`
	UserID   string  `json:"user_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Method   string  `json:"payment_method"`
}

// PaymentResult 是一次支付尝试的结果。
// 熔断降级时 Status 为 pending、Reason 为 fallback——
// 调用方据此与真实拒付（failed / gateway_error）区分开。
type PaymentResult struct {
	PaymentID string        `json:"payment_id"`
	OrderID   string        `json:"order_id"`
	Gateway   string        `json:"gateway"`
	Status    domain.Status `json:"status"`
	Reason    string        `json:"reason,omitempty"`
}

// PaymentApplicationService 编排支付执行路径：
// 选择网关 -> 经由熔断器调用 -> 发布结果事件。
type PaymentApplicationService struct {
	repo      domain.PaymentRepository
	gateways  map[string]port.Gateway
	breakers  *breaker.Registry
	publisher port.PaymentEventPublisher
	idem      port.IdempotencyStore
	tracer    trace.Tracer
}

func NewPaymentApplicationService(
	repo domain.PaymentRepository,
	gateways map[string]port.Gateway,
	breakers *breaker.Registry,
	publisher port.PaymentEventPublisher,
	idem port.IdempotencyStore,
	tracer trace.Tracer,
) *PaymentApplicationService {
	return &PaymentApplicationService{
		repo:      repo,
		gateways:  gateways,
		breakers:  breakers,
		publisher: publisher,
		idem:      idem,
		tracer:    tracer,
	}
}

// ExecutePayment 执行一次支付尝试。
//
// 返回 error 仅限于输入校验失败和基础设施故障；
// 网关失败和熔断降级不是 error——它们被转换成对应的结果事件后
// 体现在 PaymentResult 里，编排流程总能等到某个终态或降级事件。
func (s *PaymentApplicationService) ExecutePayment(ctx context.Context, req *ExecutePaymentRequest) (*PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.ExecutePayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.Float64("payment.amount", req.Amount),
		attribute.String("payment.method", req.Method),
	)

	if req.Amount <= 0 {
		return nil, &domain.ValidationError{Reason: "amount must be positive"}
	}
	if req.OrderID == "" {
		return nil, &domain.ValidationError{Reason: "order_id is required"}
	}

	gateway, err := port.SelectGateway(req.Method, s.gateways)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.gateway", gateway.Name()))

	payment := domain.NewPayment(req.OrderID, req.UserID, req.Amount, req.Currency, gateway.Name())
	if err := s.repo.Save(ctx, payment); err != nil {
		return nil, errors.Wrap(err, "failed to record payment attempt")
	}

	gwReq := &port.GatewayRequest{
		PaymentID: payment.ID,
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
	}
	callErr := s.breakers.Get(OpCreatePayment).Execute(ctx, func(ctx context.Context) error {
		_, err := gateway.CreatePayment(ctx, gwReq)
		return err
	})

	resultStatus := domain.StatusSucceeded
	var failReason string
	switch {
	case callErr == nil:
		payment.MarkSucceeded()
		paymentsExecuted.WithLabelValues("succeeded").Inc()

	case errors.Is(callErr, breaker.ErrOpen):
		// 熔断打开：落库记录保持 pending 并打上 fallback 标记，
		// 同步结果返回合成的 processing 状态。
		// 仍然发布 payment.failed，让订单流程得到一个可区分的结论。
		payment.MarkDegraded(domain.ReasonFallback)
		resultStatus = domain.StatusProcessing
		failReason = domain.ReasonFallback
		paymentsExecuted.WithLabelValues("fallback").Inc()
		span.AddEvent("circuit open, fallback result returned")
		logger.Ctx(ctx).Warn().Str("order_id", req.OrderID).Str("payment_id", payment.ID).
			Msg("Payment degraded: circuit breaker open")

	default:
		reason := domain.ReasonGatewayError + ": " + callErr.Error()
		payment.MarkFailed(reason)
		resultStatus = domain.StatusFailed
		failReason = reason
		paymentsExecuted.WithLabelValues("failed").Inc()
		span.RecordError(callErr)
		span.SetStatus(codes.Error, "gateway call failed")
		logger.Ctx(ctx).Error().Err(callErr).Str("order_id", req.OrderID).Str("payment_id", payment.ID).
			Msg("Payment failed")
	}

	// 结果先落库再上总线：顺序颠倒会在落库失败时留下一条与存储不符的事件
	if err := s.repo.Save(ctx, payment); err != nil {
		return nil, errors.Wrap(err, "failed to record payment outcome")
	}
	s.publishOutcome(ctx, payment, failReason)

	return &PaymentResult{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Gateway:   payment.Gateway,
		Status:    resultStatus,
		Reason:    payment.Reason,
	}, nil
}

// publishOutcome 把支付结果转换为结果事件发布到总线。
// 发布失败只记录：结果已落库，可由对账任务补发。
func (s *PaymentApplicationService) publishOutcome(ctx context.Context, payment *domain.Payment, failReason string) {
	var err error
	if payment.Status == domain.StatusSucceeded {
		err = s.publisher.PublishPaymentSucceeded(ctx, &domain.PaymentSucceeded{
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			Amount:    payment.Amount,
		})
	} else {
		err = s.publisher.PublishPaymentFailed(ctx, &domain.PaymentFailed{
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			Amount:    payment.Amount,
			Reason:    failReason,
		})
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("payment_id", payment.ID).
			Msg("Failed to publish payment outcome event")
	}
}

// GetStatus 查询支付状态。网关侧查询经由 get-status 熔断器保护，
// 熔断打开时退回本地记录的状态。
func (s *PaymentApplicationService) GetStatus(ctx context.Context, paymentID string) (*PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetPaymentStatus")
	defer span.End()

	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	gateway, ok := s.gateways[payment.Gateway]
	if ok {
		var gatewayStatus string
		callErr := s.breakers.Get(OpGetStatus).Execute(ctx, func(ctx context.Context) error {
			st, err := gateway.GetStatus(ctx, paymentID)
			gatewayStatus = st
			return err
		})
		switch {
		case callErr != nil:
			// 查询失败不影响本地记录，降级为返回已知状态
			span.AddEvent("gateway status lookup degraded")
		case payment.ReconcileStatus(domain.Status(gatewayStatus)):
			// 探测成功时网关是权威，本地记录随之刷新
			if err := s.repo.Save(ctx, payment); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("payment_id", payment.ID).
					Msg("Failed to persist reconciled payment status")
			}
		}
	}

	return &PaymentResult{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Gateway:   payment.Gateway,
		Status:    payment.Status,
		Reason:    payment.Reason,
	}, nil
}

// Refund 对已成功的支付发起退款，amount<=0 时按全额处理。
func (s *PaymentApplicationService) Refund(ctx context.Context, paymentID string, amount float64) (*PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.RefundPayment")
	defer span.End()

	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.StatusSucceeded {
		return nil, &domain.ValidationError{Reason: "only succeeded payments can be refunded"}
	}
	if amount <= 0 || amount > payment.Amount {
		amount = payment.Amount
	}

	gateway, ok := s.gateways[payment.Gateway]
	if !ok {
		return nil, domain.ErrUnsupportedMethod
	}
	refundAmount := amount
	callErr := s.breakers.Get(OpRefund).Execute(ctx, func(ctx context.Context) error {
		_, err := gateway.Refund(ctx, paymentID, refundAmount)
		return err
	})
	if callErr != nil {
		if errors.Is(callErr, breaker.ErrOpen) {
			return nil, errors.New("refund temporarily unavailable, try again later")
		}
		return nil, errors.Wrap(callErr, "refund failed")
	}

	payment.MarkRefunded()
	if err := s.repo.Save(ctx, payment); err != nil {
		return nil, errors.Wrap(err, "failed to record refund")
	}
	return &PaymentResult{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Gateway:   payment.Gateway,
		Status:    payment.Status,
	}, nil
}

// HandleOrderCreated 是编排流程的入站边界，由 order.created 消费适配器调用。
// 幂等保护基于订单号：同一订单的重投不会发起第二次扣款。
// 错误语义与订单侧约定一致（nil 提交 / mq.Retryable 重投 / 其他转死信）。
func (s *PaymentApplicationService) HandleOrderCreated(ctx context.Context, evt *domain.OrderCreated) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleOrderCreated", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", evt.OrderID),
		attribute.Float64("order.total_amount", evt.TotalAmount),
	)

	key := "payment:processed:" + evt.OrderID
	first, err := s.idem.Acquire(ctx, key)
	if err != nil {
		return mq.Retryable(errors.Wrap(err, "idempotency check failed"))
	}
	if !first {
		orderEventsSkipped.Inc()
		logger.Ctx(ctx).Info().Str("order_id", evt.OrderID).Msg("Duplicate order.created, skipping")
		return nil
	}

	method := evt.PaymentMethod
	if method == "" {
		method = "card"
	}

	_, err = s.ExecutePayment(ctx, &ExecutePaymentRequest{
		OrderID:  evt.OrderID,
		UserID:   evt.UserID,
		Amount:   evt.TotalAmount,
		Currency: "USD",
		Method:   method,
	})
	if err != nil {
		if domain.IsValidation(err) || errors.Is(err, domain.ErrUnsupportedMethod) {
			// 输入性错误重投也不会好转，直接送死信；幂等位保留，防止重复扣款
			return err
		}
		// 基础设施故障：释放幂等位，让重投有机会重新执行
		if relErr := s.idem.Release(ctx, key); relErr != nil {
			logger.Ctx(ctx).Error().Err(relErr).Str("order_id", evt.OrderID).
				Msg("Failed to release idempotency marker")
		}
		return mq.Retryable(err)
	}
	return nil
}

// Breakers 暴露熔断器注册表给管理端点。
func (s *PaymentApplicationService) Breakers() *breaker.Registry {
	return s.breakers
}
