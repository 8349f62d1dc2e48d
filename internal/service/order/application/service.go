// internal/service/order/application/service.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/keymutex"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/domain/port"
)

const (
	maxListLimit     = 500
	defaultListLimit = 100
	maxUserListLimit = 200
	defaultUserLimit = 50
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_orders_created_total",
		Help: "Orders accepted by the create command.",
	})
	paymentEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_payment_events_dropped_total",
		Help: "Payment events dropped by the order-side consumer, by reason.",
	}, []string{"reason"})
	ordersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_orders_cancelled_total",
		Help: "Orders cancelled because of a failed payment.",
	})
)

// OrderApplicationService 编排订单的命令处理和事件驱动迁移。
// HTTP 命令路径和事件消费路径共享同一个实例，
// 对单个订单的读改写通过 keymutex 串行化，防止并发丢失更新。
type OrderApplicationService struct {
	repo      domain.OrderRepository
	publisher port.OrderEventPublisher
	tracer    trace.Tracer
	locks     *keymutex.KeyMutex
}

func NewOrderApplicationService(repo domain.OrderRepository, publisher port.OrderEventPublisher, tracer trace.Tracer) *OrderApplicationService {
	return &OrderApplicationService{
		repo:      repo,
		publisher: publisher,
		tracer:    tracer,
		locks:     keymutex.New(),
	}
}

// CreateOrder 处理创建订单命令：校验 -> 持久化 -> 发布 order.created。
// 相同输入的两次请求会得到两个不同的订单号。
func (s *OrderApplicationService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()

	order, err := domain.NewOrder(req.UserID, req.Items, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order validation failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("user.id", order.UserID),
		attribute.Float64("order.total_amount", order.TotalAmount),
	)

	if err := s.repo.Save(ctx, order); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to save order")
	}
	ordersCreated.Inc()

	evt := &domain.OrderCreated{
		OrderID:         order.ID,
		UserID:          order.UserID,
		TotalAmount:     order.TotalAmount,
		Items:           order.Items,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
	}
	if err := s.publisher.PublishOrderCreated(ctx, evt); err != nil {
		// 订单已落库，发布失败不回滚：订单停留在 PENDING，
		// 可由对账任务补发事件。这里只记录，不向调用方报错。
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to publish order.created")
	} else {
		span.AddEvent("order.created published")
	}

	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("user_id", order.UserID).
		Float64("total", order.TotalAmount).Msg("Order created")
	return order, nil
}

// GetOrder 按 ID 查询订单。
func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.FindByID(ctx, orderID)
}

// ListOrders 按用户/状态过滤订单，limit 上限 500。
func (s *OrderApplicationService) ListOrders(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, error) {
	filter.Limit = clampLimit(filter.Limit, defaultListLimit, maxListLimit)
	return s.repo.List(ctx, filter)
}

// GetUserOrders 查询指定用户的订单，limit 上限 200。
func (s *OrderApplicationService) GetUserOrders(ctx context.Context, userID string, status domain.Status, limit int) (*UserOrdersResponse, error) {
	all, err := s.repo.List(ctx, domain.ListFilter{UserID: userID, Status: status})
	if err != nil {
		return nil, err
	}
	total := len(all)
	limit = clampLimit(limit, defaultUserLimit, maxUserListLimit)
	if len(all) > limit {
		all = all[:limit]
	}
	return &UserOrdersResponse{Orders: all, Total: total, UserID: userID}, nil
}

// GetOrderItems 返回订单行项目子资源。
func (s *OrderApplicationService) GetOrderItems(ctx context.Context, orderID string) (*OrderItemsResponse, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderItemsResponse{
		OrderID:     order.ID,
		Items:       order.Items,
		TotalItems:  len(order.Items),
		TotalAmount: order.TotalAmount,
	}, nil
}

// UpdateOrder 处理显式更新命令。持有订单锁，避免与支付事件迁移交错。
func (s *OrderApplicationService) UpdateOrder(ctx context.Context, orderID string, req *UpdateOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.ApplyUpdate(req.toDomain()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, errors.Wrap(err, "failed to save updated order")
	}
	return order, nil
}

// DeleteOrder 是独立于编排流程的管理命令，不发布任何事件。
func (s *OrderApplicationService) DeleteOrder(ctx context.Context, orderID string) error {
	unlock := s.locks.Lock(orderID)
	defer unlock()
	return s.repo.Delete(ctx, orderID)
}

// HandlePaymentEvent 是编排流程的入站边界，由 payment.* 消费适配器调用。
//
// 错误语义约定：
//   - 返回 nil: 处理完成（含幂等空操作和未知订单丢弃），可以提交 Offset；
//   - 返回 mq.Retryable 包装的错误: 基础设施故障，不提交 Offset，等待重投；
//   - 返回其他错误: 永久失败，适配器将消息转入死信主题后提交。
func (s *OrderApplicationService) HandlePaymentEvent(ctx context.Context, routingKey string, evt *domain.PaymentEvent) error {
	ctx, span := s.tracer.Start(ctx, "app.HandlePaymentEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.routing_key", routingKey),
		attribute.String("order.id", evt.OrderID),
		attribute.String("payment.id", evt.PaymentID),
	)

	unlock := s.locks.Lock(evt.OrderID)
	defer unlock()

	order, err := s.repo.FindByID(ctx, evt.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// 未知订单的支付事件直接丢弃：可能是重投、也可能是创建尚未可见的竞态。
			// 通过计数器暴露给监控，而不是静默吞掉。
			paymentEventsDropped.WithLabelValues("unknown_order").Inc()
			logger.Ctx(ctx).Warn().Str("order_id", evt.OrderID).Str("routing_key", routingKey).
				Msg("Payment event for unknown order, dropping")
			return nil
		}
		return mq.Retryable(errors.Wrap(err, "failed to load order"))
	}

	var transition func() error
	switch routingKey {
	case domain.RoutingKeyPaymentSucceeded:
		transition = order.MarkPaid
	case domain.RoutingKeyPaymentFailed:
		transition = order.MarkPaymentFailed
	default:
		paymentEventsDropped.WithLabelValues("unknown_routing_key").Inc()
		logger.Ctx(ctx).Warn().Str("routing_key", routingKey).Msg("Unexpected routing key, dropping")
		return nil
	}

	if err := transition(); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			// at-least-once 重投或乱序到达，按幂等空操作处理
			span.AddEvent("duplicate payment event ignored")
			logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("routing_key", routingKey).
				Msg("Payment event on terminal order, ignoring")
			return nil
		}
		return err
	}

	if err := s.repo.Save(ctx, order); err != nil {
		return mq.Retryable(errors.Wrap(err, "failed to save order transition"))
	}

	if routingKey == domain.RoutingKeyPaymentFailed {
		ordersCancelled.Inc()
		cancelEvt := &domain.OrderCancelled{OrderID: order.ID, Reason: evt.Reason}
		if err := s.publisher.PublishOrderCancelled(ctx, cancelEvt); err != nil {
			// 状态已落库，重投会命中终态幂等分支而不会补发取消事件；
			// 记录错误留给对账，不让消息无限重投。
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to publish order.cancelled")
		}
		logger.Ctx(ctx).Warn().Str("order_id", order.ID).Str("reason", evt.Reason).
			Msg("Order cancelled due to payment failure")
		return nil
	}

	logger.Ctx(ctx).Info().Str("order_id", order.ID).Msg("Order marked as PAID")
	return nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
