// internal/service/payment/domain/events.go
package domain

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// 路由键即 Kafka 主题名。
const (
	RoutingKeyOrderCreated     = "order.created"
	RoutingKeyPaymentSucceeded = "payment.succeeded"
	RoutingKeyPaymentFailed    = "payment.failed"
)

// 失败原因标记。fallback 表示熔断降级，消费方据此区分真实拒付和降级延期。
const (
	ReasonFallback     = "fallback"
	ReasonGatewayError = "gateway_error"
)

// OrderCreated 是支付侧消费的入站事件，由订单服务发布。
type OrderCreated struct {
	OrderID         string      `json:"order_id"`
	UserID          string      `json:"user_id"`
	TotalAmount     float64     `json:"total_amount"`
	Items           []OrderItem `json:"items,omitempty"`
	ShippingAddress string      `json:"shipping_address,omitempty"`
	PaymentMethod   string      `json:"payment_method,omitempty"`
}

// OrderItem 只保留支付侧关心的字段。
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// DecodeOrderCreated 在总线边界上做显式的可失败解析。
func DecodeOrderCreated(payload []byte) (*OrderCreated, error) {
	var evt OrderCreated
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, errors.Wrap(err, "malformed order.created payload")
	}
	if evt.OrderID == "" {
		return nil, errors.New("order.created missing order_id")
	}
	return &evt, nil
}

// PaymentSucceeded 在网关扣款成功后发布。
type PaymentSucceeded struct {
	OrderID   string  `json:"order_id"`
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
}

// PaymentFailed 在网关扣款失败或熔断降级时发布。
// Reason 以 fallback / gateway_error 开头，订单侧原样透传到 order.cancelled。
type PaymentFailed struct {
	OrderID   string  `json:"order_id"`
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}
