// internal/service/order/domain/events.go
package domain

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// 路由键即 Kafka 主题名，与原系统 topic exchange 上的绑定一一对应。
const (
	RoutingKeyOrderCreated     = "order.created"
	RoutingKeyOrderCancelled   = "order.cancelled"
	RoutingKeyPaymentSucceeded = "payment.succeeded"
	RoutingKeyPaymentFailed    = "payment.failed"
)

// OrderCreated 在订单创建成功后发布，驱动支付服务发起扣款。
type OrderCreated struct {
	OrderID         string  `json:"order_id"`
	UserID          string  `json:"user_id"`
	TotalAmount     float64 `json:"total_amount"`
	Items           []Item  `json:"items"`
	ShippingAddress string  `json:"shipping_address,omitempty"`
	PaymentMethod   string  `json:"payment_method,omitempty"`
}

// OrderCancelled 在支付失败导致订单取消时发布，携带原始失败原因。
type OrderCancelled struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentEvent 是订单侧消费 payment.* 路由键时的事件载体。
// succeeded 与 failed 共用同一结构：Reason 仅在失败事件中出现。
type PaymentEvent struct {
	OrderID   string  `json:"order_id"`
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason,omitempty"`
}

// DecodePaymentEvent 在总线边界上做显式的可失败解析。
// 解析失败或缺少 order_id 的消息由调用方丢弃并记录，绝不让消费循环崩溃。
func DecodePaymentEvent(payload []byte) (*PaymentEvent, error) {
	var evt PaymentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, errors.Wrap(err, "malformed payment event payload")
	}
	if evt.OrderID == "" {
		return nil, errors.New("payment event missing order_id")
	}
	return &evt, nil
}
