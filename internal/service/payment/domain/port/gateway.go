// internal/service/payment/domain/port/gateway.go
package port

import (
	"context"

	"orderflow/internal/service/payment/domain"
)

// GatewayRequest 是发往支付网关的扣款请求。
type GatewayRequest struct {
	PaymentID string
	OrderID   string
	UserID    string
	Amount    float64
	Currency  string
	Method    string
}

// GatewayResult 是网关返回的扣款结果。
type GatewayResult struct {
	TransactionID string
	Status        string
}

// RefundResult 是网关返回的退款结果。
type RefundResult struct {
	RefundID string
	Status   string
	Amount   float64
}

// Gateway 是支付网关的出站端口。
// 生产实现是模拟的 stripe / yoomoney 适配器；测试注入确定性假实现，
// 覆盖成功、失败、超时三类场景，而不是依赖随机数。
type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, req *GatewayRequest) (*GatewayResult, error)
	GetStatus(ctx context.Context, paymentID string) (string, error)
	Refund(ctx context.Context, paymentID string, amount float64) (*RefundResult, error)
}

// SelectGateway 按支付方式路由到网关名。
// card / apple_pay / google_pay 走 stripe，yoomoney 走 yoomoney，
// 其余一律拒绝。
func SelectGateway(method string, gateways map[string]Gateway) (Gateway, error) {
	var name string
	switch method {
	case "card", "apple_pay", "google_pay":
		name = "stripe"
	case "yoomoney":
		name = "yoomoney"
	default:
		return nil, domain.ErrUnsupportedMethod
	}
	gw, ok := gateways[name]
	if !ok {
		return nil, domain.ErrUnsupportedMethod
	}
	return gw, nil
}
