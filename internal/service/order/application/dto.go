// internal/service/order/application/dto.go
package application

import "orderflow/internal/service/order/domain"

// CreateOrderRequest 是创建订单用例的输入数据。
// user_id 由上游网关完成认证后透传，这里当作不透明标识使用。
type CreateOrderRequest struct {
	UserID          string        `json:"user_id"`
	Items           []domain.Item `json:"items"`
	ShippingAddress string        `json:"shipping_address,omitempty"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
}

// UpdateOrderRequest 是部分更新命令的输入，nil 字段保持不变。
type UpdateOrderRequest struct {
	Status          *domain.Status        `json:"status,omitempty"`
	PaymentStatus   *domain.PaymentStatus `json:"payment_status,omitempty"`
	ShippingAddress *string               `json:"shipping_address,omitempty"`
	TrackingNumber  *string               `json:"tracking_number,omitempty"`
	Notes           *string               `json:"notes,omitempty"`
}

// UserOrdersResponse 是按用户查询订单的输出。
type UserOrdersResponse struct {
	Orders []*domain.Order `json:"orders"`
	Total  int             `json:"total"`
	UserID string          `json:"user_id"`
}

// OrderItemsResponse 是订单行项目子资源的输出。
type OrderItemsResponse struct {
	OrderID     string        `json:"order_id"`
	Items       []domain.Item `json:"items"`
	TotalItems  int           `json:"total_items"`
	TotalAmount float64       `json:"total_amount"`
}

func (r *UpdateOrderRequest) toDomain() domain.Update {
	return domain.Update{
		Status:          r.Status,
		PaymentStatus:   r.PaymentStatus,
		ShippingAddress: r.ShippingAddress,
		TrackingNumber:  r.TrackingNumber,
		Notes:           r.Notes,
	}
}
