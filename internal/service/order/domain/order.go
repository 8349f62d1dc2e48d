// internal/service/order/domain/order.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Item 是订单行项目，创建后不可变。
type Item struct {
	ProductID string  `json:"product_id"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Order 是订单聚合的根实体。
// TotalAmount 永远由 Items 重新计算得出，不允许独立修改；
// Status / PaymentStatus 只能通过下面定义的迁移方法变更。
type Order struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Items           []Item        `json:"items"`
	TotalAmount     float64       `json:"total_amount"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	ShippingAddress string        `json:"shipping_address,omitempty"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	TrackingNumber  string        `json:"tracking_number,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewOrderID 生成人类可分辨的订单号: ORD- 前缀 + 8 位大写十六进制随机后缀。
func NewOrderID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return "ORD-" + strings.ToUpper(suffix)
}

// NewOrder 是订单聚合的工厂函数，负责输入校验和总价计算。
// 相同的输入每次都会得到一个全新的订单号。
func NewOrder(userID string, items []Item, shippingAddress, paymentMethod string) (*Order, error) {
	if userID == "" {
		return nil, validationErrorf("user_id is required")
	}
	if len(items) == 0 {
		return nil, validationErrorf("order must contain at least one item")
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, validationErrorf("item %d: quantity must be positive", i)
		}
		if item.Price < 0 {
			return nil, validationErrorf("item %d: price must not be negative", i)
		}
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              NewOrderID(),
		UserID:          userID,
		Items:           items,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		ShippingAddress: shippingAddress,
		PaymentMethod:   paymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.TotalAmount = CalculateTotal(items)
	return o, nil
}

// CalculateTotal 计算行项目的总金额。
func CalculateTotal(items []Item) float64 {
	var total float64
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// MarkPaid 应用 payment.succeeded 事件：PENDING -> PAID / PROCESSING。
// 支付状态已是终态时返回 ErrStateConflict，调用方按幂等空操作处理。
func (o *Order) MarkPaid() error {
	if o.Status == StatusCancelled || o.PaymentStatus.Terminal() {
		return ErrStateConflict
	}
	o.PaymentStatus = PaymentPaid
	o.Status = StatusProcessing
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkPaymentFailed 应用 payment.failed 事件：PENDING -> FAILED / CANCELLED。
func (o *Order) MarkPaymentFailed() error {
	if o.Status == StatusCancelled || o.PaymentStatus.Terminal() {
		return ErrStateConflict
	}
	o.PaymentStatus = PaymentFailed
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Update 是显式更新命令的载体，nil 字段表示不修改。
type Update struct {
	Status          *Status
	PaymentStatus   *PaymentStatus
	ShippingAddress *string
	TrackingNumber  *string
	Notes           *string
}

// ApplyUpdate 应用一次部分更新并刷新 updated_at。
// CANCELLED 是终态：已取消订单上的状态改写会被拒绝，
// 但补充物流单号、备注等信息性字段仍然允许。
func (o *Order) ApplyUpdate(u Update) error {
	if u.Status != nil {
		if !ValidStatus(*u.Status) {
			return validationErrorf("invalid status %q", *u.Status)
		}
		if o.Status == StatusCancelled && *u.Status != StatusCancelled {
			return ErrStateConflict
		}
	}
	if u.PaymentStatus != nil {
		if !ValidPaymentStatus(*u.PaymentStatus) {
			return validationErrorf("invalid payment status %q", *u.PaymentStatus)
		}
		if o.Status == StatusCancelled && *u.PaymentStatus != o.PaymentStatus {
			return ErrStateConflict
		}
	}

	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.PaymentStatus != nil {
		o.PaymentStatus = *u.PaymentStatus
	}
	if u.ShippingAddress != nil {
		o.ShippingAddress = *u.ShippingAddress
	}
	if u.TrackingNumber != nil {
		o.TrackingNumber = *u.TrackingNumber
	}
	if u.Notes != nil {
		o.Notes = *u.Notes
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}
