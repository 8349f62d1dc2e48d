// internal/service/payment/domain/payment.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status 是一次支付尝试的结果状态。
type Status string

const (
	StatusPending   Status = "pending"   // 尝试已记录，结果未出（含熔断降级）
	StatusSucceeded Status = "succeeded" // 终态
	StatusFailed    Status = "failed"    // 终态
	StatusRefunded  Status = "refunded"  // 退款完成

	// StatusProcessing 是熔断降级时同步返回给调用方的合成状态，
	// 永远不会被持久化——落库的记录保持 pending。
	StatusProcessing Status = "processing"
)

// Payment 是一次支付尝试的记录。
// 每次尝试都有独立的 ID；一个订单只有在前一次尝试失败、
// 且显式发起重试命令时才会出现多条记录——编排流程不做自动重试。
type Payment struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Gateway   string    `json:"gateway"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPaymentID 生成支付单号: PAY- 前缀 + 8 位大写十六进制随机后缀。
func NewPaymentID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return "PAY-" + strings.ToUpper(suffix)
}

// NewPayment 创建一条处于 pending 状态的支付尝试记录。
func NewPayment(orderID, userID string, amount float64, currency, gateway string) *Payment {
	now := time.Now().UTC()
	return &Payment{
		ID:        NewPaymentID(),
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Currency:  currency,
		Gateway:   gateway,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkSucceeded 记录终态成功。每次完成的尝试只允许一个终态。
func (p *Payment) MarkSucceeded() {
	p.Status = StatusSucceeded
	p.UpdatedAt = time.Now().UTC()
}

// MarkFailed 记录终态失败及其原因。
func (p *Payment) MarkFailed(reason string) {
	p.Status = StatusFailed
	p.Reason = reason
	p.UpdatedAt = time.Now().UTC()
}

// MarkDegraded 记录熔断降级：结果悬而未决，保持 pending，只打上 fallback 标记。
func (p *Payment) MarkDegraded(reason string) {
	p.Reason = reason
	p.UpdatedAt = time.Now().UTC()
}

// MarkRefunded 记录退款完成。
func (p *Payment) MarkRefunded() {
	p.Status = StatusRefunded
	p.UpdatedAt = time.Now().UTC()
}

// ReconcileStatus 用网关侧查询到的权威状态刷新本地记录，
// 返回是否发生了变更。未知的状态值被忽略，本地记录保持不变。
func (p *Payment) ReconcileStatus(s Status) bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed, StatusRefunded:
	default:
		return false
	}
	if s == p.Status {
		return false
	}
	p.Status = s
	p.UpdatedAt = time.Now().UTC()
	return true
}
