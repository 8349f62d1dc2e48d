// internal/service/order/domain/state.go
package domain

// Status 定义了订单的生命周期状态。
// SHIPPED / COMPLETED 属于履约域，当前编排流程不会产生这两个状态，
// 但显式更新命令允许运营人员写入它们。
type Status string

const (
	StatusPending    Status = "PENDING"    // 初始状态，等待支付结果
	StatusProcessing Status = "PROCESSING" // 支付成功，进入履约
	StatusShipped    Status = "SHIPPED"    // 已发货
	StatusCompleted  Status = "COMPLETED"  // 已完成
	StatusCancelled  Status = "CANCELLED"  // 终态，不允许任何后续迁移
)

// PaymentStatus 定义了订单上支付结果的状态。
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"  // 尚未收到支付结果
	PaymentPaid     PaymentStatus = "PAID"     // 支付成功（终态）
	PaymentFailed   PaymentStatus = "FAILED"   // 支付失败（终态）
	PaymentRefunded PaymentStatus = "REFUNDED" // 已退款
)

// ValidStatus 校验显式更新命令写入的状态值。
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus 校验显式更新命令写入的支付状态值。
func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Terminal 返回该支付状态是否为终态。
// 终态下收到的重复支付事件按幂等空操作处理，容忍 at-least-once 重投。
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentRefunded
}
