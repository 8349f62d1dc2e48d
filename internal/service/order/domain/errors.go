// internal/service/order/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrOrderNotFound 同步命令返回 404；异步事件引用未知订单时被记录后丢弃。
	ErrOrderNotFound = errors.New("order not found")

	// ErrStateConflict 表示状态迁移前置条件不满足（如对终态订单重复投递支付结果）。
	// 事件消费方把它当作幂等空操作，而不是故障。
	ErrStateConflict = errors.New("order state transition conflict")
)

// ValidationError 表示输入不合法，同步返回给调用方，永不自动重试。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: errors.Errorf(format, args...).Error()}
}

// IsValidation 判断错误是否属于输入校验失败。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
