// internal/service/payment/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrPaymentNotFound 未知支付单号。
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrUnsupportedMethod 支付方式无法映射到任何已知网关。
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// ValidationError 表示输入不合法，同步返回给调用方，永不自动重试。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// IsValidation 判断错误是否属于输入校验失败。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
