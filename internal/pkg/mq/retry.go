// internal/pkg/mq/retry.go
package mq

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"orderflow/internal/pkg/logger"
)

// HandleWithRetry 在同一条消息上原地重试可重试的处理失败。
//
// 消费循环不能丢下一条失败的消息继续拉取：提交任何后续消息都会
// 连带提交它之前的位点，失败的消息从此失去重投机会。
// 因此可重试失败必须在当前位置解决——按固定间隔重试，
// 次数用尽后整体视为永久失败返回，由调用方转死信。
// 永久失败立即返回；ctx 取消时带着当前错误返回。
func HandleWithRetry(ctx context.Context, attempts int, backoff time.Duration, handle func(ctx context.Context) error) error {
	var err error
	for i := 1; ; i++ {
		err = handle(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if i >= attempts {
			return errors.Wrapf(err, "handler failed after %d attempts", attempts)
		}
		logger.Ctx(ctx).Warn().Err(err).Int("attempt", i).Msg("Retryable failure, retrying in place")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
	}
}
