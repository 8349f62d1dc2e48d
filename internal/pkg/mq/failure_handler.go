// internal/pkg/mq/failure_handler.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"orderflow/internal/pkg/logger"
)

// 死信消息头，记录原始消息的位置和失败原因，便于事后排查。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
)

// RetryableError 标记一个可重试的处理失败。
// 消费者对这类错误不提交 Offset，消息会被重新投递（at-least-once 语义）；
// 其余错误被视为永久失败，转入死信主题后提交，避免无限重投循环。
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable 包装一个错误为可重试错误。
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable 判断处理失败后消息是否应当重新投递。
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// FailureHandler 负责把永久失败的消息转移到死信主题。
type FailureHandler struct {
	dltWriter *kafka.Writer
}

// NewFailureHandler 创建死信处理器。dltWriter 指向 <服务名>.dlt 主题。
func NewFailureHandler(dltWriter *kafka.Writer) *FailureHandler {
	return &FailureHandler{dltWriter: dltWriter}
}

// Handle 把原始消息连同失败上下文写入死信主题。
// 死信投递本身失败时只记录日志——此时消息已被认定为不可处理，
// 让消费循环继续比卡死在一条坏消息上更重要。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	dltMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderExceptionMessage, Value: []byte(fmt.Sprintf("%v", cause))},
		),
	}

	if err := h.dltWriter.WriteMessages(ctx, dltMsg); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("original_topic", msg.Topic).
			Str("key", string(msg.Key)).
			Msg("🚨 CRITICAL: failed to move message to DLT")
		return
	}

	logger.Ctx(ctx).Warn().
		Str("original_topic", msg.Topic).
		Str("key", string(msg.Key)).
		Str("cause", cause.Error()).
		Msg("Message moved to DLT")
}
