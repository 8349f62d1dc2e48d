// internal/pkg/mq/kafka.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/logger"
)

// NewKafkaWriter 创建一个指向单个主题的生产者。
// 每个路由键（order.created / payment.succeeded / ...）对应一个独立的主题，
// 这与原系统中 topic exchange + routing key 的绑定关系等价。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // 按消息 Key（order_id）哈希，同一订单落在同一分区
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// NewGroupReader 创建一个订阅多个主题的消费者。
// groupID 对应原系统中每个服务独立命名的持久化队列，
// topics 对应该队列绑定的路由键集合（如 payment.* 展开为两个主题）。
func NewGroupReader(brokers []string, groupID string, topics []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
}

// ProduceMessage 发送一条消息，并自动把当前的追踪上下文注入到消息头中。
// 下游消费者通过 KafkaHeaderCarrier 提取，形成跨服务的完整调用链。
func ProduceMessage(ctx context.Context, writer *kafka.Writer, key, value []byte) error {
	msg := kafka.Message{
		Key:   key,
		Value: value,
	}

	carrier := KafkaHeaderCarrier(msg.Headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = carrier

	if err := writer.WriteMessages(ctx, msg); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("topic", writer.Topic).Msg("Failed to produce message")
		return err
	}
	return nil
}

// KafkaHeaderCarrier 让 kafka 消息头实现 otel 的 TextMapCarrier 接口。
type KafkaHeaderCarrier []kafka.Header

func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaHeaderCarrier) Set(key, value string) {
	// 覆盖同名 header，避免重复注入
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}
