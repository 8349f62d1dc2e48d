// internal/service/order/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/order/domain"
)

// OrderEventKafkaProducer 实现 port.OrderEventPublisher。
// 每个路由键对应一个独立主题的 Writer；消息 Key 使用 order_id，
// 同一订单的事件落在同一分区（但消费方仍按无序、可重复来写）。
type OrderEventKafkaProducer struct {
	createdWriter   *kafka.Writer
	cancelledWriter *kafka.Writer
}

func NewOrderEventKafkaProducer(brokers []string) *OrderEventKafkaProducer {
	return &OrderEventKafkaProducer{
		createdWriter:   mq.NewKafkaWriter(brokers, domain.RoutingKeyOrderCreated),
		cancelledWriter: mq.NewKafkaWriter(brokers, domain.RoutingKeyOrderCancelled),
	}
}

func (p *OrderEventKafkaProducer) PublishOrderCreated(ctx context.Context, evt *domain.OrderCreated) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal order.created")
	}
	return mq.ProduceMessage(ctx, p.createdWriter, []byte(evt.OrderID), payload)
}

func (p *OrderEventKafkaProducer) PublishOrderCancelled(ctx context.Context, evt *domain.OrderCancelled) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal order.cancelled")
	}
	return mq.ProduceMessage(ctx, p.cancelledWriter, []byte(evt.OrderID), payload)
}

// Close 关闭底层的 Kafka writer。
func (p *OrderEventKafkaProducer) Close() error {
	if err := p.createdWriter.Close(); err != nil {
		return err
	}
	return p.cancelledWriter.Close()
}
