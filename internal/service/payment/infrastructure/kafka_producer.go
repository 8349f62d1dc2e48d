// internal/service/payment/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/payment/domain"
)

// PaymentEventKafkaProducer 实现 port.PaymentEventPublisher。
type PaymentEventKafkaProducer struct {
	succeededWriter *kafka.Writer
	failedWriter    *kafka.Writer
}

func NewPaymentEventKafkaProducer(brokers []string) *PaymentEventKafkaProducer {
	return &PaymentEventKafkaProducer{
		succeededWriter: mq.NewKafkaWriter(brokers, domain.RoutingKeyPaymentSucceeded),
		failedWriter:    mq.NewKafkaWriter(brokers, domain.RoutingKeyPaymentFailed),
	}
}

func (p *PaymentEventKafkaProducer) PublishPaymentSucceeded(ctx context.Context, evt *domain.PaymentSucceeded) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payment.succeeded")
	}
	return mq.ProduceMessage(ctx, p.succeededWriter, []byte(evt.OrderID), payload)
}

func (p *PaymentEventKafkaProducer) PublishPaymentFailed(ctx context.Context, evt *domain.PaymentFailed) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payment.failed")
	}
	return mq.ProduceMessage(ctx, p.failedWriter, []byte(evt.OrderID), payload)
}

// Close 关闭底层的 Kafka writer。
func (p *PaymentEventKafkaProducer) Close() error {
	if err := p.succeededWriter.Close(); err != nil {
		return err
	}
	return p.failedWriter.Close()
}
