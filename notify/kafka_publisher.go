package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"disputeflow/arbitration"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each notification to "<prefix><topic>", keyed by
// dispute so a dispute's notifications share a partition.
type KafkaPublisher struct {
	writer      messageWriter
	topicPrefix string
}

// NewKafkaPublisher writes to topicPrefix plus the notification topic.
func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("notify: kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topicPrefix: topicPrefix,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, n arbitration.Notification) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topicPrefix + n.Topic,
		Key:   []byte(n.PartitionKey),
		Value: n.Payload,
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: "outbox_id", Value: []byte(n.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: kafka write %s: %w", n.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
