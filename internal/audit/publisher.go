package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/logs"

	"engine/internal/errors"
	"engine/internal/schema"
)

// LogPublisher writes audit records to the log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, recs ...schema.CashOperation) error {
	for _, rec := range recs {
		logs.Infof("cash operation %s client %s asset %s volume %s at %s",
			rec.ID, rec.ClientID, rec.Asset, rec.Volume, rec.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	}
	return nil
}

// KafkaPublisher writes audit records as JSON to a kafka topic, keyed by
// client so the records of one client stay ordered in one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    defaultBatchSize,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, recs ...schema.CashOperation) error {
	msgs, err := kafkaMessages(recs)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write kafka messages")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func kafkaMessages(recs []schema.CashOperation) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(recs))
	for _, rec := range recs {
		value, err := json.Marshal(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal cash operation %s", rec.ID)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.ClientID),
			Value: value,
			Time:  rec.Timestamp,
		})
	}
	return msgs, nil
}
