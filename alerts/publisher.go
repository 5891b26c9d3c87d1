package alerts

import (
	"context"
	"time"

	"health-alert-inference/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type KafkaOptions struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// KafkaPublisher writes alert events as JSON messages keyed by patient id, so
// one patient's alerts stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(opts KafkaOptions) (*KafkaPublisher, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka publisher needs at least one broker")
	}
	if opts.Topic == "" {
		return nil, errors.New("kafka publisher needs a topic")
	}
	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	log.Infof("publishing alerts to kafka topic %s on %v", opts.Topic, opts.Brokers)
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: batchTimeout,
			RequiredAcks: kafka.RequireOne,
		},
	}, nil
}

func (kp *KafkaPublisher) Publish(ctx context.Context, event models.AlertEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return errors.Wrap(kp.writer.WriteMessages(ctx, msg), "write alert message")
}

func (kp *KafkaPublisher) Close() error {
	return kp.writer.Close()
}

func encodeEvent(event models.AlertEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode alert")
	}
	return kafka.Message{
		Key:   []byte(event.PatientID),
		Value: value,
		Time:  event.RaisedAt,
	}, nil
}

// LogPublisher writes alerts to the service log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event models.AlertEvent) error {
	log.WithField("patient_id", event.PatientID).
		WithField("date", event.Date).
		Warnf("alert: score=%.4f threshold=%.4f confidence=%.4f", event.AnomalyScore, event.Threshold, event.Confidence)
	return nil
}

func (LogPublisher) Close() error {
	return nil
}
