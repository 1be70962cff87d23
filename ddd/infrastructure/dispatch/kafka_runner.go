package dispatch

import (
	"context"
	"fmt"
	"time"

	"medkit-service/ddd/domain/port"
)

// Producer publishes one message.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// KafkaRunner is the queued execution path: it publishes the job id for a worker
// process to pick up.
type KafkaRunner struct {
	producer Producer
	topic    string
}

// NewKafkaRunner returns a runner that always reports unavailable when producer is nil.
func NewKafkaRunner(producer Producer, topic string) *KafkaRunner {
	return &KafkaRunner{producer: producer, topic: topic}
}

func (r *KafkaRunner) Name() string { return "kafka" }

func (r *KafkaRunner) Submit(ctx context.Context, jobID string) error {
	if r.producer == nil {
		return fmt.Errorf("%w: kafka disabled", port.ErrRunnerUnavailable)
	}
	payload, err := EncodeJobMessage(jobID, time.Now())
	if err != nil {
		return err
	}
	// keyed by job id so redeliveries of one job land on the same partition
	if err := r.producer.Produce(ctx, r.topic, []byte(jobID), payload); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", port.ErrRunnerUnavailable, r.topic, err)
	}
	return nil
}
