package component

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/infrastructure/dispatch"
	pkgkafka "medkit-service/pkg/kafka"
	"medkit-service/pkg/logger"
	"medkit-service/pkg/manager"
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// JobConsumerPlugin runs queued jobs from the Kafka topic.
type JobConsumerPlugin struct{}

func (p *JobConsumerPlugin) Name() string { return "jobConsumer" }

func (p *JobConsumerPlugin) MustCreateComponent(deps *manager.Dependencies) manager.Component {
	cfg := deps.Config
	if cfg == nil || !cfg.Kafka.Enabled {
		logger.Infof("kafka disabled, job consumer not started")
		return nil
	}
	runner, ok := deps.Runner.(port.JobRunner)
	if !ok {
		panic("job consumer requires a port.JobRunner")
	}
	topic, group := cfg.Kafka.Topics.MediaJobs, cfg.Kafka.GroupID
	return NewJobConsumer(runner, cfg.Worker.MaxConcurrentTasks, ConsumerOptions{
		CommitOnDecodeError:  cfg.Kafka.CommitOnDecodeError,
		CommitOnProcessError: cfg.Kafka.CommitOnProcessError,
	}, func() messageReader {
		return pkgkafka.DefaultClient().Reader(topic, group)
	})
}

// ConsumerOptions 控制失败消息是否提交
type ConsumerOptions struct {
	CommitOnDecodeError  bool
	CommitOnProcessError bool
}

// JobConsumer 每个并发槽位一个 group 成员, each handles one job at a time.
type JobConsumer struct {
	runner    port.JobRunner
	slots     int
	opts      ConsumerOptions
	newReader func() messageReader

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJobConsumer(runner port.JobRunner, slots int, opts ConsumerOptions, newReader func() messageReader) *JobConsumer {
	if slots <= 0 {
		slots = 1
	}
	return &JobConsumer{runner: runner, slots: slots, opts: opts, newReader: newReader}
}

func (c *JobConsumer) Start() error {
	if c.cancel != nil {
		return fmt.Errorf("job consumer already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	for i := 0; i < c.slots; i++ {
		reader := c.newReader()
		c.wg.Add(1)
		go func(slot int) {
			defer c.wg.Done()
			defer reader.Close()
			c.consume(ctx, reader, slot)
		}(i)
	}
	logger.Infof("Kafka job consumer started slots=%d", c.slots)
	return nil
}

func (c *JobConsumer) consume(ctx context.Context, reader messageReader, slot int) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			logger.Warnf("Kafka fetch error slot=%d error=%v", slot, err)
			continue
		}
		if c.handle(ctx, msg, slot) {
			if err := reader.CommitMessages(context.Background(), msg); err != nil {
				logger.Warnf("Kafka commit failed partition=%d offset=%d error=%v", msg.Partition, msg.Offset, err)
			}
		}
	}
}

// handle runs one message and reports whether its offset should be committed.
func (c *JobConsumer) handle(ctx context.Context, msg kafka.Message, slot int) bool {
	m, err := dispatch.DecodeJobMessage(msg.Value)
	if err != nil {
		logger.Warnf("Kafka message decode error offset=%d error=%v", msg.Offset, err)
		return c.opts.CommitOnDecodeError
	}
	logger.Infof("Kafka job received job_id=%s slot=%d", m.JobID, slot)
	if err := c.runner.Run(ctx, m.JobID); err != nil {
		if ctx.Err() != nil {
			// shutdown: leave uncommitted so the job is redelivered
			logger.Warnf("job interrupted by shutdown job_id=%s", m.JobID)
			return false
		}
		logger.Errorf("job run failed job_id=%s error=%v", m.JobID, err)
		return c.opts.CommitOnProcessError
	}
	return true
}

func (c *JobConsumer) Stop() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	c.cancel = nil
	logger.Infof("Kafka job consumer stopped")
	return nil
}

func (c *JobConsumer) GetName() string { return "jobConsumer" }
