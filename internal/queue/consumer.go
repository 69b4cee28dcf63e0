package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/clipline/internal/models"
	"github.com/your-org/clipline/internal/observability"
)

// JobHandler processes one dequeued job.
type JobHandler func(ctx context.Context, msg models.QueueMessage) error

// DeadLetterSink receives jobs that exhausted their retry budget.
// *Producer satisfies it.
type DeadLetterSink interface {
	PublishDeadLetter(ctx context.Context, dl models.DeadLetter) error
}

type Consumer struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	dlq DeadLetterSink
}

func NewConsumer(natsURL string, dlq DeadLetterSink) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Consumer{nc: nc, js: js, dlq: dlq}, nil
}

// ConsumeJobs starts consuming processing jobs from the JOBS stream.
// workerCount determines how many goroutines process messages concurrently.
func (c *Consumer) ConsumeJobs(ctx context.Context, consumerName string, handler JobHandler, workerCount int) error {
	stream, err := c.js.Stream(ctx, JobsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", JobsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Minute,
		MaxDeliver:    MaxDeliver,
		FilterSubject: JobsSubject,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	// Fetch loop
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(msgCh)
				return
			default:
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					close(msgCh)
					return
				}
				slog.Warn("fetch jobs error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					close(msgCh)
					return
				}
			}
		}
	}()

	// Workers
	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				c.process(ctx, msg, handler, workerID)
			}
		}(i)
	}

	slog.Info("job consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// process runs the handler for one message and applies the retry/DLQ
// policy: failures below the delivery ceiling are redelivered, the final
// failure is dead-lettered exactly once and acknowledged.
func (c *Consumer) process(ctx context.Context, msg jetstream.Msg, handler JobHandler, workerID int) {
	var job models.QueueMessage
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		// A malformed message can never succeed; don't let it cycle.
		slog.Error("unmarshal queue message", "worker", workerID, "error", err)
		_ = msg.Term()
		observability.JobsProcessed.WithLabelValues("malformed").Inc()
		return
	}

	err := handler(ctx, job)
	if err == nil {
		_ = msg.Ack()
		observability.JobsProcessed.WithLabelValues("ok").Inc()
		return
	}

	delivered := uint64(1)
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		delivered = meta.NumDelivered
	}

	if delivered < MaxDeliver {
		slog.Warn("job failed, requesting redelivery",
			"worker", workerID,
			"source_id", job.SourceID,
			"attempt", delivered,
			"error", err,
		)
		_ = msg.Nak()
		observability.JobsProcessed.WithLabelValues("retry").Inc()
		return
	}

	slog.Error("job exhausted retries, dead-lettering",
		"worker", workerID,
		"source_id", job.SourceID,
		"attempts", delivered,
		"error", err,
	)

	dl := models.DeadLetter{
		Message:  job,
		Error:    err.Error(),
		FailedAt: time.Now().UTC(),
	}
	if dlqErr := c.dlq.PublishDeadLetter(ctx, dl); dlqErr != nil {
		// Don't ack: losing the message silently is worse than leaving it
		// pending for an operator.
		slog.Error("publish dead letter", "source_id", job.SourceID, "error", dlqErr)
		return
	}

	_ = msg.Ack()
	observability.JobsDeadLettered.Inc()
	observability.JobsProcessed.WithLabelValues("dead_lettered").Inc()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
