package sqsqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type Handler[T any] func(ctx context.Context, job T) error

// Consumer long-polls a queue and decodes each message body into T.
type Consumer[T any] struct {
	SQS      API
	QueueURL string

	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32

	// DeleteOnError removes messages even when the handler fails. Without it
	// failed messages are left for SQS redrive / DLQ.
	DeleteOnError bool
}

func (c *Consumer[T]) delete(ctx context.Context, m types.Message) {
	// deletes must land even while shutting down
	_, err := c.SQS.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      &c.QueueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		slog.Error("sqs delete message failed", "err", err, "queue", c.QueueURL)
	}
}

func (c *Consumer[T]) handle(ctx context.Context, m types.Message, handler Handler[T]) {
	// poison messages are dropped so they don't loop forever
	if m.Body == nil {
		c.delete(ctx, m)
		return
	}
	var job T
	if err := json.Unmarshal([]byte(*m.Body), &job); err != nil {
		slog.Warn("sqs bad payload", "err", err, "queue", c.QueueURL)
		c.delete(ctx, m)
		return
	}

	if err := handler(ctx, job); err != nil {
		slog.Error("sqs handler error", "err", err, "queue", c.QueueURL)
		if !c.DeleteOnError {
			return
		}
	}
	c.delete(ctx, m)
}

// PollConcurrent processes messages with a worker pool until ctx is done.
// Handlers already running are finished before it returns; buffered messages
// not yet started are left on the queue.
func (c *Consumer[T]) PollConcurrent(ctx context.Context, workers int, handler Handler[T]) error {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan types.Message, workers*2)
	errCh := make(chan error, 1)

	sendErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				// received but not started: leave it to come back after the visibility timeout
				if ctx.Err() != nil {
					continue
				}
				c.handle(ctx, m, handler)
			}
		}()
	}

	go func() {
		defer close(jobs)

		for {
			if ctx.Err() != nil {
				sendErr(ctx.Err())
				return
			}

			out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            &c.QueueURL,
				MaxNumberOfMessages: c.MaxMessages,
				WaitTimeSeconds:     c.WaitTimeSeconds,
				VisibilityTimeout:   c.VisibilityTimeout,
			})
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("sqs receive message failed", "err", err, "queue", c.QueueURL)
				}
				select {
				case <-time.After(500 * time.Millisecond):
				case <-ctx.Done():
				}
				continue
			}

			for _, m := range out.Messages {
				select {
				case jobs <- m:
				case <-ctx.Done():
					sendErr(ctx.Err())
					return
				}
			}
		}
	}()

	err := <-errCh
	wg.Wait()
	return err
}
