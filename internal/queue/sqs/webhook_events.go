package sqsqueue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"mailcast/internal/events"
	"mailcast/internal/observability"
)

const QueueWebhookEvents = "webhook_events"

// WebhookProducer enqueues verified provider deliveries.
// SQS caps a message at 256KB, so deliveries are sent one per message.
type WebhookProducer struct {
	SQS      API
	QueueURL string
}

func (p *WebhookProducer) Enqueue(ctx context.Context, d events.Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	})
	observability.Enqueues.WithLabelValues(QueueWebhookEvents, result(err)).Inc()
	return err
}
