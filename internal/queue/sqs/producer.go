package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"mailcast/internal/observability"
)

const QueueCampaigns = "campaigns"

// CampaignSendJob asks a worker to run the send pipeline for one campaign.
type CampaignSendJob struct {
	CampaignID  string    `json:"campaignId"`
	RequestedAt time.Time `json:"requestedAt"`
}

type Producer struct {
	SQS      API
	QueueURL string
}

func (p *Producer) EnqueueCampaignSend(ctx context.Context, job CampaignSendJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	}
	if isFIFO(p.QueueURL) {
		// one in-flight send per campaign; repeated clicks inside the dedup window collapse
		in.MessageGroupId = str(job.CampaignID)
		in.MessageDeduplicationId = str(fmt.Sprintf("%s:%d", job.CampaignID, job.RequestedAt.Unix()))
	}
	_, err = p.SQS.SendMessage(ctx, in)
	observability.Enqueues.WithLabelValues(QueueCampaigns, result(err)).Inc()
	return err
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
