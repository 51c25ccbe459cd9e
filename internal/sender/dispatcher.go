package sender

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"mailcast/internal/batch"
	"mailcast/internal/domain"
	"mailcast/internal/observability"
	"mailcast/internal/providers"
	"mailcast/internal/store"
	"mailcast/internal/tracking"
	"mailcast/internal/util"
)

// Message is the campaign content before per-recipient rendering.
type Message struct {
	CampaignID string
	From       string
	FromName   string
	ReplyTo    string
	Subject    string
	HTML       string
	Track      bool
}

func MessageFromCampaign(c domain.Campaign, track bool) Message {
	return Message{
		CampaignID: c.ID,
		From:       c.FromEmail,
		FromName:   c.FromName,
		ReplyTo:    c.ReplyTo,
		Subject:    c.Subject,
		HTML:       c.HTMLBody,
		Track:      track,
	}
}

type Recipient struct {
	Email string
	Vars  map[string]string
}

func RecipientsFrom(subs []domain.Subscriber) []Recipient {
	out := make([]Recipient, 0, len(subs))
	for _, s := range subs {
		out = append(out, Recipient{Email: s.Email, Vars: s.MergeVars()})
	}
	return out
}

type Recorder interface {
	RecordAttempt(ctx context.Context, in store.SendAttempt) error
}

type Outcome struct {
	Batches int `json:"batches"`
	Sent    int `json:"sent"`
}

// BatchError reports the batch that stopped a dispatch. Sent counts every
// recipient accepted by the provider before and during that batch.
type BatchError struct {
	Batch  int
	Sent   int
	Failed int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %d of its sends failed (%d sent so far): %v", e.Batch, e.Failed, e.Sent, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

type Dispatcher struct {
	Sender   providers.Sender
	Recorder Recorder
	AppURL   string

	BatchSize int
	// Concurrency caps in-flight sends within one batch; 0 sends the whole batch at once.
	Concurrency int
}

// Dispatch sends msg to every recipient, one batch at a time. All sends of a batch
// settle before the next batch starts. The first failing batch ends the dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, recipients []Recipient) (Outcome, error) {
	var out Outcome
	for i, b := range batch.Partition(recipients, d.BatchSize) {
		sent, err := d.sendBatch(ctx, msg, b)
		out.Batches++
		out.Sent += sent
		if err != nil {
			observability.Batches.WithLabelValues("failed").Inc()
			return out, &BatchError{Batch: i, Sent: out.Sent, Failed: len(b) - sent, Err: err}
		}
		observability.Batches.WithLabelValues("ok").Inc()
		slog.Info("batch dispatched", "campaign_id", msg.CampaignID, "batch", i, "size", len(b), "sent_total", out.Sent)
	}
	return out, nil
}

func (d *Dispatcher) sendBatch(ctx context.Context, msg Message, recipients []Recipient) (int, error) {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs *multierror.Error
		sent int
	)
	if d.Concurrency > 0 {
		g.SetLimit(d.Concurrency)
	}

	for _, r := range recipients {
		g.Go(func() error {
			req := d.render(msg, r)
			res, err := d.Sender.Send(ctx, req)
			d.record(ctx, msg.CampaignID, r.Email, res, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", r.Email, err))
				return err
			}
			sent++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sent, errs.ErrorOrNil()
	}
	return sent, nil
}

func (d *Dispatcher) render(msg Message, r Recipient) providers.Request {
	html := util.RenderTemplate(msg.HTML, r.Vars)
	return providers.Request{
		To:         r.Email,
		From:       msg.From,
		FromName:   msg.FromName,
		ReplyTo:    msg.ReplyTo,
		Subject:    util.RenderTemplate(msg.Subject, r.Vars),
		HTML:       tracking.Augment(html, d.AppURL, msg.CampaignID, msg.Track),
		CampaignID: msg.CampaignID,
	}
}

func (d *Dispatcher) record(ctx context.Context, campaignID, email string, res providers.Result, sendErr error) {
	if d.Recorder == nil {
		return
	}
	in := store.SendAttempt{
		CampaignID:    campaignID,
		Email:         email,
		Provider:      res.Provider,
		ProviderMsgID: res.MessageID,
		HTTPStatus:    res.HTTPStatus,
		Now:           util.NowUTC(),
	}
	if sendErr != nil {
		in.Error = sendErr.Error()
	}
	if err := d.Recorder.RecordAttempt(ctx, in); err != nil {
		slog.Warn("record send attempt failed", "err", err, "campaign_id", campaignID, "email", email)
	}
}
