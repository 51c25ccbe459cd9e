package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mailcast/internal/domain"
	"mailcast/internal/observability"
	"mailcast/internal/providers"
)

type Store interface {
	StatusStore
	ListActiveSubscribers(ctx context.Context, listID string) ([]domain.Subscriber, error)
}

type Pipeline struct {
	Store      Store
	Tracker    *Tracker
	Dispatcher *Dispatcher
}

// Send runs one campaign end to end: sending, every batch, then sent or failed.
// A send cannot be cancelled once started; ctx cancellation is ignored.
func (p *Pipeline) Send(ctx context.Context, campaignID string) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	c, err := p.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return Outcome{}, err
	}
	if err := c.Sendable(); err != nil {
		return Outcome{}, fmt.Errorf("campaign %s: %w", campaignID, err)
	}

	if err := p.Tracker.Start(ctx, campaignID); err != nil {
		return Outcome{}, err
	}

	subs, err := p.Store.ListActiveSubscribers(ctx, c.ListID)
	if err != nil {
		return Outcome{}, p.fail(ctx, campaignID, fmt.Errorf("list subscribers: %w", err))
	}

	out, err := p.Dispatcher.Dispatch(ctx, MessageFromCampaign(c, true), RecipientsFrom(subs))
	if err != nil {
		return out, p.fail(ctx, campaignID, err)
	}

	if err := p.Tracker.Complete(ctx, campaignID); err != nil {
		return out, p.fail(ctx, campaignID, err)
	}

	observability.CampaignSends.WithLabelValues("sent").Inc()
	slog.Info("campaign sent",
		"campaign_id", campaignID,
		"recipients", len(subs),
		"batches", out.Batches,
		"duration", time.Since(start),
	)
	return out, nil
}

func (p *Pipeline) fail(ctx context.Context, campaignID string, cause error) error {
	observability.CampaignSends.WithLabelValues("failed").Inc()
	slog.Error("campaign send failed", "campaign_id", campaignID, "err", cause)
	if err := p.Tracker.Fail(ctx, campaignID); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// SendTest delivers one untracked copy of the campaign to an arbitrary address.
// The campaign status is not touched.
func (p *Pipeline) SendTest(ctx context.Context, campaignID, to string) (providers.Result, error) {
	c, err := p.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return providers.Result{}, err
	}
	if err := c.Sendable(); err != nil {
		return providers.Result{}, fmt.Errorf("campaign %s: %w", campaignID, err)
	}
	msg := MessageFromCampaign(c, false)
	msg.Subject = "[Test] " + msg.Subject
	return p.Dispatcher.Sender.Send(ctx, p.Dispatcher.render(msg, Recipient{
		Email: to,
		Vars:  map[string]string{"email": to},
	}))
}
