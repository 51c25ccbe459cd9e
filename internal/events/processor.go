package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mailcast/internal/domain"
	"mailcast/internal/observability"
	"mailcast/internal/store"
)

type Store interface {
	FindCampaignSubscriber(ctx context.Context, campaignID, email string) (string, bool, error)
	// InsertAnalyticsEvent reports false when an event with the same id exists.
	InsertAnalyticsEvent(ctx context.Context, in store.AnalyticsInsert) (bool, error)
	HandleUnsubscribe(ctx context.Context, email, campaignID string) error
}

type Processor struct {
	Store Store
}

// Apply records one delivery as an analytics event. Unsubscribe-class events
// also run the unsubscribe procedure for the recipient. Applying the same
// delivery again stores nothing new, so a redelivered message only finishes
// what the failed attempt left undone.
func (p *Processor) Apply(ctx context.Context, d Delivery) error {
	subscriberID := ""
	if d.Email != "" {
		id, found, err := p.Store.FindCampaignSubscriber(ctx, d.CampaignID, d.Email)
		if err != nil {
			return fmt.Errorf("resolve subscriber: %w", err)
		}
		if found {
			subscriberID = id
		}
	}

	inserted, err := p.Store.InsertAnalyticsEvent(ctx, store.AnalyticsInsert{
		ID:           d.Key(),
		CampaignID:   d.CampaignID,
		SubscriberID: subscriberID,
		Email:        d.Email,
		Kind:         d.Kind,
		Metadata:     d.Payload,
		OccurredAt:   d.OccurredAt,
	})
	if err != nil {
		// events for campaigns we never sent can't be stored and retrying won't help
		if errors.Is(err, domain.ErrNotFound) {
			slog.Warn("analytics event for unknown campaign dropped", "campaign_id", d.CampaignID, "provider", d.Provider)
			return nil
		}
		return fmt.Errorf("insert analytics event: %w", err)
	}
	if inserted {
		observability.AnalyticsEvents.WithLabelValues(string(d.Kind)).Inc()
	} else {
		slog.Debug("analytics event already recorded", "campaign_id", d.CampaignID, "provider", d.Provider)
	}

	if d.Kind == domain.KindUnsubscribe && d.Email != "" {
		if err := p.Store.HandleUnsubscribe(ctx, d.Email, d.CampaignID); err != nil {
			return fmt.Errorf("handle unsubscribe: %w", err)
		}
	}
	return nil
}
