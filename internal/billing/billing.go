// Package billing keeps account subscription state in sync with Stripe webhooks.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"mailcast/internal/store"
)

// StatusPastDue is stored when an invoice payment fails.
const StatusPastDue = "past_due"

var ErrInvalidSignature = errors.New("invalid stripe signature")

type Store interface {
	UpsertBillingSubscription(ctx context.Context, in store.BillingSubscription) error
	SetBillingStatus(ctx context.Context, stripeSubscriptionID, status string, now time.Time) (bool, error)
}

type Service struct {
	Store         Store
	WebhookSecret string
	Now           func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) constructEvent(body []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(body, signature, s.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// HandleEvent verifies and applies one webhook delivery. Event types we do
// not track are acknowledged without error.
func (s *Service) HandleEvent(ctx context.Context, body []byte, signature string) error {
	event, err := s.constructEvent(body, signature)
	if err != nil {
		return err
	}
	log := slog.With("stripe_event", event.ID, "type", event.Type)

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.upsertSubscription(ctx, &sub)
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			log.Info("payment failure without subscription")
			return nil
		}
		found, err := s.Store.SetBillingStatus(ctx, inv.Subscription.ID, StatusPastDue, s.now())
		if err != nil {
			return err
		}
		if !found {
			log.Warn("payment failure for unknown subscription", "subscription", inv.Subscription.ID)
		}
		return nil
	default:
		log.Debug("unhandled stripe event")
		return nil
	}
}

func (s *Service) upsertSubscription(ctx context.Context, sub *stripe.Subscription) error {
	in := store.BillingSubscription{
		StripeSubscriptionID: sub.ID,
		Status:               string(sub.Status),
		AccountID:            sub.Metadata["account_id"],
		Now:                  s.now(),
	}
	if sub.Customer != nil {
		in.StripeCustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		in.CurrentPeriodEnd = &end
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		in.PriceID = sub.Items.Data[0].Price.ID
	}
	return s.Store.UpsertBillingSubscription(ctx, in)
}
