package store

import (
	"time"

	"mailcast/internal/domain"
)

// CampaignStatusUpdate moves a campaign from From to Status. The write only
// lands while the stored status still equals From; an empty From skips the check.
type CampaignStatusUpdate struct {
	ID           string
	From         domain.CampaignStatus
	Status       domain.CampaignStatus
	ScheduledFor *time.Time
	SentAt       *time.Time
	Now          time.Time
}

type CampaignFilter struct {
	Status domain.CampaignStatus
	Limit  int
	Offset int
}

type SubscriberFilter struct {
	ListID string
	Limit  int
	Offset int
}

// SendAttempt is the per-recipient outcome of one dispatch.
type SendAttempt struct {
	CampaignID    string
	Email         string
	Provider      string
	ProviderMsgID string
	HTTPStatus    int
	Error         string
	Now           time.Time
}

type AnalyticsInsert struct {
	ID           string
	CampaignID   string
	SubscriberID string
	Email        string
	Kind         domain.EventKind
	Metadata     any
	OccurredAt   time.Time
}

type KindCount struct {
	Kind  domain.EventKind `json:"kind"`
	Count int              `json:"count"`
}

type BillingSubscription struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	AccountID            string
	Status               string
	PriceID              string
	CurrentPeriodEnd     *time.Time
	Now                  time.Time
}
