package domain

import (
	"errors"
	"time"
)

type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusScheduled CampaignStatus = "scheduled"
	StatusSending   CampaignStatus = "sending"
	StatusSent      CampaignStatus = "sent"
	StatusFailed    CampaignStatus = "failed"
)

// Editable reports whether campaign content may still change.
func (s CampaignStatus) Editable() bool {
	return s == StatusDraft || s == StatusScheduled
}

type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
)

// EventKind is the analytics classification of a tracked occurrence.
type EventKind string

const (
	KindOpen        EventKind = "open"
	KindClick       EventKind = "click"
	KindBounce      EventKind = "bounce"
	KindUnsubscribe EventKind = "unsubscribe"
)

type Campaign struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Subject      string         `json:"subject"`
	HTMLBody     string         `json:"htmlBody"`
	FromEmail    string         `json:"fromEmail"`
	FromName     string         `json:"fromName,omitempty"`
	ReplyTo      string         `json:"replyTo,omitempty"`
	ListID       string         `json:"listId"`
	Status       CampaignStatus `json:"status"`
	ScheduledFor *time.Time     `json:"scheduledFor,omitempty"`
	SentAt       *time.Time     `json:"sentAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Sendable checks the fields the send pipeline needs.
func (c Campaign) Sendable() error {
	if c.Subject == "" || c.HTMLBody == "" || c.FromEmail == "" || c.ListID == "" {
		return ErrValidation
	}
	return nil
}

type Subscriber struct {
	ID         string            `json:"id"`
	ListID     string            `json:"listId"`
	Email      string            `json:"email"`
	FirstName  string            `json:"firstName,omitempty"`
	LastName   string            `json:"lastName,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Status     SubscriberStatus  `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// MergeVars returns the placeholder values used to personalize a message.
func (s Subscriber) MergeVars() map[string]string {
	vars := make(map[string]string, len(s.Attributes)+3)
	for k, v := range s.Attributes {
		vars[k] = v
	}
	vars["email"] = s.Email
	vars["first_name"] = s.FirstName
	vars["last_name"] = s.LastName
	return vars
}

type SubscriberList struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SubscriberCount int       `json:"subscriberCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

type AnalyticsEvent struct {
	ID           string         `json:"id"`
	CampaignID   string         `json:"campaignId"`
	SubscriberID string         `json:"subscriberId,omitempty"`
	Email        string         `json:"email,omitempty"`
	Kind         EventKind      `json:"kind"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
)
