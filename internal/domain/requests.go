package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

type CreateListRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (r CreateListRequest) Validate() error { return check(r) }

type CreateSubscriberRequest struct {
	Email      string            `json:"email" validate:"required,email"`
	FirstName  string            `json:"firstName" validate:"max=200"`
	LastName   string            `json:"lastName" validate:"max=200"`
	Attributes map[string]string `json:"attributes"`
}

func (r CreateSubscriberRequest) Validate() error { return check(r) }

type CreateCampaignRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Subject   string `json:"subject" validate:"required,max=998"`
	HTMLBody  string `json:"htmlBody" validate:"required"`
	FromEmail string `json:"fromEmail" validate:"required,email"`
	FromName  string `json:"fromName" validate:"max=200"`
	ReplyTo   string `json:"replyTo" validate:"omitempty,email"`
	ListID    string `json:"listId" validate:"required"`
}

func (r CreateCampaignRequest) Validate() error { return check(r) }

// UpdateCampaignRequest is a partial update; nil fields are left untouched.
type UpdateCampaignRequest struct {
	Name      *string `json:"name" validate:"omitempty,max=200"`
	Subject   *string `json:"subject" validate:"omitempty,max=998"`
	HTMLBody  *string `json:"htmlBody"`
	FromEmail *string `json:"fromEmail" validate:"omitempty,email"`
	FromName  *string `json:"fromName" validate:"omitempty,max=200"`
	ReplyTo   *string `json:"replyTo" validate:"omitempty,email"`
	ListID    *string `json:"listId"`
}

func (r UpdateCampaignRequest) Validate() error { return check(r) }

// Apply copies the set fields onto c.
func (r UpdateCampaignRequest) Apply(c *Campaign) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.Name, r.Name)
	set(&c.Subject, r.Subject)
	set(&c.HTMLBody, r.HTMLBody)
	set(&c.FromEmail, r.FromEmail)
	set(&c.FromName, r.FromName)
	set(&c.ReplyTo, r.ReplyTo)
	set(&c.ListID, r.ListID)
}

type ScheduleCampaignRequest struct {
	ScheduledFor time.Time `json:"scheduledFor" validate:"required"`
}

func (r ScheduleCampaignRequest) Validate() error { return check(r) }

type TestSendRequest struct {
	To string `json:"to" validate:"required,email"`
}

func (r TestSendRequest) Validate() error { return check(r) }

type SendResponse struct {
	CampaignID string `json:"campaignId"`
	Status     string `json:"status"`
}
