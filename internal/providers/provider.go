// Package providers defines the transactional-email capability the send pipeline depends on.
// Concrete adapters live in sub-packages; registry.New picks one from configuration.
package providers

import (
	"context"
	"errors"
	"fmt"
)

type Request struct {
	To         string
	From       string
	FromName   string
	ReplyTo    string
	Subject    string
	HTML       string
	CampaignID string
}

type Result struct {
	Provider   string `json:"provider"`
	MessageID  string `json:"messageId,omitempty"`
	HTTPStatus int    `json:"httpStatus"`
}

type Sender interface {
	Send(ctx context.Context, req Request) (Result, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, req Request) (Result, error)

func (f SenderFunc) Send(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// Error is a non-2xx provider response. Body is the provider's payload, verbatim.
type Error struct {
	Provider   string
	HTTPStatus int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.HTTPStatus, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

var ErrUnknownProvider = errors.New("unknown email provider")
