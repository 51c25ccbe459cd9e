package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"mailcast/internal/billing"
	"mailcast/internal/events"
	"mailcast/internal/observability"
	"mailcast/internal/providers/resend"
	"mailcast/internal/providers/sendgrid"
)

// maxWebhookBody caps inbound payloads; SendGrid batches stay well below it.
const maxWebhookBody = 1 << 20

// EventSink receives verified deliveries: the SQS producer in production,
// the inline processor when no queue is configured.
type EventSink func(ctx context.Context, d events.Delivery) error

type BillingHandler interface {
	HandleEvent(ctx context.Context, body []byte, signature string) error
}

type Webhook struct {
	Sink EventSink

	// nil skips SendGrid signature verification
	VerifySendGrid func(payload []byte, signature, timestamp string) bool
	// empty skips Resend signature verification
	ResendSecret string

	Billing BillingHandler
	Now     func() time.Time
}

func (wh *Webhook) Register(r *mux.Router) {
	r.HandleFunc("/v1/webhooks/sendgrid", wh.handleSendGrid).Methods(http.MethodPost)
	r.HandleFunc("/v1/webhooks/resend", wh.handleResend).Methods(http.MethodPost)
	if wh.Billing != nil {
		r.HandleFunc("/v1/webhooks/stripe", wh.handleStripe).Methods(http.MethodPost)
	}
}

func (wh *Webhook) now() time.Time {
	if wh.Now != nil {
		return wh.Now()
	}
	return time.Now()
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, ErrBadPayload)
		return nil, false
	}
	return body, true
}

func (wh *Webhook) handleSendGrid(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if wh.VerifySendGrid != nil &&
		!wh.VerifySendGrid(body, r.Header.Get(sendgrid.SignatureHeader), r.Header.Get(sendgrid.TimestampHeader)) {
		writeMessage(w, http.StatusUnauthorized, ErrInvalidSignature)
		return
	}

	deliveries, err := events.ParseSendGrid(body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, ErrBadPayload)
		return
	}
	wh.publish(w, r, deliveries)
}

func (wh *Webhook) handleResend(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if wh.ResendSecret != "" && !resend.VerifySignature(wh.ResendSecret,
		r.Header.Get(resend.IDHeader), r.Header.Get(resend.TimestampHeader), r.Header.Get(resend.SignatureHeader),
		body, wh.now()) {
		writeMessage(w, http.StatusUnauthorized, ErrInvalidSignature)
		return
	}

	deliveries, err := events.ParseResend(body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, ErrBadPayload)
		return
	}
	// svix keeps the message id across its own retries
	for i := range deliveries {
		deliveries[i].EventID = r.Header.Get(resend.IDHeader)
	}
	wh.publish(w, r, deliveries)
}

// publish hands deliveries to the sink. Any failure answers 500 so the
// provider retries the whole callback.
func (wh *Webhook) publish(w http.ResponseWriter, r *http.Request, deliveries []events.Delivery) {
	for _, d := range deliveries {
		observability.WebhookEvents.WithLabelValues(d.Provider, d.Type).Inc()
		if err := wh.Sink(r.Context(), d); err != nil {
			slog.Error("webhook publish failed", "err", err, "provider", d.Provider, "type", d.Type, "campaign_id", d.CampaignID)
			writeMessage(w, http.StatusInternalServerError, ErrDependency)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (wh *Webhook) handleStripe(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	err := wh.Billing.HandleEvent(r.Context(), body, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, billing.ErrInvalidSignature):
		writeMessage(w, http.StatusBadRequest, ErrInvalidSignature)
	default:
		slog.Error("stripe webhook failed", "err", err)
		writeMessage(w, http.StatusInternalServerError, ErrDependency)
	}
}
