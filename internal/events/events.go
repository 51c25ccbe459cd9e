// Package events normalizes provider delivery webhooks into campaign analytics events.
package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailcast/internal/domain"
	"mailcast/internal/util"
)

// Delivery is one provider callback that maps to an analytics kind.
type Delivery struct {
	Provider      string           `json:"provider"`
	Type          string           `json:"type"`
	Kind          domain.EventKind `json:"kind"`
	Email         string           `json:"email,omitempty"`
	CampaignID    string           `json:"campaignId"`
	ProviderMsgID string           `json:"providerMsgId,omitempty"`
	EventID       string           `json:"eventId,omitempty"`
	OccurredAt    time.Time        `json:"occurredAt"`
	Payload       map[string]any   `json:"payload,omitempty"`
}

var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailcast/analytics-event"))

// Key is the analytics event id for d. It is the same on every redelivery:
// the provider's event id when there is one, otherwise a hash of the fields
// that tell two callbacks apart.
func (d Delivery) Key() string {
	name := d.Provider + "|" + d.EventID
	if d.EventID == "" {
		name = strings.Join([]string{
			d.Provider, d.Type, d.CampaignID, d.Email, d.ProviderMsgID,
			d.OccurredAt.UTC().Format(time.RFC3339Nano),
		}, "|")
	}
	return "evt_" + uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

var sendGridKinds = map[string]domain.EventKind{
	"open":              domain.KindOpen,
	"click":             domain.KindClick,
	"bounce":            domain.KindBounce,
	"dropped":           domain.KindBounce,
	"unsubscribe":       domain.KindUnsubscribe,
	"group_unsubscribe": domain.KindUnsubscribe,
	"spamreport":        domain.KindUnsubscribe,
}

var resendKinds = map[string]domain.EventKind{
	"email.opened":     domain.KindOpen,
	"email.clicked":    domain.KindClick,
	"email.bounced":    domain.KindBounce,
	"email.complained": domain.KindUnsubscribe,
}

// MapSendGrid classifies a SendGrid event type. ok is false for types that
// produce no analytics record (processed, delivered, deferred, unknown).
func MapSendGrid(eventType string) (domain.EventKind, bool) {
	k, ok := sendGridKinds[eventType]
	return k, ok
}

func MapResend(eventType string) (domain.EventKind, bool) {
	k, ok := resendKinds[eventType]
	return k, ok
}

// ParseSendGrid decodes an event webhook batch. Unmapped types and events
// without a campaign id are dropped.
func ParseSendGrid(body []byte) ([]Delivery, error) {
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	out := make([]Delivery, 0, len(raw))
	for _, ev := range raw {
		typ := str(ev["event"])
		kind, ok := MapSendGrid(typ)
		if !ok {
			continue
		}
		cid := str(ev["campaign_id"])
		if cid == "" {
			continue
		}
		occurred := util.NowUTC()
		if ts, ok := ev["timestamp"].(float64); ok && ts > 0 {
			occurred = time.Unix(int64(ts), 0).UTC()
		}
		out = append(out, Delivery{
			Provider:      "sendgrid",
			Type:          typ,
			Kind:          kind,
			Email:         util.NormalizeEmail(str(ev["email"])),
			CampaignID:    cid,
			ProviderMsgID: str(ev["sg_message_id"]),
			EventID:       str(ev["sg_event_id"]),
			OccurredAt:    occurred,
			Payload:       ev,
		})
	}
	return out, nil
}

type resendEvent struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      struct {
		EmailID string            `json:"email_id"`
		To      []string          `json:"to"`
		Tags    map[string]string `json:"tags"`
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"data"`
}

// ParseResend decodes a single Resend webhook. The campaign id comes from the
// campaign_id tag, falling back to the X-Campaign-ID header.
func ParseResend(body []byte) ([]Delivery, error) {
	var ev resendEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	kind, ok := MapResend(ev.Type)
	if !ok {
		return nil, nil
	}

	cid := ev.Data.Tags["campaign_id"]
	if cid == "" {
		for _, h := range ev.Data.Headers {
			if h.Name == "X-Campaign-ID" {
				cid = h.Value
			}
		}
	}
	if cid == "" {
		return nil, nil
	}

	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	email := ""
	if len(ev.Data.To) > 0 {
		email = util.NormalizeEmail(ev.Data.To[0])
	}
	occurred := ev.CreatedAt.UTC()
	if ev.CreatedAt.IsZero() {
		occurred = util.NowUTC()
	}
	return []Delivery{{
		Provider:      "resend",
		Type:          ev.Type,
		Kind:          kind,
		Email:         email,
		CampaignID:    cid,
		ProviderMsgID: ev.Data.EmailID,
		OccurredAt:    occurred,
		Payload:       payload,
	}}, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
