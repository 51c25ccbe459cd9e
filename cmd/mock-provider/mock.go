package main

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/mux"

	"mailcast/internal/util"
)

// mockProvider accepts SendGrid v3 and Resend send calls and can replay
// delivery events back at a webhook.
type mockProvider struct {
	failRate     float64
	latency      time.Duration
	webhookURL   string
	webhookDelay time.Duration
	callbacks    *resty.Client

	accepted atomic.Int64
	failed   atomic.Int64
}

type sendGridMail struct {
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
		CustomArgs map[string]string `json:"custom_args"`
	} `json:"personalizations"`
}

type resendMail struct {
	To   []string `json:"to"`
	Tags []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"tags"`
}

func (m *mockProvider) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v3/mail/send", m.handleSendGrid).Methods(http.MethodPost)
	r.HandleFunc("/emails", m.handleResend).Methods(http.MethodPost)
	r.HandleFunc("/v1/mock/stats", m.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

func authorized(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") && len(r.Header.Get("Authorization")) > len("Bearer ")
}

// outcome sleeps for the configured latency and rolls the failure dice.
func (m *mockProvider) outcome() bool {
	if m.latency > 0 {
		time.Sleep(m.latency)
	}
	if m.failRate > 0 && rand.Float64() < m.failRate {
		m.failed.Add(1)
		return false
	}
	m.accepted.Add(1)
	return true
}

func writeErrors(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"errors": []map[string]string{{"message": msg}}})
}

func (m *mockProvider) handleSendGrid(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		writeErrors(w, http.StatusUnauthorized, "The provided authorization grant is invalid, expired, or revoked")
		return
	}
	var mail sendGridMail
	if err := json.NewDecoder(r.Body).Decode(&mail); err != nil || len(mail.Personalizations) == 0 || len(mail.Personalizations[0].To) == 0 {
		writeErrors(w, http.StatusBadRequest, "invalid mail body")
		return
	}
	if !m.outcome() {
		writeErrors(w, http.StatusInternalServerError, "mock failure")
		return
	}

	msgID := util.NewID("mock")
	w.Header().Set("X-Message-Id", msgID)
	w.WriteHeader(http.StatusAccepted)

	p := mail.Personalizations[0]
	m.replay(p.To[0].Email, p.CustomArgs["campaign_id"], msgID)
}

func (m *mockProvider) handleResend(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		writeErrors(w, http.StatusUnauthorized, "API key is invalid")
		return
	}
	var mail resendMail
	if err := json.NewDecoder(r.Body).Decode(&mail); err != nil || len(mail.To) == 0 {
		writeErrors(w, http.StatusUnprocessableEntity, "invalid email body")
		return
	}
	if !m.outcome() {
		writeErrors(w, http.StatusInternalServerError, "mock failure")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"id": util.NewID("mock")})
}

func (m *mockProvider) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{
		"accepted": m.accepted.Load(),
		"failed":   m.failed.Load(),
	})
}

// replay posts delivered and open events for one accepted send in the
// SendGrid event webhook shape.
func (m *mockProvider) replay(email, campaignID, msgID string) {
	if m.webhookURL == "" || campaignID == "" {
		return
	}
	go func() {
		time.Sleep(m.webhookDelay)
		now := time.Now().Unix()
		batch := []map[string]any{
			{"email": email, "event": "delivered", "timestamp": now, "campaign_id": campaignID, "sg_message_id": msgID},
			{"email": email, "event": "open", "timestamp": now, "campaign_id": campaignID, "sg_message_id": msgID},
		}
		resp, err := m.callbacks.R().SetBody(batch).Post(m.webhookURL)
		if err != nil {
			slog.Warn("mock webhook post failed", "err", err)
			return
		}
		if resp.IsError() {
			slog.Warn("mock webhook rejected", "status", resp.StatusCode())
		}
	}()
}
