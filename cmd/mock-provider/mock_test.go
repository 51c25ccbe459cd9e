package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcast/internal/events"
	"mailcast/internal/providers"
	"mailcast/internal/providers/resend"
	"mailcast/internal/providers/sendgrid"
)

func TestMockAcceptsSendGridClient(t *testing.T) {
	m := &mockProvider{}
	srv := httptest.NewServer(m.routes())
	defer srv.Close()

	res, err := sendgrid.New("key", srv.URL).Send(context.Background(), providers.Request{
		To: "a@example.com", From: "news@example.com", Subject: "s", HTML: "<p>x</p>", CampaignID: "cmp_1",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.HTTPStatus)
	assert.NotEmpty(t, res.MessageID)
	assert.Equal(t, int64(1), m.accepted.Load())
}

func TestMockAcceptsResendClient(t *testing.T) {
	m := &mockProvider{}
	srv := httptest.NewServer(m.routes())
	defer srv.Close()

	res, err := resend.New("key", srv.URL).Send(context.Background(), providers.Request{
		To: "a@example.com", From: "news@example.com", Subject: "s", HTML: "<p>x</p>", CampaignID: "cmp_1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
}

func TestMockFailureIsProviderError(t *testing.T) {
	m := &mockProvider{failRate: 1}
	srv := httptest.NewServer(m.routes())
	defer srv.Close()

	_, err := sendgrid.New("key", srv.URL).Send(context.Background(), providers.Request{
		To: "a@example.com", From: "news@example.com", Subject: "s", HTML: "<p>x</p>",
	})
	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusInternalServerError, perr.HTTPStatus)
	assert.Contains(t, perr.Body, "mock failure")
	assert.Equal(t, int64(1), m.failed.Load())
}

func TestMockRejectsMissingKey(t *testing.T) {
	m := &mockProvider{}
	srv := httptest.NewServer(m.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v3/mail/send", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMockReplaysEventsToWebhook(t *testing.T) {
	got := make(chan []byte, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- body
	}))
	defer hook.Close()

	m := &mockProvider{webhookURL: hook.URL, callbacks: resty.New()}
	srv := httptest.NewServer(m.routes())
	defer srv.Close()

	_, err := sendgrid.New("key", srv.URL).Send(context.Background(), providers.Request{
		To: "a@example.com", From: "news@example.com", Subject: "s", HTML: "<p>x</p>", CampaignID: "cmp_7",
	})
	require.NoError(t, err)

	select {
	case body := <-got:
		var raw []map[string]any
		require.NoError(t, json.Unmarshal(body, &raw))
		require.Len(t, raw, 2)
		deliveries, err := events.ParseSendGrid(body)
		require.NoError(t, err)
		require.Len(t, deliveries, 1, "delivered is not an analytics event")
		assert.Equal(t, "cmp_7", deliveries[0].CampaignID)
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not called")
	}
}
