package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mailcast/internal/billing"
	"mailcast/internal/domain"
	"mailcast/internal/events"
	"mailcast/internal/providers"
	"mailcast/internal/providers/resend"
	"mailcast/internal/service"
	"mailcast/internal/store"
)

type MockCampaigns struct {
	mock.Mock
}

func (m *MockCampaigns) CreateList(ctx context.Context, req domain.CreateListRequest) (domain.SubscriberList, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.SubscriberList), args.Error(1)
}

func (m *MockCampaigns) GetList(ctx context.Context, id string) (domain.SubscriberList, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.SubscriberList), args.Error(1)
}

func (m *MockCampaigns) ListLists(ctx context.Context, limit, offset int) ([]domain.SubscriberList, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]domain.SubscriberList), args.Error(1)
}

func (m *MockCampaigns) AddSubscriber(ctx context.Context, listID string, req domain.CreateSubscriberRequest) (domain.Subscriber, error) {
	args := m.Called(ctx, listID, req)
	return args.Get(0).(domain.Subscriber), args.Error(1)
}

func (m *MockCampaigns) RemoveSubscriber(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCampaigns) ListSubscribers(ctx context.Context, f store.SubscriberFilter) ([]domain.Subscriber, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]domain.Subscriber), args.Error(1)
}

func (m *MockCampaigns) CreateCampaign(ctx context.Context, req domain.CreateCampaignRequest) (domain.Campaign, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Campaign), args.Error(1)
}

func (m *MockCampaigns) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Campaign), args.Error(1)
}

func (m *MockCampaigns) ListCampaigns(ctx context.Context, f store.CampaignFilter) ([]domain.Campaign, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]domain.Campaign), args.Error(1)
}

func (m *MockCampaigns) UpdateCampaign(ctx context.Context, id string, req domain.UpdateCampaignRequest) (domain.Campaign, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(domain.Campaign), args.Error(1)
}

func (m *MockCampaigns) ScheduleCampaign(ctx context.Context, id string, req domain.ScheduleCampaignRequest) (domain.Campaign, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(domain.Campaign), args.Error(1)
}

func (m *MockCampaigns) RequestSend(ctx context.Context, id string) (domain.SendResponse, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.SendResponse), args.Error(1)
}

func (m *MockCampaigns) SendTest(ctx context.Context, id string, req domain.TestSendRequest) (providers.Result, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(providers.Result), args.Error(1)
}

func (m *MockCampaigns) Stats(ctx context.Context, id string) (service.CampaignStats, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.CampaignStats), args.Error(1)
}

func newAPI(svc Campaigns) http.Handler {
	s := New(nil)
	(&API{Svc: svc}).Register(s.Mux)
	s.Probes()
	return s.Mux
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSendReturnsAccepted(t *testing.T) {
	svc := new(MockCampaigns)
	svc.On("RequestSend", mock.Anything, "cmp_1").Return(domain.SendResponse{CampaignID: "cmp_1", Status: "queued"}, nil)

	rec := do(newAPI(svc), http.MethodPost, "/v1/campaigns/cmp_1/send", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"campaignId":"cmp_1","status":"queued"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("campaign cmp_1: %w", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: campaign is sent", domain.ErrInvalidTransition), http.StatusConflict},
		{domain.ErrConflict, http.StatusConflict},
		{&providers.Error{Provider: "sendgrid", HTTPStatus: 401, Body: "bad key"}, http.StatusBadGateway},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		svc := new(MockCampaigns)
		svc.On("RequestSend", mock.Anything, "cmp_1").Return(domain.SendResponse{}, tc.err)
		rec := do(newAPI(svc), http.MethodPost, "/v1/campaigns/cmp_1/send", "")
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestCreateCampaignRejectsBadJSON(t *testing.T) {
	svc := new(MockCampaigns)
	rec := do(newAPI(svc), http.MethodPost, "/v1/campaigns", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "CreateCampaign", mock.Anything, mock.Anything)
}

func TestCreateCampaign(t *testing.T) {
	svc := new(MockCampaigns)
	svc.On("CreateCampaign", mock.Anything, mock.MatchedBy(func(req domain.CreateCampaignRequest) bool {
		return req.Subject == "Hello" && req.ListID == "lst_1"
	})).Return(domain.Campaign{ID: "cmp_1", Status: domain.StatusDraft}, nil)

	rec := do(newAPI(svc), http.MethodPost, "/v1/campaigns", `{"name":"n","subject":"Hello","listId":"lst_1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"draft"`)
}

func TestListSubscribersPaging(t *testing.T) {
	svc := new(MockCampaigns)
	svc.On("ListSubscribers", mock.Anything, store.SubscriberFilter{ListID: "lst_1", Limit: 50, Offset: 100}).
		Return([]domain.Subscriber{{ID: "sub_1"}}, nil)

	rec := do(newAPI(svc), http.MethodGet, "/v1/lists/lst_1/subscribers?limit=50&offset=100", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestRemoveSubscriber(t *testing.T) {
	svc := new(MockCampaigns)
	svc.On("RemoveSubscriber", mock.Anything, "sub_1").Return(nil)

	rec := do(newAPI(svc), http.MethodDelete, "/v1/subscribers/sub_1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWrongMethodNotRouted(t *testing.T) {
	h := newAPI(new(MockCampaigns))
	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/v1/campaigns/cmp_1"},
		{http.MethodGet, "/v1/campaigns/cmp_1/send"},
		{http.MethodPut, "/v1/lists"},
		{http.MethodGet, "/v1/subscribers/sub_1"},
	} {
		rec := do(h, tc.method, tc.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec := do(h, http.MethodGet, "/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := do(newAPI(new(MockCampaigns)), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzFailingCheck(t *testing.T) {
	h := Readyz(time.Second, func(context.Context) error { return errors.New("db down") })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type sinkRecorder struct {
	got []events.Delivery
	err error
}

func (s *sinkRecorder) sink(_ context.Context, d events.Delivery) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, d)
	return nil
}

func newWebhook(wh *Webhook) http.Handler {
	s := New(nil)
	wh.Register(s.Mux)
	return s.Mux
}

func TestSendGridWebhookPublishesMappedEvents(t *testing.T) {
	rec := &sinkRecorder{}
	h := newWebhook(&Webhook{Sink: rec.sink})

	body := `[{"email":"a@example.com","event":"spamreport","campaign_id":"cmp_1"},
		{"email":"a@example.com","event":"delivered","campaign_id":"cmp_1"}]`
	resp := do(h, http.MethodPost, "/v1/webhooks/sendgrid", body)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.got, 1)
	assert.Equal(t, domain.KindUnsubscribe, rec.got[0].Kind)
}

func TestSendGridWebhookUnknownTypesProduceNothing(t *testing.T) {
	rec := &sinkRecorder{}
	h := newWebhook(&Webhook{Sink: rec.sink})

	resp := do(h, http.MethodPost, "/v1/webhooks/sendgrid", `[{"event":"brand_new","campaign_id":"cmp_1"}]`)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, rec.got)
}

func TestSendGridWebhookRejectsBadSignature(t *testing.T) {
	rec := &sinkRecorder{}
	h := newWebhook(&Webhook{
		Sink:           rec.sink,
		VerifySendGrid: func([]byte, string, string) bool { return false },
	})

	resp := do(h, http.MethodPost, "/v1/webhooks/sendgrid", `[{"event":"open","campaign_id":"cmp_1"}]`)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, rec.got)
}

func TestWebhookSinkFailureAsksForRetry(t *testing.T) {
	rec := &sinkRecorder{err: errors.New("sqs down")}
	h := newWebhook(&Webhook{Sink: rec.sink})

	resp := do(h, http.MethodPost, "/v1/webhooks/sendgrid", `[{"event":"open","campaign_id":"cmp_1"}]`)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestResendWebhookRequiresSignatureWhenConfigured(t *testing.T) {
	rec := &sinkRecorder{}
	h := newWebhook(&Webhook{Sink: rec.sink, ResendSecret: "whsec_c2VjcmV0"})

	body := `{"type":"email.opened","data":{"to":["a@example.com"],"tags":{"campaign_id":"cmp_1"}}}`
	resp := do(h, http.MethodPost, "/v1/webhooks/resend", body)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, rec.got)
}

func TestResendWebhookKeepsSvixID(t *testing.T) {
	rec := &sinkRecorder{}
	h := newWebhook(&Webhook{Sink: rec.sink})

	body := `{"type":"email.opened","data":{"to":["a@example.com"],"tags":{"campaign_id":"cmp_1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/resend", strings.NewReader(body))
	req.Header.Set(resend.IDHeader, "msg_2abc")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.got, 1)
	assert.Equal(t, "msg_2abc", rec.got[0].EventID)
}

type fakeBilling struct {
	err error
}

func (f *fakeBilling) HandleEvent(context.Context, []byte, string) error { return f.err }

func TestStripeWebhook(t *testing.T) {
	h := newWebhook(&Webhook{Sink: (&sinkRecorder{}).sink, Billing: &fakeBilling{}})
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/webhooks/stripe", `{}`).Code)

	h = newWebhook(&Webhook{Sink: (&sinkRecorder{}).sink, Billing: &fakeBilling{err: fmt.Errorf("%w: bad", billing.ErrInvalidSignature)}})
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/v1/webhooks/stripe", `{}`).Code)
}

func TestTrackOpenRecordsAndServesPixel(t *testing.T) {
	rec := &sinkRecorder{}
	s := New(nil)
	(&Tracker{Sink: rec.sink}).Register(s.Mux)

	resp := do(s.Mux, http.MethodGet, "/track/open?cid=cmp_42", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "image/gif", resp.Header().Get("Content-Type"))
	require.Len(t, rec.got, 1)
	assert.Equal(t, "cmp_42", rec.got[0].CampaignID)
	assert.Equal(t, domain.KindOpen, rec.got[0].Kind)
}

func TestTrackOpenStillServesPixelOnSinkError(t *testing.T) {
	rec := &sinkRecorder{err: errors.New("db down")}
	s := New(nil)
	(&Tracker{Sink: rec.sink}).Register(s.Mux)

	resp := do(s.Mux, http.MethodGet, "/track/open?cid=cmp_42", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Body.Bytes())
}
