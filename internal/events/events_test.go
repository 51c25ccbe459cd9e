package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mailcast/internal/domain"
	"mailcast/internal/store"
)

func TestMapSendGrid(t *testing.T) {
	cases := map[string]struct {
		kind domain.EventKind
		ok   bool
	}{
		"open":              {domain.KindOpen, true},
		"click":             {domain.KindClick, true},
		"bounce":            {domain.KindBounce, true},
		"dropped":           {domain.KindBounce, true},
		"unsubscribe":       {domain.KindUnsubscribe, true},
		"group_unsubscribe": {domain.KindUnsubscribe, true},
		"spamreport":        {domain.KindUnsubscribe, true},
		"delivered":         {"", false},
		"processed":         {"", false},
		"deferred":          {"", false},
		"something_new":     {"", false},
	}
	for typ, want := range cases {
		kind, ok := MapSendGrid(typ)
		assert.Equal(t, want.ok, ok, typ)
		assert.Equal(t, want.kind, kind, typ)
	}
}

func TestMapResend(t *testing.T) {
	k, ok := MapResend("email.complained")
	assert.True(t, ok)
	assert.Equal(t, domain.KindUnsubscribe, k)

	_, ok = MapResend("email.delivered")
	assert.False(t, ok)
}

func TestParseSendGridSkipsUnknownAndUncorrelated(t *testing.T) {
	body := []byte(`[
		{"email":"A@Example.com","event":"dropped","timestamp":1700000000,"campaign_id":"cmp_1","sg_message_id":"m1","sg_event_id":"ev-1"},
		{"email":"b@example.com","event":"spamreport","timestamp":1700000001,"campaign_id":"cmp_1"},
		{"email":"c@example.com","event":"delivered","campaign_id":"cmp_1"},
		{"email":"d@example.com","event":"made_up","campaign_id":"cmp_1"},
		{"email":"e@example.com","event":"open"}
	]`)
	got, err := ParseSendGrid(body)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, domain.KindBounce, got[0].Kind)
	assert.Equal(t, "a@example.com", got[0].Email)
	assert.Equal(t, "m1", got[0].ProviderMsgID)
	assert.Equal(t, "ev-1", got[0].EventID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got[0].OccurredAt)
	assert.Equal(t, "dropped", got[0].Payload["event"])

	assert.Equal(t, domain.KindUnsubscribe, got[1].Kind)
}

func TestParseSendGridRejectsBadJSON(t *testing.T) {
	_, err := ParseSendGrid([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestParseResend(t *testing.T) {
	body := []byte(`{"type":"email.clicked","created_at":"2026-01-02T03:04:05Z",
		"data":{"email_id":"re-1","to":["X@example.com"],"tags":{"campaign_id":"cmp_9"}}}`)
	got, err := ParseResend(body)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.KindClick, got[0].Kind)
	assert.Equal(t, "cmp_9", got[0].CampaignID)
	assert.Equal(t, "x@example.com", got[0].Email)

	got, err = ParseResend([]byte(`{"type":"email.sent","data":{"tags":{"campaign_id":"cmp_9"}}}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindCampaignSubscriber(ctx context.Context, campaignID, email string) (string, bool, error) {
	args := m.Called(ctx, campaignID, email)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockStore) InsertAnalyticsEvent(ctx context.Context, in store.AnalyticsInsert) (bool, error) {
	args := m.Called(ctx, in)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) HandleUnsubscribe(ctx context.Context, email, campaignID string) error {
	return m.Called(ctx, email, campaignID).Error(0)
}

func TestProcessorUnsubscribeRunsProcedure(t *testing.T) {
	ctx := context.Background()
	st := new(MockStore)
	st.On("FindCampaignSubscriber", ctx, "cmp_1", "b@example.com").Return("sub_1", true, nil)
	d := Delivery{Provider: "sendgrid", Kind: domain.KindUnsubscribe, Email: "b@example.com", CampaignID: "cmp_1"}
	st.On("InsertAnalyticsEvent", ctx, mock.MatchedBy(func(in store.AnalyticsInsert) bool {
		return in.ID == d.Key() && in.SubscriberID == "sub_1" && in.Kind == domain.KindUnsubscribe
	})).Return(true, nil)
	st.On("HandleUnsubscribe", ctx, "b@example.com", "cmp_1").Return(nil)

	p := &Processor{Store: st}
	err := p.Apply(ctx, d)
	require.NoError(t, err)
	st.AssertExpectations(t)
}

func TestProcessorOpenDoesNotUnsubscribe(t *testing.T) {
	ctx := context.Background()
	st := new(MockStore)
	st.On("FindCampaignSubscriber", ctx, "cmp_1", "a@example.com").Return("", false, nil)
	st.On("InsertAnalyticsEvent", ctx, mock.Anything).Return(true, nil)

	p := &Processor{Store: st}
	require.NoError(t, p.Apply(ctx, Delivery{Kind: domain.KindOpen, Email: "a@example.com", CampaignID: "cmp_1"}))
	st.AssertNotCalled(t, "HandleUnsubscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessorPropagatesInsertError(t *testing.T) {
	ctx := context.Background()
	st := new(MockStore)
	st.On("InsertAnalyticsEvent", ctx, mock.Anything).Return(false, errors.New("db down"))

	p := &Processor{Store: st}
	err := p.Apply(ctx, Delivery{Kind: domain.KindUnsubscribe, CampaignID: "cmp_1"})
	assert.ErrorContains(t, err, "db down")
	st.AssertNotCalled(t, "HandleUnsubscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessorDropsUnknownCampaign(t *testing.T) {
	ctx := context.Background()
	st := new(MockStore)
	st.On("FindCampaignSubscriber", ctx, "cmp_gone", "a@example.com").Return("", false, nil)
	st.On("InsertAnalyticsEvent", ctx, mock.Anything).Return(false, domain.ErrNotFound)

	p := &Processor{Store: st}
	err := p.Apply(ctx, Delivery{Kind: domain.KindUnsubscribe, Email: "a@example.com", CampaignID: "cmp_gone"})
	assert.NoError(t, err)
	st.AssertNotCalled(t, "HandleUnsubscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliveryKeyIsStable(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	d := Delivery{Provider: "pixel", Type: "open", Kind: domain.KindOpen, CampaignID: "cmp_1", OccurredAt: at}

	assert.Equal(t, d.Key(), d.Key())
	assert.True(t, strings.HasPrefix(d.Key(), "evt_"))

	later := d
	later.OccurredAt = at.Add(time.Nanosecond)
	assert.NotEqual(t, d.Key(), later.Key())

	// the provider's event id decides on its own
	a := Delivery{Provider: "sendgrid", EventID: "ev-1", OccurredAt: at}
	b := Delivery{Provider: "sendgrid", EventID: "ev-1", OccurredAt: at.Add(time.Hour)}
	c := Delivery{Provider: "resend", EventID: "ev-1", OccurredAt: at}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestProcessorRedeliveryStoresOneEvent(t *testing.T) {
	ctx := context.Background()
	st := new(MockStore)
	d := Delivery{Provider: "sendgrid", Type: "spamreport", Kind: domain.KindUnsubscribe,
		Email: "b@example.com", CampaignID: "cmp_1", EventID: "ev-9"}

	var ids []string
	st.On("FindCampaignSubscriber", ctx, "cmp_1", "b@example.com").Return("sub_1", true, nil)
	st.On("InsertAnalyticsEvent", ctx, mock.Anything).
		Run(func(args mock.Arguments) { ids = append(ids, args.Get(1).(store.AnalyticsInsert).ID) }).
		Return(true, nil).Once()
	st.On("InsertAnalyticsEvent", ctx, mock.Anything).
		Run(func(args mock.Arguments) { ids = append(ids, args.Get(1).(store.AnalyticsInsert).ID) }).
		Return(false, nil)
	st.On("HandleUnsubscribe", ctx, "b@example.com", "cmp_1").Return(errors.New("deadlock")).Twice()
	st.On("HandleUnsubscribe", ctx, "b@example.com", "cmp_1").Return(nil)

	p := &Processor{Store: st}
	assert.Error(t, p.Apply(ctx, d))
	assert.Error(t, p.Apply(ctx, d))
	assert.NoError(t, p.Apply(ctx, d))

	require.Len(t, ids, 3)
	assert.Equal(t, []string{d.Key(), d.Key(), d.Key()}, ids)
	st.AssertNumberOfCalls(t, "HandleUnsubscribe", 3)
}
