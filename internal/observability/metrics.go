package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mailcast_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mailcast_enqueue_total", Help: "SQS enqueue results"},
		[]string{"queue", "result"},
	)
	ProviderSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mailcast_provider_send_total", Help: "Email provider send outcomes"},
		[]string{"provider", "result", "http_status"},
	)
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "mailcast_provider_send_latency_seconds", Help: "Email provider send latency"},
		[]string{"provider"},
	)
	CampaignSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mailcast_campaign_sends_total", Help: "Campaign send pipeline outcomes"},
		[]string{"result"},
	)
	Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mailcast_batches_total", Help: "Dispatched batches"},
		[]string{"result"},
	)
	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mailcast_campaign_status_transitions_total", Help: "Persisted campaign status changes"},
		[]string{"to"},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mailcast_webhook_events_total", Help: "Webhook events by provider and type"},
		[]string{"provider", "type"},
	)
	AnalyticsEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mailcast_analytics_events_total", Help: "Recorded analytics events"},
		[]string{"kind"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Enqueues, ProviderSend, ProviderLatency, CampaignSends, Batches,
		StatusTransitions, WebhookEvents, AnalyticsEvents)
}
