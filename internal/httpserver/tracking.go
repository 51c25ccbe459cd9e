package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"mailcast/internal/domain"
	"mailcast/internal/events"
	"mailcast/internal/tracking"
)

// Tracker serves the open-tracking pixel and records an open per hit.
type Tracker struct {
	Sink EventSink
	Now  func() time.Time
}

func (t *Tracker) Register(r *mux.Router) {
	r.HandleFunc(tracking.OpenPath, t.handleOpen).Methods(http.MethodGet)
}

// handleOpen always answers with the pixel; recording is best effort.
func (t *Tracker) handleOpen(w http.ResponseWriter, r *http.Request) {
	if cid := r.URL.Query().Get("cid"); cid != "" {
		now := time.Now()
		if t.Now != nil {
			now = t.Now()
		}
		err := t.Sink(r.Context(), events.Delivery{
			Provider:   "pixel",
			Type:       "open",
			Kind:       domain.KindOpen,
			CampaignID: cid,
			OccurredAt: now.UTC(),
			Payload: map[string]any{
				"user_agent": r.UserAgent(),
			},
		})
		if err != nil {
			slog.Warn("record pixel open failed", "err", err, "campaign_id", cid)
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(tracking.Pixel)
}
