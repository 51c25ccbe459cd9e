package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mailcast/internal/domain"
	"mailcast/internal/providers"
	"mailcast/internal/service"
	"mailcast/internal/store"
)

// Campaigns is the service surface behind the public API.
type Campaigns interface {
	CreateList(ctx context.Context, req domain.CreateListRequest) (domain.SubscriberList, error)
	GetList(ctx context.Context, id string) (domain.SubscriberList, error)
	ListLists(ctx context.Context, limit, offset int) ([]domain.SubscriberList, error)
	AddSubscriber(ctx context.Context, listID string, req domain.CreateSubscriberRequest) (domain.Subscriber, error)
	RemoveSubscriber(ctx context.Context, id string) error
	ListSubscribers(ctx context.Context, f store.SubscriberFilter) ([]domain.Subscriber, error)

	CreateCampaign(ctx context.Context, req domain.CreateCampaignRequest) (domain.Campaign, error)
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	ListCampaigns(ctx context.Context, f store.CampaignFilter) ([]domain.Campaign, error)
	UpdateCampaign(ctx context.Context, id string, req domain.UpdateCampaignRequest) (domain.Campaign, error)
	ScheduleCampaign(ctx context.Context, id string, req domain.ScheduleCampaignRequest) (domain.Campaign, error)
	RequestSend(ctx context.Context, id string) (domain.SendResponse, error)
	SendTest(ctx context.Context, id string, req domain.TestSendRequest) (providers.Result, error)
	Stats(ctx context.Context, id string) (service.CampaignStats, error)
}

type API struct {
	Svc Campaigns
}

func (a *API) Register(r *mux.Router) {
	// Full paths on the root router: a /v1 subrouter answers 404 instead of 405
	// on a method mismatch.
	v1 := func(path string, h http.HandlerFunc, method string) {
		r.HandleFunc("/v1"+path, h).Methods(method)
	}

	v1("/lists", a.handleListLists, http.MethodGet)
	v1("/lists", a.handleCreateList, http.MethodPost)
	v1("/lists/{id}", a.handleGetList, http.MethodGet)
	v1("/lists/{id}/subscribers", a.handleListSubscribers, http.MethodGet)
	v1("/lists/{id}/subscribers", a.handleAddSubscriber, http.MethodPost)
	v1("/subscribers/{id}", a.handleRemoveSubscriber, http.MethodDelete)

	v1("/campaigns", a.handleListCampaigns, http.MethodGet)
	v1("/campaigns", a.handleCreateCampaign, http.MethodPost)
	v1("/campaigns/{id}", a.handleGetCampaign, http.MethodGet)
	v1("/campaigns/{id}", a.handleUpdateCampaign, http.MethodPatch)
	v1("/campaigns/{id}/schedule", a.handleSchedule, http.MethodPost)
	v1("/campaigns/{id}/send", a.handleSend, http.MethodPost)
	v1("/campaigns/{id}/test", a.handleTestSend, http.MethodPost)
	v1("/campaigns/{id}/events", a.handleStats, http.MethodGet)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, ErrInvalidJSON)
		return false
	}
	return true
}

func page(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (a *API) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateListRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := a.Svc.CreateList(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (a *API) handleListLists(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	lists, err := a.Svc.ListLists(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (a *API) handleGetList(w http.ResponseWriter, r *http.Request) {
	l, err := a.Svc.GetList(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *API) handleAddSubscriber(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriberRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := a.Svc.AddSubscriber(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (a *API) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	subs, err := a.Svc.ListSubscribers(r.Context(), store.SubscriberFilter{
		ListID: mux.Vars(r)["id"],
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (a *API) handleRemoveSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := a.Svc.RemoveSubscriber(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCampaignRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := a.Svc.CreateCampaign(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	out, err := a.Svc.ListCampaigns(r.Context(), store.CampaignFilter{
		Status: domain.CampaignStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.Svc.GetCampaign(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateCampaignRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := a.Svc.UpdateCampaign(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req domain.ScheduleCampaignRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := a.Svc.ScheduleCampaign(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	resp, err := a.Svc.RequestSend(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) handleTestSend(w http.ResponseWriter, r *http.Request) {
	var req domain.TestSendRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.Svc.SendTest(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Svc.Stats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
