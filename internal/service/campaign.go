package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mailcast/internal/domain"
	"mailcast/internal/providers"
	sqsqueue "mailcast/internal/queue/sqs"
	"mailcast/internal/sender"
	"mailcast/internal/store"
	"mailcast/internal/util"
)

type Store interface {
	CreateList(ctx context.Context, l domain.SubscriberList) error
	GetList(ctx context.Context, id string) (domain.SubscriberList, error)
	ListLists(ctx context.Context, limit, offset int) ([]domain.SubscriberList, error)
	CreateSubscriber(ctx context.Context, sub domain.Subscriber) error
	DeleteSubscriber(ctx context.Context, id string) error
	ListSubscribers(ctx context.Context, f store.SubscriberFilter) ([]domain.Subscriber, error)

	CreateCampaign(ctx context.Context, c domain.Campaign) error
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	ListCampaigns(ctx context.Context, f store.CampaignFilter) ([]domain.Campaign, error)
	UpdateCampaignContent(ctx context.Context, c domain.Campaign, now time.Time) error
	CountEventsByKind(ctx context.Context, campaignID string) ([]store.KindCount, error)
}

type Queue interface {
	EnqueueCampaignSend(ctx context.Context, job sqsqueue.CampaignSendJob) error
}

type Pipeline interface {
	Send(ctx context.Context, campaignID string) (sender.Outcome, error)
	SendTest(ctx context.Context, campaignID, to string) (providers.Result, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, campaignID string, at time.Time) error
}

type CampaignService struct {
	Store     Store
	Pipeline  Pipeline
	Scheduler Scheduler
	// Queue is optional; without it sends run in-process in the background.
	Queue Queue
	Now   func() time.Time

	inflight sync.WaitGroup
}

// Wait blocks until every in-process send has finished.
func (s *CampaignService) Wait() {
	s.inflight.Wait()
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return util.NowUTC()
}

func (s *CampaignService) CreateList(ctx context.Context, req domain.CreateListRequest) (domain.SubscriberList, error) {
	if err := req.Validate(); err != nil {
		return domain.SubscriberList{}, err
	}
	l := domain.SubscriberList{ID: util.NewListID(), Name: req.Name, CreatedAt: s.now()}
	if err := s.Store.CreateList(ctx, l); err != nil {
		return domain.SubscriberList{}, err
	}
	return l, nil
}

func (s *CampaignService) GetList(ctx context.Context, id string) (domain.SubscriberList, error) {
	return s.Store.GetList(ctx, id)
}

func (s *CampaignService) ListLists(ctx context.Context, limit, offset int) ([]domain.SubscriberList, error) {
	return s.Store.ListLists(ctx, limit, offset)
}

func (s *CampaignService) AddSubscriber(ctx context.Context, listID string, req domain.CreateSubscriberRequest) (domain.Subscriber, error) {
	req.Email = util.NormalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		return domain.Subscriber{}, err
	}
	sub := domain.Subscriber{
		ID:         util.NewSubscriberID(),
		ListID:     listID,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Attributes: req.Attributes,
		Status:     domain.SubscriberActive,
		CreatedAt:  s.now(),
	}
	if err := s.Store.CreateSubscriber(ctx, sub); err != nil {
		return domain.Subscriber{}, err
	}
	return sub, nil
}

func (s *CampaignService) RemoveSubscriber(ctx context.Context, id string) error {
	return s.Store.DeleteSubscriber(ctx, id)
}

func (s *CampaignService) ListSubscribers(ctx context.Context, f store.SubscriberFilter) ([]domain.Subscriber, error) {
	if _, err := s.Store.GetList(ctx, f.ListID); err != nil {
		return nil, err
	}
	return s.Store.ListSubscribers(ctx, f)
}

func (s *CampaignService) CreateCampaign(ctx context.Context, req domain.CreateCampaignRequest) (domain.Campaign, error) {
	if err := req.Validate(); err != nil {
		return domain.Campaign{}, err
	}
	now := s.now()
	c := domain.Campaign{
		ID:        util.NewCampaignID(),
		Name:      req.Name,
		Subject:   req.Subject,
		HTMLBody:  req.HTMLBody,
		FromEmail: req.FromEmail,
		FromName:  req.FromName,
		ReplyTo:   req.ReplyTo,
		ListID:    req.ListID,
		Status:    domain.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateCampaign(ctx, c); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return s.Store.GetCampaign(ctx, id)
}

func (s *CampaignService) ListCampaigns(ctx context.Context, f store.CampaignFilter) ([]domain.Campaign, error) {
	return s.Store.ListCampaigns(ctx, f)
}

// UpdateCampaign edits content while the campaign is still draft or scheduled.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, req domain.UpdateCampaignRequest) (domain.Campaign, error) {
	if err := req.Validate(); err != nil {
		return domain.Campaign{}, err
	}
	c, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if !c.Status.Editable() {
		return domain.Campaign{}, fmt.Errorf("%w: campaign is %s", domain.ErrInvalidTransition, c.Status)
	}
	req.Apply(&c)
	c.UpdatedAt = s.now()
	if err := s.Store.UpdateCampaignContent(ctx, c, c.UpdatedAt); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

func (s *CampaignService) ScheduleCampaign(ctx context.Context, id string, req domain.ScheduleCampaignRequest) (domain.Campaign, error) {
	if err := req.Validate(); err != nil {
		return domain.Campaign{}, err
	}
	if !req.ScheduledFor.After(s.now()) {
		return domain.Campaign{}, fmt.Errorf("%w: scheduledFor must be in the future", domain.ErrValidation)
	}
	if err := s.Scheduler.Schedule(ctx, id, req.ScheduledFor.UTC()); err != nil {
		return domain.Campaign{}, err
	}
	return s.Store.GetCampaign(ctx, id)
}

// RequestSend checks the campaign can be sent and hands it to the worker
// queue. The status moves to sending only once a worker picks it up.
func (s *CampaignService) RequestSend(ctx context.Context, id string) (domain.SendResponse, error) {
	c, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return domain.SendResponse{}, err
	}
	if !c.Status.Editable() {
		return domain.SendResponse{}, fmt.Errorf("%w: campaign is %s", domain.ErrInvalidTransition, c.Status)
	}
	if err := c.Sendable(); err != nil {
		return domain.SendResponse{}, fmt.Errorf("campaign %s: %w", id, err)
	}

	if s.Queue == nil {
		sendCtx := context.WithoutCancel(ctx)
		s.inflight.Go(func() { s.sendInProcess(sendCtx, id) })
		return domain.SendResponse{CampaignID: id, Status: "queued"}, nil
	}
	if err := s.Queue.EnqueueCampaignSend(ctx, sqsqueue.CampaignSendJob{CampaignID: id, RequestedAt: s.now()}); err != nil {
		return domain.SendResponse{}, fmt.Errorf("enqueue send: %w", err)
	}
	return domain.SendResponse{CampaignID: id, Status: "queued"}, nil
}

func (s *CampaignService) sendInProcess(ctx context.Context, id string) {
	if _, err := s.Pipeline.Send(ctx, id); err != nil {
		slog.Error("in-process campaign send failed", "campaign_id", id, "err", err)
	}
}

func (s *CampaignService) SendTest(ctx context.Context, id string, req domain.TestSendRequest) (providers.Result, error) {
	req.To = util.NormalizeEmail(req.To)
	if err := req.Validate(); err != nil {
		return providers.Result{}, err
	}
	return s.Pipeline.SendTest(ctx, id, req.To)
}

// CampaignStats is the analytics summary for one campaign.
type CampaignStats struct {
	CampaignID string                   `json:"campaignId"`
	Status     domain.CampaignStatus    `json:"status"`
	Counts     map[domain.EventKind]int `json:"counts"`
}

func (s *CampaignService) Stats(ctx context.Context, id string) (CampaignStats, error) {
	c, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return CampaignStats{}, err
	}
	rows, err := s.Store.CountEventsByKind(ctx, id)
	if err != nil {
		return CampaignStats{}, err
	}
	out := CampaignStats{CampaignID: id, Status: c.Status, Counts: map[domain.EventKind]int{
		domain.KindOpen: 0, domain.KindClick: 0, domain.KindBounce: 0, domain.KindUnsubscribe: 0,
	}}
	for _, r := range rows {
		out.Counts[r.Kind] = r.Count
	}
	return out, nil
}
