package sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qmuntal/stateless"

	"mailcast/internal/domain"
	"mailcast/internal/observability"
	"mailcast/internal/store"
)

const (
	TriggerSchedule = "schedule"
	TriggerStart    = "start"
	TriggerComplete = "complete"
	TriggerFail     = "fail"
)

type StatusStore interface {
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	SetCampaignStatus(ctx context.Context, in store.CampaignStatusUpdate) error
}

// Tracker owns every write to a campaign's status. The backing store is the
// state machine's storage, so each transition is exactly one persisted update.
//
//	draft -> scheduled -> sending -> sent
//	draft ------------->  sending -> failed
type Tracker struct {
	Store StatusStore
	Now   func() time.Time
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now().UTC()
}

func (t *Tracker) Schedule(ctx context.Context, campaignID string, at time.Time) error {
	return t.fire(ctx, campaignID, TriggerSchedule, &at)
}

func (t *Tracker) Start(ctx context.Context, campaignID string) error {
	return t.fire(ctx, campaignID, TriggerStart, nil)
}

func (t *Tracker) Complete(ctx context.Context, campaignID string) error {
	return t.fire(ctx, campaignID, TriggerComplete, nil)
}

func (t *Tracker) Fail(ctx context.Context, campaignID string) error {
	return t.fire(ctx, campaignID, TriggerFail, nil)
}

func (t *Tracker) fire(ctx context.Context, campaignID, trigger string, scheduledFor *time.Time) error {
	sm := t.machine(campaignID, scheduledFor)
	ok, err := sm.CanFireCtx(ctx, trigger)
	if err != nil {
		return err
	}
	if !ok {
		current, _ := sm.State(ctx)
		return fmt.Errorf("%w: %s from %v", domain.ErrInvalidTransition, trigger, current)
	}
	return sm.FireCtx(ctx, trigger)
}

func (t *Tracker) machine(campaignID string, scheduledFor *time.Time) *stateless.StateMachine {
	// the write is conditioned on the status the transition was decided from
	var from domain.CampaignStatus
	sm := stateless.NewStateMachineWithExternalStorage(
		func(ctx context.Context) (stateless.State, error) {
			c, err := t.Store.GetCampaign(ctx, campaignID)
			if err != nil {
				return nil, err
			}
			from = c.Status
			return c.Status, nil
		},
		func(ctx context.Context, s stateless.State) error {
			return t.persist(ctx, campaignID, from, s.(domain.CampaignStatus), scheduledFor)
		},
		stateless.FiringImmediate,
	)

	sm.Configure(domain.StatusDraft).
		Permit(TriggerSchedule, domain.StatusScheduled).
		Permit(TriggerStart, domain.StatusSending)
	sm.Configure(domain.StatusScheduled).
		Permit(TriggerStart, domain.StatusSending)
	sm.Configure(domain.StatusSending).
		Permit(TriggerComplete, domain.StatusSent).
		Permit(TriggerFail, domain.StatusFailed)
	// sent and failed are terminal
	sm.Configure(domain.StatusSent)
	sm.Configure(domain.StatusFailed)
	return sm
}

func (t *Tracker) persist(ctx context.Context, campaignID string, from, status domain.CampaignStatus, scheduledFor *time.Time) error {
	now := t.now()
	in := store.CampaignStatusUpdate{ID: campaignID, From: from, Status: status, Now: now}
	switch status {
	case domain.StatusScheduled:
		in.ScheduledFor = scheduledFor
	case domain.StatusSent:
		in.SentAt = &now
	}
	if err := t.Store.SetCampaignStatus(ctx, in); err != nil {
		return fmt.Errorf("persist campaign %s status %s: %w", campaignID, status, err)
	}
	observability.StatusTransitions.WithLabelValues(string(status)).Inc()
	slog.Info("campaign status changed", "campaign_id", campaignID, "status", status)
	return nil
}
