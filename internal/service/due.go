package service

import (
	"context"
	"log/slog"
	"time"

	"mailcast/internal/domain"
	"mailcast/internal/util"
)

type DueStore interface {
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
}

// DueReleaser hands scheduled campaigns to Release once their send time has
// passed. A campaign stays scheduled until a send actually starts, so a
// released id is not released again until Hold has elapsed.
type DueReleaser struct {
	Store    DueStore
	Release  func(ctx context.Context, campaignID string) error
	Interval time.Duration
	Hold     time.Duration
	Limit    int
	Now      func() time.Time

	released map[string]time.Time
}

func (d *DueReleaser) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return util.NowUTC()
}

func (d *DueReleaser) interval() time.Duration {
	if d.Interval <= 0 {
		return 30 * time.Second
	}
	return d.Interval
}

func (d *DueReleaser) hold() time.Duration {
	if d.Hold <= 0 {
		return 15 * time.Minute
	}
	return d.Hold
}

// RunOnce releases every due campaign not released within Hold and returns
// how many went out. A failed release is logged and retried on the next pass.
func (d *DueReleaser) RunOnce(ctx context.Context) (int, error) {
	if d.released == nil {
		d.released = map[string]time.Time{}
	}
	now := d.now()
	for id, at := range d.released {
		if now.Sub(at) >= d.hold() {
			delete(d.released, id)
		}
	}

	limit := d.Limit
	if limit <= 0 {
		limit = 100
	}
	due, err := d.Store.ListDueScheduled(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, c := range due {
		if _, ok := d.released[c.ID]; ok {
			continue
		}
		if err := d.Release(ctx, c.ID); err != nil {
			slog.Error("scheduled campaign release failed", "campaign_id", c.ID, "err", err)
			continue
		}
		d.released[c.ID] = now
		slog.Info("scheduled campaign released", "campaign_id", c.ID, "scheduled_for", c.ScheduledFor)
		n++
	}
	return n, nil
}

// Run polls until ctx is done.
func (d *DueReleaser) Run(ctx context.Context) error {
	t := time.NewTicker(d.interval())
	defer t.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduled campaign poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
