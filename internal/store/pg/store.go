package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailcast/internal/domain"
	"mailcast/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

const campaignColumns = `id, name, subject, html_body, from_email, COALESCE(from_name,''), COALESCE(reply_to,''),
	list_id, status, scheduled_for, sent_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (domain.Campaign, error) {
	var c domain.Campaign
	var status string
	err := row.Scan(&c.ID, &c.Name, &c.Subject, &c.HTMLBody, &c.FromEmail, &c.FromName, &c.ReplyTo,
		&c.ListID, &status, &c.ScheduledFor, &c.SentAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Campaign{}, notFound(err)
	}
	c.Status = domain.CampaignStatus(status)
	return c, nil
}

func (s *Store) CreateCampaign(ctx context.Context, c domain.Campaign) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO campaigns (id, name, subject, html_body, from_email, from_name, reply_to, list_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`, c.ID, c.Name, c.Subject, c.HTMLBody, c.FromEmail, nullIfEmpty(c.FromName), nullIfEmpty(c.ReplyTo),
		c.ListID, string(c.Status), c.CreatedAt)
	return translate(err)
}

func (s *Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return scanCampaign(s.DB.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id))
}

func (s *Store) ListCampaigns(ctx context.Context, f store.CampaignFilter) ([]domain.Campaign, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE ($1 = '' OR status = $1)
		ORDER BY id DESC LIMIT $2 OFFSET $3
	`, string(f.Status), limit(f.Limit), f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListDueScheduled returns scheduled campaigns whose send time is at or before now, oldest first.
func (s *Store) ListDueScheduled(ctx context.Context, now time.Time, limitN int) ([]domain.Campaign, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'scheduled' AND scheduled_for <= $1
		ORDER BY scheduled_for LIMIT $2
	`, now, limit(limitN))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCampaignContent rewrites the editable fields. It only touches draft or
// scheduled campaigns; anything else yields ErrInvalidTransition.
func (s *Store) UpdateCampaignContent(ctx context.Context, c domain.Campaign, now time.Time) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET name=$2, subject=$3, html_body=$4, from_email=$5, from_name=$6, reply_to=$7, list_id=$8, updated_at=$9
		WHERE id=$1 AND status IN ('draft','scheduled')
	`, c.ID, c.Name, c.Subject, c.HTMLBody, c.FromEmail, nullIfEmpty(c.FromName), nullIfEmpty(c.ReplyTo), c.ListID, now)
	if err != nil {
		return translate(err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := s.GetCampaign(ctx, c.ID); err != nil {
			return err
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

func (s *Store) SetCampaignStatus(ctx context.Context, in store.CampaignStatusUpdate) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET status=$2,
		    scheduled_for=COALESCE($3, scheduled_for),
		    sent_at=COALESCE($4, sent_at),
		    updated_at=$5
		WHERE id=$1 AND ($6 = '' OR status=$6)
	`, in.ID, string(in.Status), in.ScheduledFor, in.SentAt, in.Now, string(in.From))
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	// lost the race to another writer, or the campaign is gone
	var current string
	if err := s.DB.QueryRow(ctx, `SELECT status FROM campaigns WHERE id=$1`, in.ID).Scan(&current); err != nil {
		return notFound(err)
	}
	return fmt.Errorf("%w: campaign is %s, not %s", domain.ErrInvalidTransition, current, in.From)
}

func (s *Store) CreateList(ctx context.Context, l domain.SubscriberList) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO subscriber_lists (id, name, subscriber_count, created_at) VALUES ($1,$2,0,$3)
	`, l.ID, l.Name, l.CreatedAt)
	return translate(err)
}

func (s *Store) GetList(ctx context.Context, id string) (domain.SubscriberList, error) {
	var l domain.SubscriberList
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, subscriber_count, created_at FROM subscriber_lists WHERE id=$1
	`, id).Scan(&l.ID, &l.Name, &l.SubscriberCount, &l.CreatedAt)
	if err != nil {
		return domain.SubscriberList{}, notFound(err)
	}
	return l, nil
}

func (s *Store) ListLists(ctx context.Context, limitN, offset int) ([]domain.SubscriberList, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, subscriber_count, created_at FROM subscriber_lists ORDER BY id DESC LIMIT $1 OFFSET $2
	`, limit(limitN), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SubscriberList{}
	for rows.Next() {
		var l domain.SubscriberList
		if err := rows.Scan(&l.ID, &l.Name, &l.SubscriberCount, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateSubscriber inserts the subscriber and bumps the list count in one transaction.
func (s *Store) CreateSubscriber(ctx context.Context, sub domain.Subscriber) error {
	attrs, _ := json.Marshal(sub.Attributes)
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE subscriber_lists SET subscriber_count = subscriber_count + 1 WHERE id=$1
	`, sub.ListID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO subscribers (id, list_id, email, first_name, last_name, attributes_json, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sub.ID, sub.ListID, sub.Email, nullIfEmpty(sub.FirstName), nullIfEmpty(sub.LastName), attrs, string(sub.Status), sub.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return tx.Commit(ctx)
}

func (s *Store) DeleteSubscriber(ctx context.Context, id string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var listID, status string
	if err := tx.QueryRow(ctx, `DELETE FROM subscribers WHERE id=$1 RETURNING list_id, status`, id).Scan(&listID, &status); err != nil {
		return notFound(err)
	}
	// unsubscribed rows were already taken off the count
	if status != string(domain.SubscriberActive) {
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE subscriber_lists SET subscriber_count = GREATEST(subscriber_count - 1, 0) WHERE id=$1
	`, listID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const subscriberColumns = `id, list_id, email, COALESCE(first_name,''), COALESCE(last_name,''), attributes_json, status, created_at`

func scanSubscribers(rows pgx.Rows) ([]domain.Subscriber, error) {
	defer rows.Close()
	out := []domain.Subscriber{}
	for rows.Next() {
		var sub domain.Subscriber
		var attrs []byte
		var status string
		if err := rows.Scan(&sub.ID, &sub.ListID, &sub.Email, &sub.FirstName, &sub.LastName, &attrs, &status, &sub.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(attrs, &sub.Attributes)
		sub.Status = domain.SubscriberStatus(status)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) ListSubscribers(ctx context.Context, f store.SubscriberFilter) ([]domain.Subscriber, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+subscriberColumns+` FROM subscribers WHERE list_id=$1 ORDER BY id LIMIT $2 OFFSET $3
	`, f.ListID, limit(f.Limit), f.Offset)
	if err != nil {
		return nil, err
	}
	return scanSubscribers(rows)
}

// ListActiveSubscribers returns every active subscriber of a list in a stable order.
func (s *Store) ListActiveSubscribers(ctx context.Context, listID string) ([]domain.Subscriber, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+subscriberColumns+` FROM subscribers WHERE list_id=$1 AND status='active' ORDER BY id
	`, listID)
	if err != nil {
		return nil, err
	}
	return scanSubscribers(rows)
}

// FindCampaignSubscriber resolves an email to a subscriber of the campaign's list.
func (s *Store) FindCampaignSubscriber(ctx context.Context, campaignID, email string) (string, bool, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
		SELECT s.id FROM subscribers s JOIN campaigns c ON c.list_id = s.list_id
		WHERE c.id=$1 AND s.email=$2
	`, campaignID, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) RecordAttempt(ctx context.Context, in store.SendAttempt) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO send_attempts (campaign_id, email, provider, provider_msg_id, http_status, error_msg, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, in.CampaignID, in.Email, in.Provider, nullIfEmpty(in.ProviderMsgID), in.HTTPStatus, nullIfEmpty(in.Error), in.Now)
	return err
}

func (s *Store) InsertAnalyticsEvent(ctx context.Context, in store.AnalyticsInsert) (bool, error) {
	b, _ := json.Marshal(in.Metadata)
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO campaign_analytics (id, campaign_id, subscriber_id, email, kind, metadata_json, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING
	`, in.ID, in.CampaignID, nullIfEmpty(in.SubscriberID), nullIfEmpty(in.Email), string(in.Kind), b, in.OccurredAt)
	if err != nil {
		return false, translate(err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) CountEventsByKind(ctx context.Context, campaignID string) ([]store.KindCount, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT kind, COUNT(*) FROM campaign_analytics WHERE campaign_id=$1 GROUP BY kind ORDER BY kind
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []store.KindCount{}
	for rows.Next() {
		var kc store.KindCount
		var kind string
		if err := rows.Scan(&kind, &kc.Count); err != nil {
			return nil, err
		}
		kc.Kind = domain.EventKind(kind)
		out = append(out, kc)
	}
	return out, rows.Err()
}

// HandleUnsubscribe delegates to the handle_unsubscribe stored function.
func (s *Store) HandleUnsubscribe(ctx context.Context, email, campaignID string) error {
	_, err := s.DB.Exec(ctx, `SELECT handle_unsubscribe($1, $2)`, email, campaignID)
	return err
}

func (s *Store) UpsertBillingSubscription(ctx context.Context, in store.BillingSubscription) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO billing_subscriptions (stripe_subscription_id, stripe_customer_id, account_id, status, price_id, current_period_end, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			stripe_customer_id=EXCLUDED.stripe_customer_id,
			account_id=COALESCE(EXCLUDED.account_id, billing_subscriptions.account_id),
			status=EXCLUDED.status,
			price_id=COALESCE(EXCLUDED.price_id, billing_subscriptions.price_id),
			current_period_end=COALESCE(EXCLUDED.current_period_end, billing_subscriptions.current_period_end),
			updated_at=EXCLUDED.updated_at
	`, in.StripeSubscriptionID, in.StripeCustomerID, nullIfEmpty(in.AccountID), in.Status, nullIfEmpty(in.PriceID), in.CurrentPeriodEnd, in.Now)
	return err
}

func (s *Store) SetBillingStatus(ctx context.Context, stripeSubscriptionID, status string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE billing_subscriptions SET status=$2, updated_at=$3 WHERE stripe_subscription_id=$1
	`, stripeSubscriptionID, status, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return domain.ErrConflict
		case "23503":
			return domain.ErrNotFound
		}
	}
	return err
}

func limit(n int) int {
	if n <= 0 || n > 500 {
		return 100
	}
	return n
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
