// Package postgres implements the service repository interfaces against
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/bounce-pipeline/internal/bounce"
	"github.com/ignite/bounce-pipeline/internal/domain"
)

// SubscriberRepo implements bounce.Repository against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

func (r *SubscriberRepo) GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error) {
	return r.getSubscriber(ctx, `WHERE id = $1`, id)
}

func (r *SubscriberRepo) GetSubscriberByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return r.getSubscriber(ctx, `WHERE email = $1`, email)
}

func (r *SubscriberRepo) getSubscriber(ctx context.Context, where string, arg any) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, status, created_at, updated_at
		FROM subscribers `+where,
		arg).Scan(&s.ID, &s.Email, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, bounce.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

func (r *SubscriberRepo) RecordBounce(ctx context.Context, b *domain.BounceEvent) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bounces (id, subscriber_id, email, campaign_id, bounce_type, source, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, b.ID, b.SubscriberID, b.Email, nullable(b.CampaignID), b.Type, b.Source, []byte(b.Meta), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("record bounce: %w", err)
	}
	return nil
}

// IncrementBounceCount bumps the per-kind counter in a single upsert and
// returns the new value, so the caller reads the count its own event
// produced rather than whatever is current by the time a second query runs.
func (r *SubscriberRepo) IncrementBounceCount(ctx context.Context, subID string, kind domain.BounceType) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO bounce_counts (subscriber_id, bounce_type, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (subscriber_id, bounce_type)
		DO UPDATE SET count = bounce_counts.count + 1
		RETURNING count
	`, subID, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment bounce count: %w", err)
	}
	return count, nil
}

func (r *SubscriberRepo) UpdateSubscriberStatus(ctx context.Context, subID string, status domain.SubscriberStatus) (domain.SubscriberStatus, error) {
	var prior domain.SubscriberStatus
	err := r.db.QueryRowContext(ctx, `
		UPDATE subscribers s
		SET status = $2, updated_at = NOW()
		FROM (SELECT id, status FROM subscribers WHERE id = $1 FOR UPDATE) old
		WHERE s.id = old.id
		RETURNING old.status
	`, subID, status).Scan(&prior)
	if err == sql.ErrNoRows {
		return "", bounce.ErrSubscriberNotFound
	}
	if err != nil {
		return "", fmt.Errorf("update subscriber status: %w", err)
	}
	return prior, nil
}

func (r *SubscriberRepo) DeleteSubscriber(ctx context.Context, subID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = $1`, subID)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bounce.ErrSubscriberNotFound
	}
	return nil
}

func (r *SubscriberRepo) SubscribersAtThreshold(ctx context.Context, thresholds map[domain.BounceType]int) ([]domain.Subscriber, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	q := `
		SELECT DISTINCT s.id, s.email, s.status, s.created_at, s.updated_at
		FROM subscribers s
		JOIN bounce_counts bc ON bc.subscriber_id = s.id
		WHERE s.status <> 'blocklisted' AND (`
	args := []any{}
	idx := 1
	first := true
	for _, kind := range []domain.BounceType{domain.BounceTypeHard, domain.BounceTypeSoft, domain.BounceTypeComplaint} {
		threshold, ok := thresholds[kind]
		if !ok {
			continue
		}
		if !first {
			q += " OR "
		}
		q += fmt.Sprintf("(bc.bounce_type = $%d AND bc.count >= $%d)", idx, idx+1)
		args = append(args, kind, threshold)
		idx += 2
		first = false
	}
	q += `) ORDER BY s.email`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("subscribers at threshold: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		var s domain.Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// ListBounces returns recorded bounce events newest first, optionally
// scoped to one subscriber.
func (r *SubscriberRepo) ListBounces(ctx context.Context, subscriberID string, limit, offset int) ([]domain.BounceEvent, int, error) {
	countQ := `SELECT COUNT(*) FROM bounces`
	listQ := `
		SELECT id, subscriber_id, email, COALESCE(campaign_id, ''), bounce_type, source, meta, created_at
		FROM bounces`
	args := []any{}
	if subscriberID != "" {
		countQ += ` WHERE subscriber_id = $1`
		listQ += ` WHERE subscriber_id = $1`
		args = append(args, subscriberID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bounces: %w", err)
	}

	listQ += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, listQ, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bounces: %w", err)
	}
	defer rows.Close()

	var bounces []domain.BounceEvent
	for rows.Next() {
		var b domain.BounceEvent
		var meta []byte
		if err := rows.Scan(&b.ID, &b.SubscriberID, &b.Email, &b.CampaignID, &b.Type, &b.Source, &meta, &b.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan bounce: %w", err)
		}
		b.Meta = meta
		bounces = append(bounces, b)
	}
	return bounces, total, rows.Err()
}

// BounceCounts returns the per-kind counters for one subscriber. Kinds the
// subscriber never bounced on have no row and stay zero.
func (r *SubscriberRepo) BounceCounts(ctx context.Context, subscriberID string) (domain.BounceCounts, error) {
	counts := domain.BounceCounts{SubscriberID: subscriberID}

	rows, err := r.db.QueryContext(ctx,
		`SELECT bounce_type, count FROM bounce_counts WHERE subscriber_id = $1`, subscriberID)
	if err != nil {
		return counts, fmt.Errorf("query bounce counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind domain.BounceType
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return counts, fmt.Errorf("scan bounce count: %w", err)
		}
		switch kind {
		case domain.BounceTypeHard:
			counts.Hard = n
		case domain.BounceTypeSoft:
			counts.Soft = n
		case domain.BounceTypeComplaint:
			counts.Complaint = n
		}
	}
	return counts, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
