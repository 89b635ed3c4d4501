package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/eventstore"
)

// WebhookLogRepo implements eventstore.Repository against PostgreSQL.
type WebhookLogRepo struct{ db *sql.DB }

// NewWebhookLogRepo creates a Postgres-backed webhook log repository.
func NewWebhookLogRepo(db *sql.DB) *WebhookLogRepo { return &WebhookLogRepo{db: db} }

func (r *WebhookLogRepo) Insert(ctx context.Context, e *domain.WebhookEvent) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_logs (id, webhook_type, event_type, message_id, payload, processed, received_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`, id, e.WebhookType, e.EventType, e.MessageID, []byte(e.Payload), e.ReceivedAt)
	if err != nil {
		return "", fmt.Errorf("insert webhook log: %w", err)
	}
	return id, nil
}

func (r *WebhookLogRepo) Get(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	e := &domain.WebhookEvent{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, webhook_type, event_type, COALESCE(message_id, ''), payload,
		       processed, COALESCE(error_message, ''), received_at, processed_at
		FROM webhook_logs WHERE id = $1
	`, id).Scan(&e.ID, &e.WebhookType, &e.EventType, &e.MessageID, &payload,
		&e.Processed, &e.ErrorMessage, &e.ReceivedAt, &e.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, eventstore.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook log: %w", err)
	}
	e.Payload = payload
	return e, nil
}

// SetProcessed guards exactly-once with the processed flag in the WHERE
// clause: a second call matches zero rows and the first outcome stands.
func (r *WebhookLogRepo) SetProcessed(ctx context.Context, id string, errorMessage string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_logs
		SET processed = TRUE, error_message = NULLIF($2, ''), processed_at = $3
		WHERE id = $1 AND processed = FALSE
	`, id, errorMessage, at)
	if err != nil {
		return fmt.Errorf("set processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set processed: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_logs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("set processed: %w", err)
	}
	if !exists {
		return eventstore.ErrEventNotFound
	}
	return eventstore.ErrAlreadyProcessed
}

func (r *WebhookLogRepo) List(ctx context.Context, f eventstore.Filter) ([]domain.WebhookEvent, int, error) {
	where := ""
	args := []any{}
	add := func(cond string, val any) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		args = append(args, val)
		where += fmt.Sprintf(cond, len(args))
	}
	if f.WebhookType != "" {
		add("webhook_type = $%d", f.WebhookType)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.Processed != nil {
		add("processed = $%d", *f.Processed)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count webhook logs: %w", err)
	}

	q := `
		SELECT id, webhook_type, event_type, COALESCE(message_id, ''), payload,
		       processed, COALESCE(error_message, ''), received_at, processed_at
		FROM webhook_logs` + where +
		fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	events, err := r.scanEvents(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *WebhookLogRepo) ListUnprocessed(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	return r.scanEvents(ctx, `
		SELECT id, webhook_type, event_type, COALESCE(message_id, ''), payload,
		       processed, COALESCE(error_message, ''), received_at, processed_at
		FROM webhook_logs
		WHERE processed = FALSE
		ORDER BY received_at ASC
		LIMIT $1
	`, limit)
}

func (r *WebhookLogRepo) ListProcessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WebhookEvent, error) {
	return r.scanEvents(ctx, `
		SELECT id, webhook_type, event_type, COALESCE(message_id, ''), payload,
		       processed, COALESCE(error_message, ''), received_at, processed_at
		FROM webhook_logs
		WHERE processed = TRUE AND received_at < $1
		ORDER BY received_at ASC
		LIMIT $2
	`, cutoff, limit)
}

func (r *WebhookLogRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_logs WHERE processed = TRUE AND id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete webhook logs: %w", err)
	}
	return res.RowsAffected()
}

func (r *WebhookLogRepo) scanEvents(ctx context.Context, q string, args ...any) ([]domain.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhook logs: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		var e domain.WebhookEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.WebhookType, &e.EventType, &e.MessageID, &payload,
			&e.Processed, &e.ErrorMessage, &e.ReceivedAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan webhook log: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}
