package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderEventColumns = `id, order_id, event_type, from_status, to_status,
	actor, reason, created_at`

const createOrderEventQuery = `
	INSERT INTO order_events (order_id, event_type, from_status, to_status, actor, reason)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + orderEventColumns

type CreateOrderEventParams struct {
	OrderID    uuid.UUID
	EventType  string
	FromStatus pgtype.Text
	ToStatus   pgtype.Text
	Actor      pgtype.UUID
	Reason     pgtype.Text
}

func (q *Queries) CreateOrderEvent(ctx context.Context, arg CreateOrderEventParams) (OrderEvent, error) {
	row := q.db.QueryRow(ctx, createOrderEventQuery,
		arg.OrderID, arg.EventType, arg.FromStatus, arg.ToStatus, arg.Actor, arg.Reason)
	return scanOrderEvent(row)
}

const listOrderEventsQuery = `
	SELECT ` + orderEventColumns + ` FROM order_events
	WHERE order_id = $1
	ORDER BY created_at`

func (q *Queries) ListOrderEvents(ctx context.Context, orderID uuid.UUID) ([]OrderEvent, error) {
	rows, err := q.db.Query(ctx, listOrderEventsQuery, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []OrderEvent
	for rows.Next() {
		ev, err := scanOrderEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanOrderEvent(row rowScanner) (OrderEvent, error) {
	var ev OrderEvent
	err := row.Scan(&ev.ID, &ev.OrderID, &ev.EventType, &ev.FromStatus,
		&ev.ToStatus, &ev.Actor, &ev.Reason, &ev.CreatedAt)
	return ev, err
}

// ── Notification failures ──

const notificationFailureColumns = `id, order_id, kind, recipient, error,
	attempts, created_at, last_attempt_at`

const createNotificationFailureQuery = `
	INSERT INTO notification_failures (order_id, kind, recipient, error)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + notificationFailureColumns

type CreateNotificationFailureParams struct {
	OrderID   uuid.UUID
	Kind      string
	Recipient string
	Error     string
}

func (q *Queries) CreateNotificationFailure(ctx context.Context, arg CreateNotificationFailureParams) (NotificationFailure, error) {
	row := q.db.QueryRow(ctx, createNotificationFailureQuery,
		arg.OrderID, arg.Kind, arg.Recipient, arg.Error)
	return scanNotificationFailure(row)
}

const getNotificationFailureQuery = `
	SELECT ` + notificationFailureColumns + ` FROM notification_failures WHERE id = $1`

func (q *Queries) GetNotificationFailure(ctx context.Context, id uuid.UUID) (NotificationFailure, error) {
	return scanNotificationFailure(q.db.QueryRow(ctx, getNotificationFailureQuery, id))
}

const listNotificationFailuresQuery = `
	SELECT ` + notificationFailureColumns + ` FROM notification_failures
	WHERE order_id = $1
	ORDER BY created_at DESC`

func (q *Queries) ListNotificationFailures(ctx context.Context, orderID uuid.UUID) ([]NotificationFailure, error) {
	rows, err := q.db.Query(ctx, listNotificationFailuresQuery, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []NotificationFailure
	for rows.Next() {
		nf, err := scanNotificationFailure(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, nf)
	}
	return failures, rows.Err()
}

const listRetryableNotificationFailuresQuery = `
	SELECT ` + notificationFailureColumns + ` FROM notification_failures
	WHERE attempts < $1
	ORDER BY last_attempt_at
	LIMIT $2`

type ListRetryableNotificationFailuresParams struct {
	MaxAttempts int32
	Limit       int32
}

func (q *Queries) ListRetryableNotificationFailures(ctx context.Context, arg ListRetryableNotificationFailuresParams) ([]NotificationFailure, error) {
	rows, err := q.db.Query(ctx, listRetryableNotificationFailuresQuery, arg.MaxAttempts, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []NotificationFailure
	for rows.Next() {
		nf, err := scanNotificationFailure(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, nf)
	}
	return failures, rows.Err()
}

const bumpNotificationAttemptQuery = `
	UPDATE notification_failures
	SET attempts = attempts + 1, error = $2, last_attempt_at = now()
	WHERE id = $1
	RETURNING ` + notificationFailureColumns

type BumpNotificationAttemptParams struct {
	ID    uuid.UUID
	Error string
}

func (q *Queries) BumpNotificationAttempt(ctx context.Context, arg BumpNotificationAttemptParams) (NotificationFailure, error) {
	return scanNotificationFailure(q.db.QueryRow(ctx, bumpNotificationAttemptQuery, arg.ID, arg.Error))
}

const deleteNotificationFailureQuery = `
	DELETE FROM notification_failures WHERE id = $1`

func (q *Queries) DeleteNotificationFailure(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteNotificationFailureQuery, id)
	return err
}

func scanNotificationFailure(row rowScanner) (NotificationFailure, error) {
	var nf NotificationFailure
	err := row.Scan(&nf.ID, &nf.OrderID, &nf.Kind, &nf.Recipient, &nf.Error,
		&nf.Attempts, &nf.CreatedAt, &nf.LastAttemptAt)
	return nf, err
}
