package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const lineItemColumns = `id, order_id, kind, service_type_id, description,
	quantity, unit_rate, amount, voided, void_reason, created_by, created_at`

const createLineItemQuery = `
	INSERT INTO line_items (order_id, kind, service_type_id, description,
		quantity, unit_rate, amount, created_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + lineItemColumns

type CreateLineItemParams struct {
	OrderID       uuid.UUID
	Kind          string
	ServiceTypeID pgtype.UUID
	Description   string
	Quantity      int32
	UnitRate      pgtype.Numeric
	Amount        pgtype.Numeric
	CreatedBy     uuid.UUID
}

func (q *Queries) CreateLineItem(ctx context.Context, arg CreateLineItemParams) (LineItem, error) {
	row := q.db.QueryRow(ctx, createLineItemQuery,
		arg.OrderID, arg.Kind, arg.ServiceTypeID, arg.Description,
		arg.Quantity, arg.UnitRate, arg.Amount, arg.CreatedBy)
	return scanLineItem(row)
}

const getLineItemQuery = `
	SELECT ` + lineItemColumns + ` FROM line_items
	WHERE id = $1 AND order_id = $2`

type GetLineItemParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
}

func (q *Queries) GetLineItem(ctx context.Context, arg GetLineItemParams) (LineItem, error) {
	return scanLineItem(q.db.QueryRow(ctx, getLineItemQuery, arg.ID, arg.OrderID))
}

const listLineItemsQuery = `
	SELECT ` + lineItemColumns + ` FROM line_items
	WHERE order_id = $1
	ORDER BY created_at`

func (q *Queries) ListLineItems(ctx context.Context, orderID uuid.UUID) ([]LineItem, error) {
	rows, err := q.db.Query(ctx, listLineItemsQuery, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// VoidLineItem soft-voids an item. The voided = false guard makes the query
// report pgx.ErrNoRows when the item was already voided, which the service
// maps to its idempotency error.
const voidLineItemQuery = `
	UPDATE line_items
	SET voided = true, void_reason = $3
	WHERE id = $1 AND order_id = $2 AND voided = false
	RETURNING ` + lineItemColumns

type VoidLineItemParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
	Reason  string
}

func (q *Queries) VoidLineItem(ctx context.Context, arg VoidLineItemParams) (LineItem, error) {
	return scanLineItem(q.db.QueryRow(ctx, voidLineItemQuery, arg.ID, arg.OrderID, arg.Reason))
}

// SumLineItems totals non-voided items per kind.
const sumLineItemsQuery = `
	SELECT
		COALESCE(SUM(amount) FILTER (WHERE kind = 'CATALOG'), 0)::numeric(12,2),
		COALESCE(SUM(amount) FILTER (WHERE kind = 'CUSTOM'), 0)::numeric(12,2)
	FROM line_items
	WHERE order_id = $1 AND voided = false`

type SumLineItemsRow struct {
	CatalogTotal pgtype.Numeric
	CustomTotal  pgtype.Numeric
}

func (q *Queries) SumLineItems(ctx context.Context, orderID uuid.UUID) (SumLineItemsRow, error) {
	var r SumLineItemsRow
	err := q.db.QueryRow(ctx, sumLineItemsQuery, orderID).Scan(&r.CatalogTotal, &r.CustomTotal)
	return r, err
}

const countActiveLineItemsQuery = `
	SELECT COUNT(*) FROM line_items WHERE order_id = $1 AND voided = false`

func (q *Queries) CountActiveLineItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countActiveLineItemsQuery, orderID).Scan(&n)
	return n, err
}

func scanLineItem(row rowScanner) (LineItem, error) {
	var li LineItem
	err := row.Scan(&li.ID, &li.OrderID, &li.Kind, &li.ServiceTypeID,
		&li.Description, &li.Quantity, &li.UnitRate, &li.Amount, &li.Voided,
		&li.VoidReason, &li.CreatedBy, &li.CreatedAt)
	return li, err
}
