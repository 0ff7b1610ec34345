package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const pricingColumns = `order_id, base_ops_total, transport_rate, catalog_total,
	custom_total, margin_percent, margin_amount, total, margin_locked, version,
	computed_at`

const upsertOrderPricingQuery = `
	INSERT INTO order_pricing (order_id, base_ops_total, transport_rate,
		catalog_total, custom_total, margin_percent, margin_amount, total,
		margin_locked)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (order_id) DO UPDATE SET
		base_ops_total = EXCLUDED.base_ops_total,
		transport_rate = EXCLUDED.transport_rate,
		catalog_total = EXCLUDED.catalog_total,
		custom_total = EXCLUDED.custom_total,
		margin_percent = EXCLUDED.margin_percent,
		margin_amount = EXCLUDED.margin_amount,
		total = EXCLUDED.total,
		margin_locked = EXCLUDED.margin_locked,
		version = order_pricing.version + 1,
		computed_at = now()
	RETURNING ` + pricingColumns

type UpsertOrderPricingParams struct {
	OrderID       uuid.UUID
	BaseOpsTotal  pgtype.Numeric
	TransportRate pgtype.Numeric
	CatalogTotal  pgtype.Numeric
	CustomTotal   pgtype.Numeric
	MarginPercent pgtype.Numeric
	MarginAmount  pgtype.Numeric
	Total         pgtype.Numeric
	MarginLocked  bool
}

func (q *Queries) UpsertOrderPricing(ctx context.Context, arg UpsertOrderPricingParams) (OrderPricing, error) {
	row := q.db.QueryRow(ctx, upsertOrderPricingQuery,
		arg.OrderID, arg.BaseOpsTotal, arg.TransportRate, arg.CatalogTotal,
		arg.CustomTotal, arg.MarginPercent, arg.MarginAmount, arg.Total,
		arg.MarginLocked)
	return scanOrderPricing(row)
}

const getOrderPricingQuery = `SELECT ` + pricingColumns + ` FROM order_pricing WHERE order_id = $1`

func (q *Queries) GetOrderPricing(ctx context.Context, orderID uuid.UUID) (OrderPricing, error) {
	return scanOrderPricing(q.db.QueryRow(ctx, getOrderPricingQuery, orderID))
}

func scanOrderPricing(row rowScanner) (OrderPricing, error) {
	var p OrderPricing
	err := row.Scan(&p.OrderID, &p.BaseOpsTotal, &p.TransportRate,
		&p.CatalogTotal, &p.CustomTotal, &p.MarginPercent, &p.MarginAmount,
		&p.Total, &p.MarginLocked, &p.Version, &p.ComputedAt)
	return p, err
}
