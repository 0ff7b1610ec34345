package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, company_id, status, event_start_date, venue_location,
	venue_city, trip_type, vehicle_type, base_ops_total, version, created_by,
	created_at, updated_at`

const createOrderQuery = `
	INSERT INTO orders (company_id, event_start_date, venue_location, venue_city,
		trip_type, vehicle_type, base_ops_total, created_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + orderColumns

type CreateOrderParams struct {
	CompanyID      uuid.UUID
	EventStartDate pgtype.Timestamptz
	VenueLocation  pgtype.Text
	VenueCity      string
	TripType       string
	VehicleType    string
	BaseOpsTotal   pgtype.Numeric
	CreatedBy      uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrderQuery,
		arg.CompanyID, arg.EventStartDate, arg.VenueLocation, arg.VenueCity,
		arg.TripType, arg.VehicleType, arg.BaseOpsTotal, arg.CreatedBy)
	return scanOrder(row)
}

const getOrderQuery = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderQuery, id))
}

const listOrdersQuery = `
	SELECT ` + orderColumns + ` FROM orders
	WHERE ($1::uuid IS NULL OR company_id = $1)
	  AND ($2::text IS NULL OR status = $2)
	ORDER BY created_at DESC
	LIMIT $3 OFFSET $4`

type ListOrdersParams struct {
	CompanyID pgtype.UUID
	Status    pgtype.Text
	Limit     int32
	Offset    int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersQuery, arg.CompanyID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus moves an order between statuses with an optimistic guard:
// zero rows updated means the status changed under us (pgx.ErrNoRows surfaces
// from the RETURNING scan) and the caller must re-read and retry.
const updateOrderStatusQuery = `
	UPDATE orders
	SET status = $3, version = version + 1, updated_at = now()
	WHERE id = $1 AND status = $2
	RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID             uuid.UUID
	ExpectedStatus string
	Status         string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatusQuery, arg.ID, arg.ExpectedStatus, arg.Status)
	return scanOrder(row)
}

// ListFabricationReadyOrders returns AWAITING_FABRICATION orders whose linked
// service requests have all reached COMPLETED (cancelled requests do not
// block). Orders with no requests at all are excluded.
const listFabricationReadyQuery = `
	SELECT o.id FROM orders o
	WHERE o.status = 'AWAITING_FABRICATION'
	  AND EXISTS (
		SELECT 1 FROM service_requests sr WHERE sr.order_id = o.id)
	  AND NOT EXISTS (
		SELECT 1 FROM service_requests sr
		WHERE sr.order_id = o.id AND sr.status IN ('REQUESTED', 'IN_PROGRESS'))`

func (q *Queries) ListFabricationReadyOrders(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, listFabricationReadyQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CompanyID, &o.Status, &o.EventStartDate,
		&o.VenueLocation, &o.VenueCity, &o.TripType, &o.VehicleType,
		&o.BaseOpsTotal, &o.Version, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
