package database

import (
	"context"

	"github.com/google/uuid"
)

const getCompanyQuery = `
	SELECT id, name, default_margin_percent, created_at
	FROM companies WHERE id = $1`

func (q *Queries) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	var c Company
	err := q.db.QueryRow(ctx, getCompanyQuery, id).
		Scan(&c.ID, &c.Name, &c.DefaultMarginPercent, &c.CreatedAt)
	return c, err
}

const getServiceTypeQuery = `
	SELECT id, name, default_rate, active
	FROM service_types WHERE id = $1 AND active = true`

func (q *Queries) GetServiceType(ctx context.Context, id uuid.UUID) (ServiceType, error) {
	var st ServiceType
	err := q.db.QueryRow(ctx, getServiceTypeQuery, id).
		Scan(&st.ID, &st.Name, &st.DefaultRate, &st.Active)
	return st, err
}

const getTransportRateQuery = `
	SELECT id, city, trip_type, vehicle_type, final_rate
	FROM transport_rates
	WHERE city = $1 AND trip_type = $2 AND vehicle_type = $3`

type GetTransportRateParams struct {
	City        string
	TripType    string
	VehicleType string
}

func (q *Queries) GetTransportRate(ctx context.Context, arg GetTransportRateParams) (TransportRate, error) {
	var tr TransportRate
	err := q.db.QueryRow(ctx, getTransportRateQuery, arg.City, arg.TripType, arg.VehicleType).
		Scan(&tr.ID, &tr.City, &tr.TripType, &tr.VehicleType, &tr.FinalRate)
	return tr, err
}

const serviceRequestColumns = `id, order_id, kind, status, created_at, updated_at`

const createServiceRequestQuery = `
	INSERT INTO service_requests (order_id, kind)
	VALUES ($1, $2)
	RETURNING ` + serviceRequestColumns

type CreateServiceRequestParams struct {
	OrderID uuid.UUID
	Kind    string
}

func (q *Queries) CreateServiceRequest(ctx context.Context, arg CreateServiceRequestParams) (ServiceRequest, error) {
	return scanServiceRequest(q.db.QueryRow(ctx, createServiceRequestQuery, arg.OrderID, arg.Kind))
}

const listServiceRequestsQuery = `
	SELECT ` + serviceRequestColumns + ` FROM service_requests
	WHERE order_id = $1
	ORDER BY created_at`

func (q *Queries) ListServiceRequests(ctx context.Context, orderID uuid.UUID) ([]ServiceRequest, error) {
	rows, err := q.db.Query(ctx, listServiceRequestsQuery, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []ServiceRequest
	for rows.Next() {
		sr, err := scanServiceRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, sr)
	}
	return reqs, rows.Err()
}

const updateServiceRequestStatusQuery = `
	UPDATE service_requests
	SET status = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + serviceRequestColumns

type UpdateServiceRequestStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateServiceRequestStatus(ctx context.Context, arg UpdateServiceRequestStatusParams) (ServiceRequest, error) {
	return scanServiceRequest(q.db.QueryRow(ctx, updateServiceRequestStatusQuery, arg.ID, arg.Status))
}

// CountOpenServiceRequests counts requests still blocking fabrication.
const countOpenServiceRequestsQuery = `
	SELECT COUNT(*) FROM service_requests
	WHERE order_id = $1 AND status IN ('REQUESTED', 'IN_PROGRESS')`

func (q *Queries) CountOpenServiceRequests(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOpenServiceRequestsQuery, orderID).Scan(&n)
	return n, err
}

const countServiceRequestsQuery = `
	SELECT COUNT(*) FROM service_requests WHERE order_id = $1`

func (q *Queries) CountServiceRequests(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countServiceRequestsQuery, orderID).Scan(&n)
	return n, err
}

func scanServiceRequest(row rowScanner) (ServiceRequest, error) {
	var sr ServiceRequest
	err := row.Scan(&sr.ID, &sr.OrderID, &sr.Kind, &sr.Status, &sr.CreatedAt, &sr.UpdatedAt)
	return sr, err
}
