package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Company owns orders and carries the default profit margin applied when an
// order enters pricing review.
type Company struct {
	ID                   uuid.UUID
	Name                 string
	DefaultMarginPercent pgtype.Numeric
	CreatedAt            time.Time
}

// ServiceType is catalog reference data; default_rate is snapshotted onto
// catalog line items at insertion time.
type ServiceType struct {
	ID          uuid.UUID
	Name        string
	DefaultRate pgtype.Numeric
	Active      bool
}

// TransportRate is the final transport rate for a city/trip-type/vehicle-type
// route. Orders cannot be submitted for approval without a matching row.
type TransportRate struct {
	ID          uuid.UUID
	City        string
	TripType    string
	VehicleType string
	FinalRate   pgtype.Numeric
}

type Order struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	Status         string
	EventStartDate pgtype.Timestamptz
	VenueLocation  pgtype.Text
	VenueCity      string
	TripType       string
	VehicleType    string
	BaseOpsTotal   pgtype.Numeric
	Version        int64
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderPricing is the authoritative cost snapshot for one order, recomputed
// on every transition or line-item mutation. Version increases monotonically
// so readers can detect staleness.
type OrderPricing struct {
	OrderID       uuid.UUID
	BaseOpsTotal  pgtype.Numeric
	TransportRate pgtype.Numeric
	CatalogTotal  pgtype.Numeric
	CustomTotal   pgtype.Numeric
	MarginPercent pgtype.Numeric
	MarginAmount  pgtype.Numeric
	Total         pgtype.Numeric
	MarginLocked  bool
	Version       int64
	ComputedAt    time.Time
}

type LineItem struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Kind          string
	ServiceTypeID pgtype.UUID
	Description   string
	Quantity      int32
	UnitRate      pgtype.Numeric
	Amount        pgtype.Numeric
	Voided        bool
	VoidReason    pgtype.Text
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
}

// ServiceRequest is a linked fabrication/reskin job. All of an order's
// requests must complete before AWAITING_FABRICATION advances.
type ServiceRequest struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Kind      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderEvent is one audit-log row. Cancellation idempotency is defined as
// "no second CANCELLED event".
type OrderEvent struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	EventType  string
	FromStatus pgtype.Text
	ToStatus   pgtype.Text
	Actor      pgtype.UUID
	Reason     pgtype.Text
	CreatedAt  time.Time
}

// NotificationFailure records a failed quote/decline notification so it can
// be retried independently of the transition that triggered it.
type NotificationFailure struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Kind          string
	Recipient     string
	Error         string
	Attempts      int32
	CreatedAt     time.Time
	LastAttemptAt time.Time
}
