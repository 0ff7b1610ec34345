package service

import "errors"

// Errors returned by the order and line-item services. Handlers map these to
// HTTP statuses; none are retried here.
var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrOrderConflict           = errors.New("order changed concurrently, retry")
	ErrMissingTransportRate    = errors.New("no transport rate for route")
	ErrNoLineItems             = errors.New("at least one line item is required")
	ErrRedundantMarginOverride = errors.New("margin override equals current margin")
	ErrMissingOverrideReason   = errors.New("margin override requires a reason")
	ErrInvalidMarginPercent    = errors.New("margin percent must be in [0,100]")
	ErrInvalidReason           = errors.New("reason must be at least 10 characters")
	ErrEmptyReason             = errors.New("reason is required")
	ErrOrderNotEditable        = errors.New("order is not in a line-item-editable status")
	ErrItemNotFound            = errors.New("line item not found")
	ErrItemAlreadyVoided       = errors.New("line item already voided")
	ErrNoServiceRequests       = errors.New("order has no linked service requests")
	ErrServiceRequestsOpen     = errors.New("order has unfinished service requests")
	ErrMissingRoute            = errors.New("venue_city, trip_type and vehicle_type are required")
	ErrInvalidEventDate        = errors.New("invalid event_start_date")
	ErrInvalidQuantity         = errors.New("quantity must be > 0")
	ErrInvalidUnitRate         = errors.New("unit_rate must be >= 0")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrEmptyDescription        = errors.New("description is required")
	ErrServiceTypeNotFound     = errors.New("service type not found")
	ErrCompanyNotFound         = errors.New("company not found")
)
