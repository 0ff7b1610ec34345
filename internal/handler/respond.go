package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/gearstage/ops-api/internal/pricing"
	"github.com/gearstage/ops-api/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service-layer errors onto HTTP statuses:
// not-found -> 404, state-machine violations and write races -> 409,
// input validation -> 422, everything else -> 500 with a log line.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case isNotFoundError(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order changed, please retry"})
	case errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrOrderNotEditable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case isValidationError(err):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, pricing.ErrInvalidPricingInput):
		// Caller bug upstream; never reachable through correct state-machine
		// usage.
		log.Printf("FATAL-CLASS: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func isNotFoundError(err error) bool {
	return errors.Is(err, service.ErrOrderNotFound) ||
		errors.Is(err, service.ErrItemNotFound) ||
		errors.Is(err, service.ErrCompanyNotFound) ||
		errors.Is(err, service.ErrServiceTypeNotFound)
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrMissingTransportRate) ||
		errors.Is(err, service.ErrNoLineItems) ||
		errors.Is(err, service.ErrRedundantMarginOverride) ||
		errors.Is(err, service.ErrMissingOverrideReason) ||
		errors.Is(err, service.ErrInvalidMarginPercent) ||
		errors.Is(err, service.ErrInvalidReason) ||
		errors.Is(err, service.ErrEmptyReason) ||
		errors.Is(err, service.ErrItemAlreadyVoided) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidUnitRate) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrEmptyDescription) ||
		errors.Is(err, service.ErrMissingRoute) ||
		errors.Is(err, service.ErrInvalidEventDate) ||
		errors.Is(err, service.ErrNoServiceRequests) ||
		errors.Is(err, service.ErrServiceRequestsOpen)
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
