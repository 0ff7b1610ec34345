package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gearstage/ops-api/internal/database"
	"github.com/gearstage/ops-api/internal/notify"
)

// NotificationRetrier defines the notify methods needed by the handlers.
// Satisfied by *notify.Service.
type NotificationRetrier interface {
	Retry(ctx context.Context, failureID uuid.UUID) error
}

// NotificationStore defines the database methods needed by the failure
// listing endpoint. Satisfied by *database.Queries.
type NotificationStore interface {
	ListNotificationFailures(ctx context.Context, orderID uuid.UUID) ([]database.NotificationFailure, error)
}

// NotificationHandler exposes the failed-notification backlog and manual
// retries.
type NotificationHandler struct {
	svc   NotificationRetrier
	store NotificationStore
}

func NewNotificationHandler(svc NotificationRetrier, store NotificationStore) *NotificationHandler {
	return &NotificationHandler{svc: svc, store: store}
}

// RegisterRoutes registers the retry endpoint on the given Chi router.
// The per-order failure listing hangs off the orders subrouter instead; see
// RegisterOrderRoutes.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notification-failures/{id}/retry", h.Retry)
}

// RegisterOrderRoutes registers the order-scoped listing. Expected to be
// mounted inside the /orders subrouter.
func (h *NotificationHandler) RegisterOrderRoutes(r chi.Router) {
	r.Get("/{id}/notification-failures", h.ListForOrder)
}

type notificationFailureResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	Kind          string    `json:"kind"`
	Recipient     string    `json:"recipient"`
	Error         string    `json:"error"`
	Attempts      int32     `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

// ListForOrder handles GET /orders/{id}/notification-failures.
func (h *NotificationHandler) ListForOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	failures, err := h.store.ListNotificationFailures(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list notification failures: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]notificationFailureResponse, len(failures))
	for i, f := range failures {
		resp[i] = notificationFailureResponse{
			ID:            f.ID,
			OrderID:       f.OrderID,
			Kind:          f.Kind,
			Recipient:     f.Recipient,
			Error:         f.Error,
			Attempts:      f.Attempts,
			CreatedAt:     f.CreatedAt,
			LastAttemptAt: f.LastAttemptAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Retry handles POST /notification-failures/{id}/retry. A successful resend
// deletes the failure row; another failure bumps its attempt count.
func (h *NotificationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	failureID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid failure ID"})
		return
	}

	if err := h.svc.Retry(r.Context(), failureID); err != nil {
		if errors.Is(err, notify.ErrFailureNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "notification failure not found"})
			return
		}
		// The resend itself failed; the row stays queued with a bumped
		// attempt count.
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "notification delivery failed"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
