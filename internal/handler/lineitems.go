package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gearstage/ops-api/internal/auth"
	"github.com/gearstage/ops-api/internal/middleware"
	"github.com/gearstage/ops-api/internal/service"
	"github.com/gearstage/ops-api/internal/ws"
)

// LineItemServicer defines the service methods needed by the ledger handlers.
// Satisfied by *service.LineItemService.
type LineItemServicer interface {
	AddCatalogItem(ctx context.Context, orderID, actor, serviceTypeID uuid.UUID, quantity int32) (*service.LineItemResult, error)
	AddCustomItem(ctx context.Context, orderID, actor uuid.UUID, description string, quantity int32, unitRate string) (*service.LineItemResult, error)
	VoidItem(ctx context.Context, orderID, actor, itemID uuid.UUID, reason string) (*service.LineItemResult, error)
}

// LineItemHandler handles the order line-item ledger endpoints.
type LineItemHandler struct {
	svc LineItemServicer
	hub Broadcaster
}

// NewLineItemHandler creates a new LineItemHandler. hub may be nil in tests.
func NewLineItemHandler(svc LineItemServicer, hub Broadcaster) *LineItemHandler {
	return &LineItemHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers ledger endpoints on the given Chi router.
// Expected to be mounted inside an authenticated subrouter:
// /orders/{id}/line-items
func (h *LineItemHandler) RegisterRoutes(r chi.Router) {
	r.Post("/catalog", h.AddCatalog)
	r.Post("/custom", h.AddCustom)
	r.Delete("/{itemID}", h.Void)
}

type addCatalogItemRequest struct {
	ServiceTypeID string `json:"service_type_id"`
	Quantity      int32  `json:"quantity"`
}

type addCustomItemRequest struct {
	Description string `json:"description"`
	Quantity    int32  `json:"quantity"`
	UnitRate    string `json:"unit_rate"`
}

type voidItemRequest struct {
	Reason string `json:"reason"`
}

type lineItemMutationResponse struct {
	Item    lineItemResponse `json:"item"`
	Pricing pricingResponse  `json:"pricing"`
}

// AddCatalog handles POST /orders/{id}/line-items/catalog.
func (h *LineItemHandler) AddCatalog(w http.ResponseWriter, r *http.Request) {
	orderID, claims, ok := ledgerContext(w, r)
	if !ok {
		return
	}

	var req addCatalogItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	serviceTypeID, err := uuid.Parse(req.ServiceTypeID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid service type ID"})
		return
	}

	result, err := h.svc.AddCatalogItem(r.Context(), orderID, claims.UserID, serviceTypeID, req.Quantity)
	if err != nil {
		writeServiceError(w, "add catalog item", err)
		return
	}

	h.broadcastPricing(orderID, result)
	writeJSON(w, http.StatusCreated, toLineItemMutation(result))
}

// AddCustom handles POST /orders/{id}/line-items/custom.
func (h *LineItemHandler) AddCustom(w http.ResponseWriter, r *http.Request) {
	orderID, claims, ok := ledgerContext(w, r)
	if !ok {
		return
	}

	var req addCustomItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.AddCustomItem(r.Context(), orderID, claims.UserID, req.Description, req.Quantity, req.UnitRate)
	if err != nil {
		writeServiceError(w, "add custom item", err)
		return
	}

	h.broadcastPricing(orderID, result)
	writeJSON(w, http.StatusCreated, toLineItemMutation(result))
}

// Void handles DELETE /orders/{id}/line-items/{itemID}. Items are soft-voided,
// never removed.
func (h *LineItemHandler) Void(w http.ResponseWriter, r *http.Request) {
	orderID, claims, ok := ledgerContext(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line item ID"})
		return
	}

	var req voidItemRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	result, err := h.svc.VoidItem(r.Context(), orderID, claims.UserID, itemID, req.Reason)
	if err != nil {
		writeServiceError(w, "void line item", err)
		return
	}

	h.broadcastPricing(orderID, result)
	writeJSON(w, http.StatusOK, toLineItemMutation(result))
}

func (h *LineItemHandler) broadcastPricing(orderID uuid.UUID, result *service.LineItemResult) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":        orderID,
		"pricing_version": result.Pricing.Version,
		"total":           numericToString(result.Pricing.Total),
	})
	if err != nil {
		return
	}
	h.hub.BroadcastToCompany(result.Order.CompanyID, ws.Event{
		Type:    "order.pricing_updated",
		Payload: payload,
	})
}

func ledgerContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, *auth.Claims, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, nil, false
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return uuid.Nil, nil, false
	}
	return orderID, claims, true
}

func toLineItemMutation(result *service.LineItemResult) lineItemMutationResponse {
	return lineItemMutationResponse{
		Item:    toLineItem(result.Item),
		Pricing: toPricing(result.Pricing),
	}
}
