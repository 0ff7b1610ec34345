package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/gearstage/ops-api/internal/database"
	"github.com/gearstage/ops-api/internal/enum"
	"github.com/gearstage/ops-api/internal/middleware"
	"github.com/gearstage/ops-api/internal/service"
	"github.com/gearstage/ops-api/internal/ws"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.TransitionResult, error)
	Submit(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	StartReview(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	SubmitForApproval(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	ApproveQuote(ctx context.Context, orderID, actor uuid.UUID, override *service.MarginOverride) (*service.TransitionResult, error)
	DeclineQuote(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error)
	ReturnToLogistics(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error)
	Confirm(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	ScheduleFabrication(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	Complete(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	Cancel(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	GetOrderPricing(ctx context.Context, orderID uuid.UUID) (database.OrderPricing, error)
	ListLineItems(ctx context.Context, orderID uuid.UUID) ([]database.LineItem, error)
	ListOrderEvents(ctx context.Context, orderID uuid.UUID) ([]database.OrderEvent, error)
	ListServiceRequests(ctx context.Context, orderID uuid.UUID) ([]database.ServiceRequest, error)
	CreateServiceRequest(ctx context.Context, arg database.CreateServiceRequestParams) (database.ServiceRequest, error)
	UpdateServiceRequestStatus(ctx context.Context, arg database.UpdateServiceRequestStatusParams) (database.ServiceRequest, error)
}

// Broadcaster pushes order events to connected review dashboards.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToCompany(companyID uuid.UUID, event ws.Event)
}

// OrderHandler handles order lifecycle endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
	hub   Broadcaster
}

// NewOrderHandler creates a new OrderHandler. hub may be nil in tests.
func NewOrderHandler(svc OrderServicer, store OrderStore, hub Broadcaster) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside an authenticated subrouter: /orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/events", h.ListEvents)

	r.Post("/{id}/submit", h.Submit)
	r.Post("/{id}/confirm", h.Confirm)

	r.With(middleware.RequireCapability(enum.CapPricingAdjust)).
		Post("/{id}/start-review", h.StartReview)
	r.With(middleware.RequireCapability(enum.CapPricingAdjust)).
		Post("/{id}/submit-for-approval", h.SubmitForApproval)
	r.With(middleware.RequireCapability(enum.CapPricingAdjust)).
		Post("/{id}/schedule-fabrication", h.ScheduleFabrication)
	r.With(middleware.RequireCapability(enum.CapPricingAdjust)).
		Post("/{id}/complete", h.Complete)

	r.With(middleware.RequireCapability(enum.CapPricingAdminApprove)).
		Post("/{id}/admin-approve", h.Approve)
	r.With(middleware.RequireCapability(enum.CapPricingAdminApprove)).
		Post("/{id}/decline", h.Decline)
	r.With(middleware.RequireCapability(enum.CapPricingAdminApprove)).
		Post("/{id}/return-to-logistics", h.ReturnToLogistics)

	r.With(middleware.RequireCapability(enum.CapCancel)).
		Post("/{id}/cancel", h.Cancel)

	r.Get("/{id}/service-requests", h.ListServiceRequests)
	r.With(middleware.RequireCapability(enum.CapPricingAdjust)).
		Post("/{id}/service-requests", h.CreateServiceRequest)
	r.With(middleware.RequireCapability(enum.CapPricingAdjust)).
		Patch("/{id}/service-requests/{rid}", h.UpdateServiceRequest)
}

// --- Request / Response types ---

type createOrderRequest struct {
	CompanyID      string `json:"company_id"`
	EventStartDate string `json:"event_start_date"`
	VenueLocation  string `json:"venue_location"`
	VenueCity      string `json:"venue_city"`
	TripType       string `json:"trip_type"`
	VehicleType    string `json:"vehicle_type"`
	BaseOpsTotal   string `json:"base_ops_total"`
}

type approveRequest struct {
	MarginPercent *string `json:"margin_override_percent"`
	Reason        string  `json:"margin_override_reason"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type createServiceRequestRequest struct {
	Kind string `json:"kind"`
}

type updateServiceRequestRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID             uuid.UUID        `json:"id"`
	CompanyID      uuid.UUID        `json:"company_id"`
	Status         string           `json:"status"`
	EventStartDate *time.Time       `json:"event_start_date"`
	VenueLocation  *string          `json:"venue_location"`
	VenueCity      string           `json:"venue_city"`
	TripType       string           `json:"trip_type"`
	VehicleType    string           `json:"vehicle_type"`
	BaseOpsTotal   string           `json:"base_ops_total"`
	Version        int64            `json:"version"`
	CreatedBy      uuid.UUID        `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Pricing        *pricingResponse `json:"pricing,omitempty"`
}

type pricingResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	BaseOpsTotal  string    `json:"base_ops_total"`
	TransportRate string    `json:"transport_rate"`
	CatalogTotal  string    `json:"catalog_total"`
	CustomTotal   string    `json:"custom_total"`
	MarginPercent string    `json:"margin_percent"`
	MarginAmount  string    `json:"margin_amount"`
	Total         string    `json:"total"`
	MarginLocked  bool      `json:"margin_locked"`
	Version       int64     `json:"version"`
	ComputedAt    time.Time `json:"computed_at"`
}

type lineItemResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	Kind          string    `json:"kind"`
	ServiceTypeID *string   `json:"service_type_id"`
	Description   string    `json:"description"`
	Quantity      int32     `json:"quantity"`
	UnitRate      string    `json:"unit_rate"`
	Amount        string    `json:"amount"`
	Voided        bool      `json:"voided"`
	VoidReason    *string   `json:"void_reason"`
	CreatedBy     uuid.UUID `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type orderEventResponse struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	EventType  string    `json:"event_type"`
	FromStatus *string   `json:"from_status"`
	ToStatus   *string   `json:"to_status"`
	Actor      *string   `json:"actor"`
	Reason     *string   `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

type serviceRequestResponse struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// orderDetailResponse extends orderResponse with the ledger for the GET
// detail endpoint.
type orderDetailResponse struct {
	orderResponse
	LineItems       []lineItemResponse       `json:"line_items"`
	ServiceRequests []serviceRequestResponse `json:"service_requests"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	companyID := claims.CompanyID
	if req.CompanyID != "" {
		parsed, err := uuid.Parse(req.CompanyID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
			return
		}
		companyID = parsed
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		CompanyID:      companyID,
		CreatedBy:      claims.UserID,
		EventStartDate: req.EventStartDate,
		VenueLocation:  req.VenueLocation,
		VenueCity:      req.VenueCity,
		TripType:       req.TripType,
		VehicleType:    req.VehicleType,
		BaseOpsTotal:   req.BaseOpsTotal,
	})
	if err != nil {
		writeServiceError(w, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(result))
}

// List handles GET /orders with optional status / company_id / limit / offset
// query parameters.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	params := database.ListOrdersParams{
		Limit:  50,
		Offset: 0,
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		params.Limit = int32(n)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		params.Offset = int32(n)
	}
	if v := r.URL.Query().Get("status"); v != "" {
		if !enum.ValidOrderStatus(v) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown status %q", v)})
			return
		}
		params.Status = pgtype.Text{String: v, Valid: true}
	}

	// Non-admins only see their own company's orders.
	companyID := claims.CompanyID
	if v := r.URL.Query().Get("company_id"); v != "" && claims.HasCapability(enum.CapPricingAdminApprove) {
		parsed, err := uuid.Parse(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
			return
		}
		companyID = parsed
	}
	params.CompanyID = pgtype.UUID{Bytes: companyID, Valid: true}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Limit:  int(params.Limit),
		Offset: int(params.Offset),
	}
	for i, o := range orders {
		resp.Orders[i] = toOrder(o, nil)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /orders/{id}: the order plus pricing, line items and
// service requests.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	detail := orderDetailResponse{
		orderResponse:   toOrder(order, nil),
		LineItems:       []lineItemResponse{},
		ServiceRequests: []serviceRequestResponse{},
	}

	if pricing, err := h.store.GetOrderPricing(r.Context(), orderID); err == nil {
		p := toPricing(pricing)
		detail.Pricing = &p
	}

	items, err := h.store.ListLineItems(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list line items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	for _, it := range items {
		detail.LineItems = append(detail.LineItems, toLineItem(it))
	}

	requests, err := h.store.ListServiceRequests(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list service requests: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	for _, sr := range requests {
		detail.ServiceRequests = append(detail.ServiceRequests, toServiceRequest(sr))
	}

	writeJSON(w, http.StatusOK, detail)
}

// ListEvents handles GET /orders/{id}/events.
func (h *OrderHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	events, err := h.store.ListOrderEvents(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order events: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderEventResponse, len(events))
	for i, ev := range events {
		resp[i] = toOrderEvent(ev)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Submit handles POST /orders/{id}/submit.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit order", h.svc.Submit)
}

// StartReview handles POST /orders/{id}/start-review.
func (h *OrderHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start review", h.svc.StartReview)
}

// SubmitForApproval handles POST /orders/{id}/submit-for-approval.
func (h *OrderHandler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit for approval", h.svc.SubmitForApproval)
}

// Approve handles POST /orders/{id}/admin-approve with an optional margin
// override.
func (h *OrderHandler) Approve(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req approveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	var override *service.MarginOverride
	if req.MarginPercent != nil {
		pct, err := decimal.NewFromString(*req.MarginPercent)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid margin_override_percent"})
			return
		}
		override = &service.MarginOverride{Percent: pct, Reason: req.Reason}
	}

	result, err := h.svc.ApproveQuote(r.Context(), orderID, claims.UserID, override)
	if err != nil {
		writeServiceError(w, "approve quote", err)
		return
	}

	h.broadcast(result)
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// Decline handles POST /orders/{id}/decline.
func (h *OrderHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.reasonTransition(w, r, "decline quote", h.svc.DeclineQuote)
}

// ReturnToLogistics handles POST /orders/{id}/return-to-logistics.
func (h *OrderHandler) ReturnToLogistics(w http.ResponseWriter, r *http.Request) {
	h.reasonTransition(w, r, "return to logistics", h.svc.ReturnToLogistics)
}

// Confirm handles POST /orders/{id}/confirm.
func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "confirm order", h.svc.Confirm)
}

// ScheduleFabrication handles POST /orders/{id}/schedule-fabrication.
func (h *OrderHandler) ScheduleFabrication(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "schedule fabrication", h.svc.ScheduleFabrication)
}

// Complete handles POST /orders/{id}/complete.
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "complete order", h.svc.Complete)
}

// Cancel handles POST /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.reasonTransition(w, r, "cancel order", h.svc.Cancel)
}

// ListServiceRequests handles GET /orders/{id}/service-requests.
func (h *OrderHandler) ListServiceRequests(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	requests, err := h.store.ListServiceRequests(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list service requests: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]serviceRequestResponse, len(requests))
	for i, sr := range requests {
		resp[i] = toServiceRequest(sr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateServiceRequest handles POST /orders/{id}/service-requests.
func (h *OrderHandler) CreateServiceRequest(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req createServiceRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind is required"})
		return
	}

	// The order must exist; FK violation otherwise.
	if _, err := h.store.GetOrder(r.Context(), orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	sr, err := h.store.CreateServiceRequest(r.Context(), database.CreateServiceRequestParams{
		OrderID: orderID,
		Kind:    req.Kind,
	})
	if err != nil {
		log.Printf("ERROR: create service request: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toServiceRequest(sr))
}

// UpdateServiceRequest handles PATCH /orders/{id}/service-requests/{rid}.
func (h *OrderHandler) UpdateServiceRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.orderID(w, r); !ok {
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid service request ID"})
		return
	}

	var req updateServiceRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	switch req.Status {
	case enum.ServiceRequestStatusRequested, enum.ServiceRequestStatusInProgress,
		enum.ServiceRequestStatusCompleted, enum.ServiceRequestStatusCancelled:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown status %q", req.Status)})
		return
	}

	sr, err := h.store.UpdateServiceRequestStatus(r.Context(), database.UpdateServiceRequestStatusParams{
		ID:     requestID,
		Status: req.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "service request not found"})
			return
		}
		log.Printf("ERROR: update service request: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toServiceRequest(sr))
}

// --- Helpers ---

func (h *OrderHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, false
	}
	return id, true
}

// transition runs a reason-less lifecycle action and writes the result.
func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	result, err := fn(r.Context(), orderID, claims.UserID)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	h.broadcast(result)
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// reasonTransition runs a lifecycle action that carries a mandatory reason.
func (h *OrderHandler) reasonTransition(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error)) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req reasonRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	result, err := fn(r.Context(), orderID, claims.UserID, req.Reason)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	h.broadcast(result)
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

func (h *OrderHandler) broadcast(result *service.TransitionResult) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":        result.Order.ID,
		"status":          result.Order.Status,
		"pricing_version": result.Pricing.Version,
		"total":           numericToString(result.Pricing.Total),
	})
	if err != nil {
		return
	}
	h.hub.BroadcastToCompany(result.Order.CompanyID, ws.Event{
		Type:    "order.status_changed",
		Payload: payload,
	})
}

func toOrderResponse(result *service.TransitionResult) orderResponse {
	p := toPricing(result.Pricing)
	return toOrder(result.Order, &p)
}

func toOrder(o database.Order, pricing *pricingResponse) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		CompanyID:    o.CompanyID,
		Status:       o.Status,
		VenueCity:    o.VenueCity,
		TripType:     o.TripType,
		VehicleType:  o.VehicleType,
		BaseOpsTotal: numericToString(o.BaseOpsTotal),
		Version:      o.Version,
		CreatedBy:    o.CreatedBy,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		Pricing:      pricing,
	}
	if o.EventStartDate.Valid {
		t := o.EventStartDate.Time
		resp.EventStartDate = &t
	}
	if o.VenueLocation.Valid {
		s := o.VenueLocation.String
		resp.VenueLocation = &s
	}
	return resp
}

func toPricing(p database.OrderPricing) pricingResponse {
	return pricingResponse{
		OrderID:       p.OrderID,
		BaseOpsTotal:  numericToString(p.BaseOpsTotal),
		TransportRate: numericToString(p.TransportRate),
		CatalogTotal:  numericToString(p.CatalogTotal),
		CustomTotal:   numericToString(p.CustomTotal),
		MarginPercent: numericToString(p.MarginPercent),
		MarginAmount:  numericToString(p.MarginAmount),
		Total:         numericToString(p.Total),
		MarginLocked:  p.MarginLocked,
		Version:       p.Version,
		ComputedAt:    p.ComputedAt,
	}
}

func toLineItem(it database.LineItem) lineItemResponse {
	resp := lineItemResponse{
		ID:          it.ID,
		OrderID:     it.OrderID,
		Kind:        it.Kind,
		Description: it.Description,
		Quantity:    it.Quantity,
		UnitRate:    numericToString(it.UnitRate),
		Amount:      numericToString(it.Amount),
		Voided:      it.Voided,
		CreatedBy:   it.CreatedBy,
		CreatedAt:   it.CreatedAt,
	}
	if it.ServiceTypeID.Valid {
		s := uuid.UUID(it.ServiceTypeID.Bytes).String()
		resp.ServiceTypeID = &s
	}
	if it.VoidReason.Valid {
		s := it.VoidReason.String
		resp.VoidReason = &s
	}
	return resp
}

func toOrderEvent(ev database.OrderEvent) orderEventResponse {
	resp := orderEventResponse{
		ID:        ev.ID,
		OrderID:   ev.OrderID,
		EventType: ev.EventType,
		CreatedAt: ev.CreatedAt,
	}
	if ev.FromStatus.Valid {
		s := ev.FromStatus.String
		resp.FromStatus = &s
	}
	if ev.ToStatus.Valid {
		s := ev.ToStatus.String
		resp.ToStatus = &s
	}
	if ev.Actor.Valid {
		s := uuid.UUID(ev.Actor.Bytes).String()
		resp.Actor = &s
	}
	if ev.Reason.Valid {
		s := ev.Reason.String
		resp.Reason = &s
	}
	return resp
}

func toServiceRequest(sr database.ServiceRequest) serviceRequestResponse {
	return serviceRequestResponse{
		ID:        sr.ID,
		OrderID:   sr.OrderID,
		Kind:      sr.Kind,
		Status:    sr.Status,
		CreatedAt: sr.CreatedAt,
		UpdatedAt: sr.UpdatedAt,
	}
}
