package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/gearstage/ops-api/internal/auth"
	"github.com/gearstage/ops-api/internal/database"
	"github.com/gearstage/ops-api/internal/enum"
	"github.com/gearstage/ops-api/internal/handler"
	"github.com/gearstage/ops-api/internal/middleware"
	"github.com/gearstage/ops-api/internal/service"
)

const testJWTSecret = "test-secret"

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn            func(ctx context.Context, req service.CreateOrderRequest) (*service.TransitionResult, error)
	submitFn            func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	startReviewFn       func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	submitForApprovalFn func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	approveQuoteFn      func(ctx context.Context, orderID, actor uuid.UUID, override *service.MarginOverride) (*service.TransitionResult, error)
	declineQuoteFn      func(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error)
	returnToLogisticsFn func(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error)
	confirmFn           func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	scheduleFn          func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	completeFn          func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error)
	cancelFn            func(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.TransitionResult, error) {
	return m.createFn(ctx, req)
}
func (m *mockOrderService) Submit(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
	return m.submitFn(ctx, orderID, actor)
}
func (m *mockOrderService) StartReview(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
	return m.startReviewFn(ctx, orderID, actor)
}
func (m *mockOrderService) SubmitForApproval(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
	return m.submitForApprovalFn(ctx, orderID, actor)
}
func (m *mockOrderService) ApproveQuote(ctx context.Context, orderID, actor uuid.UUID, override *service.MarginOverride) (*service.TransitionResult, error) {
	return m.approveQuoteFn(ctx, orderID, actor, override)
}
func (m *mockOrderService) DeclineQuote(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error) {
	return m.declineQuoteFn(ctx, orderID, actor, reason)
}
func (m *mockOrderService) ReturnToLogistics(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error) {
	return m.returnToLogisticsFn(ctx, orderID, actor, reason)
}
func (m *mockOrderService) Confirm(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
	return m.confirmFn(ctx, orderID, actor)
}
func (m *mockOrderService) ScheduleFabrication(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
	return m.scheduleFn(ctx, orderID, actor)
}
func (m *mockOrderService) Complete(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
	return m.completeFn(ctx, orderID, actor)
}
func (m *mockOrderService) Cancel(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error) {
	return m.cancelFn(ctx, orderID, actor, reason)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	getOrderFn             func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOrdersFn           func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	getOrderPricingFn      func(ctx context.Context, orderID uuid.UUID) (database.OrderPricing, error)
	listLineItemsFn        func(ctx context.Context, orderID uuid.UUID) ([]database.LineItem, error)
	listOrderEventsFn      func(ctx context.Context, orderID uuid.UUID) ([]database.OrderEvent, error)
	listServiceRequestsFn  func(ctx context.Context, orderID uuid.UUID) ([]database.ServiceRequest, error)
	createServiceRequestFn func(ctx context.Context, arg database.CreateServiceRequestParams) (database.ServiceRequest, error)
	updateServiceRequestFn func(ctx context.Context, arg database.UpdateServiceRequestStatusParams) (database.ServiceRequest, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}
func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}
func (m *mockOrderStore) GetOrderPricing(ctx context.Context, orderID uuid.UUID) (database.OrderPricing, error) {
	if m.getOrderPricingFn != nil {
		return m.getOrderPricingFn(ctx, orderID)
	}
	return database.OrderPricing{}, pgx.ErrNoRows
}
func (m *mockOrderStore) ListLineItems(ctx context.Context, orderID uuid.UUID) ([]database.LineItem, error) {
	if m.listLineItemsFn != nil {
		return m.listLineItemsFn(ctx, orderID)
	}
	return []database.LineItem{}, nil
}
func (m *mockOrderStore) ListOrderEvents(ctx context.Context, orderID uuid.UUID) ([]database.OrderEvent, error) {
	if m.listOrderEventsFn != nil {
		return m.listOrderEventsFn(ctx, orderID)
	}
	return []database.OrderEvent{}, nil
}
func (m *mockOrderStore) ListServiceRequests(ctx context.Context, orderID uuid.UUID) ([]database.ServiceRequest, error) {
	if m.listServiceRequestsFn != nil {
		return m.listServiceRequestsFn(ctx, orderID)
	}
	return []database.ServiceRequest{}, nil
}
func (m *mockOrderStore) CreateServiceRequest(ctx context.Context, arg database.CreateServiceRequestParams) (database.ServiceRequest, error) {
	if m.createServiceRequestFn != nil {
		return m.createServiceRequestFn(ctx, arg)
	}
	return database.ServiceRequest{ID: uuid.New(), OrderID: arg.OrderID, Kind: arg.Kind, Status: enum.ServiceRequestStatusRequested}, nil
}
func (m *mockOrderStore) UpdateServiceRequestStatus(ctx context.Context, arg database.UpdateServiceRequestStatusParams) (database.ServiceRequest, error) {
	if m.updateServiceRequestFn != nil {
		return m.updateServiceRequestFn(ctx, arg)
	}
	return database.ServiceRequest{ID: arg.ID, Status: arg.Status}, nil
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func decimalFromString(t *testing.T, val string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(val)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", val, err)
	}
	return d
}

func sampleResult(orderID, companyID uuid.UUID, status string) *service.TransitionResult {
	return &service.TransitionResult{
		Order: database.Order{
			ID:           orderID,
			CompanyID:    companyID,
			Status:       status,
			VenueCity:    "Jakarta",
			TripType:     "ROUND_TRIP",
			VehicleType:  "TRUCK",
			BaseOpsTotal: makeNumeric("500.00"),
			Version:      2,
		},
		Pricing: database.OrderPricing{
			OrderID:       orderID,
			BaseOpsTotal:  makeNumeric("500.00"),
			TransportRate: makeNumeric("300.00"),
			CatalogTotal:  makeNumeric("120.00"),
			CustomTotal:   makeNumeric("0.00"),
			MarginPercent: makeNumeric("20.00"),
			MarginAmount:  makeNumeric("184.00"),
			Total:         makeNumeric("1104.00"),
			Version:       2,
		},
	}
}

func setupOrderRouter(svc handler.OrderServicer, store handler.OrderStore) http.Handler {
	h := handler.NewOrderHandler(svc, store, nil)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/orders", h.RegisterRoutes)
	return r
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.CompanyID, claims.Capabilities)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func adminClaims() *auth.Claims {
	return &auth.Claims{
		UserID:    uuid.New(),
		CompanyID: uuid.New(),
		Capabilities: []string{
			enum.CapPricingAdjust, enum.CapPricingAdminApprove,
			enum.CapCancel, enum.CapLineItemsManage,
		},
	}
}

func logisticsClaims() *auth.Claims {
	return &auth.Claims{
		UserID:       uuid.New(),
		CompanyID:    uuid.New(),
		Capabilities: []string{enum.CapPricingAdjust, enum.CapLineItemsManage},
	}
}

// --- Tests ---

func TestCreateOrder_Success(t *testing.T) {
	claims := logisticsClaims()
	orderID := uuid.New()
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.TransitionResult, error) {
			if req.CompanyID != claims.CompanyID {
				t.Errorf("expected company from claims, got %v", req.CompanyID)
			}
			return sampleResult(orderID, req.CompanyID, enum.OrderStatusDraft), nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"venue_city":     "Jakarta",
		"trip_type":      "ROUND_TRIP",
		"vehicle_type":   "TRUCK",
		"base_ops_total": "500.00",
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d, body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Pricing *struct {
			Total string `json:"total"`
		} `json:"pricing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != enum.OrderStatusDraft {
		t.Errorf("expected DRAFT, got %s", resp.Status)
	}
	if resp.Pricing == nil || resp.Pricing.Total != "1104.00" {
		t.Errorf("expected total 1104.00 in pricing, got %+v", resp.Pricing)
	}
}

func TestCreateOrder_ValidationMapsTo422(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.TransitionResult, error) {
			return nil, service.ErrMissingRoute
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{}, logisticsClaims())
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
}

func TestApprove_RequiresAdminCapability(t *testing.T) {
	svc := &mockOrderService{
		approveQuoteFn: func(ctx context.Context, orderID, actor uuid.UUID, override *service.MarginOverride) (*service.TransitionResult, error) {
			t.Fatal("service should not be reached without the capability")
			return nil, nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/admin-approve", nil, logisticsClaims())
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestApprove_WithOverride(t *testing.T) {
	claims := adminClaims()
	orderID := uuid.New()
	svc := &mockOrderService{
		approveQuoteFn: func(ctx context.Context, id, actor uuid.UUID, override *service.MarginOverride) (*service.TransitionResult, error) {
			if override == nil {
				t.Fatal("expected an override")
			}
			if !override.Percent.Equal(decimalFromString(t, "25.00")) {
				t.Errorf("expected 25.00 percent, got %s", override.Percent)
			}
			if override.Reason != "negotiated" {
				t.Errorf("expected reason 'negotiated', got %q", override.Reason)
			}
			return sampleResult(id, claims.CompanyID, enum.OrderStatusQuoted), nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+orderID.String()+"/admin-approve", map[string]interface{}{
		"margin_override_percent": "25.00",
		"margin_override_reason":  "negotiated",
	}, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestApprove_RedundantOverrideMapsTo422(t *testing.T) {
	svc := &mockOrderService{
		approveQuoteFn: func(ctx context.Context, id, actor uuid.UUID, override *service.MarginOverride) (*service.TransitionResult, error) {
			return nil, service.ErrRedundantMarginOverride
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/admin-approve", map[string]interface{}{
		"margin_override_percent": "20.00",
		"margin_override_reason":  "same margin",
	}, adminClaims())
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
}

func TestSubmit_InvalidTransitionMapsTo409(t *testing.T) {
	svc := &mockOrderService{
		submitFn: func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
			return nil, service.ErrInvalidStateTransition
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/submit", nil, logisticsClaims())
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestSubmit_ConflictMapsTo409(t *testing.T) {
	svc := &mockOrderService{
		submitFn: func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
			return nil, service.ErrOrderConflict
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/submit", nil, logisticsClaims())
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestSubmit_NotFoundMapsTo404(t *testing.T) {
	svc := &mockOrderService{
		submitFn: func(ctx context.Context, orderID, actor uuid.UUID) (*service.TransitionResult, error) {
			return nil, service.ErrOrderNotFound
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/submit", nil, logisticsClaims())
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCancel_RequiresCapability(t *testing.T) {
	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error) {
			t.Fatal("service should not be reached without the capability")
			return nil, nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/cancel", map[string]interface{}{
		"reason": "event called off",
	}, logisticsClaims())
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestCancel_EmptyReasonMapsTo422(t *testing.T) {
	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, orderID, actor uuid.UUID, reason string) (*service.TransitionResult, error) {
			return nil, service.ErrEmptyReason
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/cancel", nil, adminClaims())
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
}

func TestGetOrder_Detail(t *testing.T) {
	claims := logisticsClaims()
	orderID := uuid.New()
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			if id != orderID {
				return database.Order{}, pgx.ErrNoRows
			}
			return database.Order{
				ID:           orderID,
				CompanyID:    claims.CompanyID,
				Status:       enum.OrderStatusPricingReview,
				VenueCity:    "Jakarta",
				TripType:     "ROUND_TRIP",
				VehicleType:  "TRUCK",
				BaseOpsTotal: makeNumeric("500.00"),
				Version:      3,
			}, nil
		},
		getOrderPricingFn: func(ctx context.Context, id uuid.UUID) (database.OrderPricing, error) {
			return database.OrderPricing{OrderID: id, Total: makeNumeric("1104.00"), MarginPercent: makeNumeric("20.00")}, nil
		},
		listLineItemsFn: func(ctx context.Context, id uuid.UUID) ([]database.LineItem, error) {
			return []database.LineItem{
				{ID: uuid.New(), OrderID: id, Kind: enum.LineItemKindCatalog, Description: "Lighting operator", Quantity: 2, UnitRate: makeNumeric("60.00"), Amount: makeNumeric("120.00")},
			}, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	rr := doAuthRequest(t, router, "GET", "/orders/"+orderID.String(), nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp struct {
		Status    string `json:"status"`
		LineItems []struct {
			Amount string `json:"amount"`
		} `json:"line_items"`
		Pricing *struct {
			Total string `json:"total"`
		} `json:"pricing"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != enum.OrderStatusPricingReview {
		t.Errorf("expected PRICING_REVIEW, got %s", resp.Status)
	}
	if len(resp.LineItems) != 1 || resp.LineItems[0].Amount != "120.00" {
		t.Errorf("unexpected line items: %+v", resp.LineItems)
	}
	if resp.Pricing == nil || resp.Pricing.Total != "1104.00" {
		t.Errorf("unexpected pricing: %+v", resp.Pricing)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})

	rr := doAuthRequest(t, router, "GET", "/orders/"+uuid.New().String(), nil, logisticsClaims())
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListOrders_InvalidStatusFilter(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})

	rr := doAuthRequest(t, router, "GET", "/orders?status=BOGUS", nil, logisticsClaims())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListOrders_ScopedToOwnCompany(t *testing.T) {
	claims := logisticsClaims()
	otherCompany := uuid.New()
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			if !arg.CompanyID.Valid || uuid.UUID(arg.CompanyID.Bytes) != claims.CompanyID {
				t.Errorf("expected own-company filter, got %+v", arg.CompanyID)
			}
			return []database.Order{}, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	// Non-admins cannot list another company's orders.
	rr := doAuthRequest(t, router, "GET", "/orders?company_id="+otherCompany.String(), nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestCreateServiceRequest(t *testing.T) {
	claims := logisticsClaims()
	orderID := uuid.New()
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return database.Order{ID: orderID, Status: enum.OrderStatusConfirmed}, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	rr := doAuthRequest(t, router, "POST", "/orders/"+orderID.String()+"/service-requests", map[string]interface{}{
		"kind": "STAGE_FABRICATION",
	}, claims)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d, body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
}

func TestCreateServiceRequest_MissingKind(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/service-requests", map[string]interface{}{}, logisticsClaims())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
