package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gearstage/ops-api/internal/database"
	"github.com/gearstage/ops-api/internal/enum"
)

// mockLineItemStore implements LineItemStore by reusing mockOrderStore for
// the shared pricing-path methods.
type mockLineItemStore struct {
	*mockOrderStore

	getServiceTypeFn func(ctx context.Context, id uuid.UUID) (database.ServiceType, error)
	createLineItemFn func(ctx context.Context, arg database.CreateLineItemParams) (database.LineItem, error)
	voidLineItemFn   func(ctx context.Context, arg database.VoidLineItemParams) (database.LineItem, error)
	getLineItemFn    func(ctx context.Context, arg database.GetLineItemParams) (database.LineItem, error)
}

func (m *mockLineItemStore) GetServiceType(ctx context.Context, id uuid.UUID) (database.ServiceType, error) {
	return m.getServiceTypeFn(ctx, id)
}
func (m *mockLineItemStore) CreateLineItem(ctx context.Context, arg database.CreateLineItemParams) (database.LineItem, error) {
	return m.createLineItemFn(ctx, arg)
}
func (m *mockLineItemStore) VoidLineItem(ctx context.Context, arg database.VoidLineItemParams) (database.LineItem, error) {
	return m.voidLineItemFn(ctx, arg)
}
func (m *mockLineItemStore) GetLineItem(ctx context.Context, arg database.GetLineItemParams) (database.LineItem, error) {
	return m.getLineItemFn(ctx, arg)
}

func defaultLedgerStore(order database.Order, serviceTypeID uuid.UUID) *mockLineItemStore {
	m := &mockLineItemStore{mockOrderStore: defaultStore(order)}
	m.getServiceTypeFn = func(ctx context.Context, id uuid.UUID) (database.ServiceType, error) {
		if id == serviceTypeID {
			return database.ServiceType{
				ID:          serviceTypeID,
				Name:        "Lighting operator",
				DefaultRate: makeNumeric("60.00"),
				Active:      true,
			}, nil
		}
		return database.ServiceType{}, pgx.ErrNoRows
	}
	m.createLineItemFn = func(ctx context.Context, arg database.CreateLineItemParams) (database.LineItem, error) {
		return database.LineItem{
			ID:            uuid.New(),
			OrderID:       arg.OrderID,
			Kind:          arg.Kind,
			ServiceTypeID: arg.ServiceTypeID,
			Description:   arg.Description,
			Quantity:      arg.Quantity,
			UnitRate:      arg.UnitRate,
			Amount:        arg.Amount,
			CreatedBy:     arg.CreatedBy,
		}, nil
	}
	m.voidLineItemFn = func(ctx context.Context, arg database.VoidLineItemParams) (database.LineItem, error) {
		return database.LineItem{}, pgx.ErrNoRows
	}
	m.getLineItemFn = func(ctx context.Context, arg database.GetLineItemParams) (database.LineItem, error) {
		return database.LineItem{}, pgx.ErrNoRows
	}
	return m
}

func newLedgerService(store *mockLineItemStore) *LineItemService {
	pool := &mockTxBeginner{tx: &mockTx{}}
	orders := NewOrderService(pool, func(db database.DBTX) OrderStore { return store.mockOrderStore }, nil)
	return NewLineItemService(pool, func(db database.DBTX) LineItemStore { return store }, orders)
}

func TestAddCatalogItem_SnapshotsRate(t *testing.T) {
	order := baseOrder(enum.OrderStatusPricingReview)
	serviceTypeID := uuid.New()
	store := defaultLedgerStore(order, serviceTypeID)
	svc := newLedgerService(store)

	res, err := svc.AddCatalogItem(context.Background(), order.ID, uuid.New(), serviceTypeID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Item.Kind != enum.LineItemKindCatalog {
		t.Errorf("expected CATALOG item, got %s", res.Item.Kind)
	}
	if !numericEquals(res.Item.UnitRate, "60.00") {
		t.Errorf("expected snapshotted rate 60.00, got %v", numericToDecimal(res.Item.UnitRate))
	}
	if !numericEquals(res.Item.Amount, "120.00") {
		t.Errorf("expected amount 120.00, got %v", numericToDecimal(res.Item.Amount))
	}
	// The mutation must recompute the snapshot in the same transaction.
	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 pricing upsert, got %d", len(store.upserts))
	}
	if len(store.events) != 1 || store.events[0].EventType != enum.EventLineItemAdded {
		t.Errorf("expected a LINE_ITEM_ADDED event, got %+v", store.events)
	}
}

func TestAddCatalogItem_ZeroQuantity(t *testing.T) {
	order := baseOrder(enum.OrderStatusPricingReview)
	svc := newLedgerService(defaultLedgerStore(order, uuid.New()))

	_, err := svc.AddCatalogItem(context.Background(), order.ID, uuid.New(), uuid.New(), 0)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestAddCatalogItem_UnknownServiceType(t *testing.T) {
	order := baseOrder(enum.OrderStatusPricingReview)
	svc := newLedgerService(defaultLedgerStore(order, uuid.New()))

	_, err := svc.AddCatalogItem(context.Background(), order.ID, uuid.New(), uuid.New(), 1)
	if !errors.Is(err, ErrServiceTypeNotFound) {
		t.Fatalf("expected ErrServiceTypeNotFound, got: %v", err)
	}
}

func TestAddCatalogItem_OrderNotEditable(t *testing.T) {
	statuses := []string{
		enum.OrderStatusDraft, enum.OrderStatusSubmitted, enum.OrderStatusQuoted,
		enum.OrderStatusConfirmed, enum.OrderStatusCompleted, enum.OrderStatusCancelled,
	}
	serviceTypeID := uuid.New()
	for _, status := range statuses {
		order := baseOrder(status)
		svc := newLedgerService(defaultLedgerStore(order, serviceTypeID))

		_, err := svc.AddCatalogItem(context.Background(), order.ID, uuid.New(), serviceTypeID, 1)
		if !errors.Is(err, ErrOrderNotEditable) {
			t.Errorf("status %s: expected ErrOrderNotEditable, got: %v", status, err)
		}
	}
}

func TestAddCustomItem_Succeeds(t *testing.T) {
	order := baseOrder(enum.OrderStatusPendingApproval)
	store := defaultLedgerStore(order, uuid.New())
	svc := newLedgerService(store)

	res, err := svc.AddCustomItem(context.Background(), order.ID, uuid.New(), "Generator fuel surcharge", 3, "45.50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Item.Kind != enum.LineItemKindCustom {
		t.Errorf("expected CUSTOM item, got %s", res.Item.Kind)
	}
	if !numericEquals(res.Item.Amount, "136.50") {
		t.Errorf("expected amount 136.50, got %v", numericToDecimal(res.Item.Amount))
	}
}

func TestAddCustomItem_Validation(t *testing.T) {
	order := baseOrder(enum.OrderStatusPricingReview)
	svc := newLedgerService(defaultLedgerStore(order, uuid.New()))
	actor := uuid.New()

	if _, err := svc.AddCustomItem(context.Background(), order.ID, actor, "  ", 1, "10.00"); !errors.Is(err, ErrEmptyDescription) {
		t.Errorf("expected ErrEmptyDescription, got: %v", err)
	}
	if _, err := svc.AddCustomItem(context.Background(), order.ID, actor, "crew meals", 0, "10.00"); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got: %v", err)
	}
	if _, err := svc.AddCustomItem(context.Background(), order.ID, actor, "crew meals", 1, "-5.00"); !errors.Is(err, ErrInvalidUnitRate) {
		t.Errorf("expected ErrInvalidUnitRate, got: %v", err)
	}
	if _, err := svc.AddCustomItem(context.Background(), order.ID, actor, "crew meals", 1, "abc"); !errors.Is(err, ErrInvalidUnitRate) {
		t.Errorf("expected ErrInvalidUnitRate, got: %v", err)
	}
}

func TestVoidItem_Succeeds(t *testing.T) {
	order := baseOrder(enum.OrderStatusPricingReview)
	itemID := uuid.New()
	store := defaultLedgerStore(order, uuid.New())
	store.voidLineItemFn = func(ctx context.Context, arg database.VoidLineItemParams) (database.LineItem, error) {
		return database.LineItem{
			ID:         arg.ID,
			OrderID:    arg.OrderID,
			Kind:       enum.LineItemKindCustom,
			Voided:     true,
			VoidReason: textOrNull(arg.Reason),
		}, nil
	}
	svc := newLedgerService(store)

	res, err := svc.VoidItem(context.Background(), order.ID, uuid.New(), itemID, "duplicate entry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Item.Voided {
		t.Error("expected item marked voided")
	}
	if len(store.events) != 1 || store.events[0].EventType != enum.EventLineItemVoided {
		t.Errorf("expected a LINE_ITEM_VOIDED event, got %+v", store.events)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 pricing upsert after void, got %d", len(store.upserts))
	}
}

func TestVoidItem_EmptyReason(t *testing.T) {
	order := baseOrder(enum.OrderStatusPricingReview)
	svc := newLedgerService(defaultLedgerStore(order, uuid.New()))

	_, err := svc.VoidItem(context.Background(), order.ID, uuid.New(), uuid.New(), "")
	if !errors.Is(err, ErrEmptyReason) {
		t.Fatalf("expected ErrEmptyReason, got: %v", err)
	}
}

func TestVoidItem_AlreadyVoided(t *testing.T) {
	order := baseOrder(enum.OrderStatusPricingReview)
	itemID := uuid.New()
	store := defaultLedgerStore(order, uuid.New())
	store.getLineItemFn = func(ctx context.Context, arg database.GetLineItemParams) (database.LineItem, error) {
		if arg.ID == itemID {
			return database.LineItem{ID: itemID, OrderID: order.ID, Voided: true}, nil
		}
		return database.LineItem{}, pgx.ErrNoRows
	}
	svc := newLedgerService(store)

	_, err := svc.VoidItem(context.Background(), order.ID, uuid.New(), itemID, "voiding twice")
	if !errors.Is(err, ErrItemAlreadyVoided) {
		t.Fatalf("expected ErrItemAlreadyVoided, got: %v", err)
	}
	if len(store.events) != 0 {
		t.Errorf("expected no event on repeat void, got %d", len(store.events))
	}
}

func TestVoidItem_NotFound(t *testing.T) {
	order := baseOrder(enum.OrderStatusPricingReview)
	svc := newLedgerService(defaultLedgerStore(order, uuid.New()))

	_, err := svc.VoidItem(context.Background(), order.ID, uuid.New(), uuid.New(), "ghost item")
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}
}
