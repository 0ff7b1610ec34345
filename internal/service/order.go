package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/gearstage/ops-api/internal/database"
	"github.com/gearstage/ops-api/internal/enum"
	"github.com/gearstage/ops-api/internal/pricing"
)

const minReasonLength = 10

// marginEpsilon is the smallest margin-percent change an override may carry.
// An override that changes nothing is rejected as redundant.
var marginEpsilon = decimal.New(1, -4)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the state machine needs.
// Satisfied by *database.Queries (pool- or tx-bound).
type OrderStore interface {
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	ListFabricationReadyOrders(ctx context.Context) ([]uuid.UUID, error)
	GetCompany(ctx context.Context, id uuid.UUID) (database.Company, error)
	GetTransportRate(ctx context.Context, arg database.GetTransportRateParams) (database.TransportRate, error)
	GetOrderPricing(ctx context.Context, orderID uuid.UUID) (database.OrderPricing, error)
	UpsertOrderPricing(ctx context.Context, arg database.UpsertOrderPricingParams) (database.OrderPricing, error)
	SumLineItems(ctx context.Context, orderID uuid.UUID) (database.SumLineItemsRow, error)
	CountActiveLineItems(ctx context.Context, orderID uuid.UUID) (int64, error)
	CountServiceRequests(ctx context.Context, orderID uuid.UUID) (int64, error)
	CountOpenServiceRequests(ctx context.Context, orderID uuid.UUID) (int64, error)
	CreateOrderEvent(ctx context.Context, arg database.CreateOrderEventParams) (database.OrderEvent, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx), so the
// service can bind store instances to its own transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// Dispatcher sends order notifications fire-and-forget after a transition
// commits. Implemented by the notify service.
type Dispatcher interface {
	Dispatch(orderID, companyID uuid.UUID, kind string)
}

// OrderService is the order state machine. Every mutation runs under the
// per-order lock and an optimistic status guard in SQL, so two concurrent
// approvals can never both succeed.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	notifier Dispatcher
	locks    *orderLocks
}

func NewOrderService(pool TxBeginner, newStore NewOrderStore, notifier Dispatcher) *OrderService {
	return &OrderService{
		pool:     pool,
		newStore: newStore,
		notifier: notifier,
		locks:    newOrderLocks(),
	}
}

// CreateOrderRequest is the validated input for creating a draft order.
type CreateOrderRequest struct {
	CompanyID      uuid.UUID
	CreatedBy      uuid.UUID
	EventStartDate string // RFC3339, optional
	VenueLocation  string
	VenueCity      string
	TripType       string
	VehicleType    string
	BaseOpsTotal   string
}

// MarginOverride is an admin-supplied replacement for the order's effective
// margin, applied at approval time only.
type MarginOverride struct {
	Percent decimal.Decimal
	Reason  string
}

// TransitionResult is the server-authoritative snapshot returned by every
// mutation: the updated order plus its recomputed pricing, so callers never
// recompute client-side.
type TransitionResult struct {
	Order   database.Order
	Pricing database.OrderPricing
}

// allowedTransitions is the full lifecycle graph. CANCELLED is reachable from
// every non-terminal status.
var allowedTransitions = map[string][]string{
	enum.OrderStatusDraft:               {enum.OrderStatusSubmitted, enum.OrderStatusCancelled},
	enum.OrderStatusSubmitted:           {enum.OrderStatusPricingReview, enum.OrderStatusCancelled},
	enum.OrderStatusPricingReview:       {enum.OrderStatusPendingApproval, enum.OrderStatusCancelled},
	enum.OrderStatusPendingApproval:     {enum.OrderStatusQuoted, enum.OrderStatusPricingReview, enum.OrderStatusDeclined, enum.OrderStatusCancelled},
	enum.OrderStatusQuoted:              {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed:           {enum.OrderStatusAwaitingFabrication, enum.OrderStatusCancelled},
	enum.OrderStatusAwaitingFabrication: {enum.OrderStatusInPreparation, enum.OrderStatusCancelled},
	enum.OrderStatusInPreparation:       {enum.OrderStatusCompleted, enum.OrderStatusCancelled},
}

func transitionAllowed(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CreateOrder creates a DRAFT order and seeds its pricing snapshot with the
// company default margin.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*TransitionResult, error) {
	if req.VenueCity == "" || req.TripType == "" || req.VehicleType == "" {
		return nil, ErrMissingRoute
	}

	baseOps := decimal.Zero
	if req.BaseOpsTotal != "" {
		d, err := decimal.NewFromString(req.BaseOpsTotal)
		if err != nil || d.IsNegative() {
			return nil, fmt.Errorf("%w: base_ops_total %q", ErrInvalidAmount, req.BaseOpsTotal)
		}
		baseOps = d
	}

	eventStart := pgtype.Timestamptz{}
	if req.EventStartDate != "" {
		t, err := time.Parse(time.RFC3339, req.EventStartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEventDate, err)
		}
		eventStart = pgtype.Timestamptz{Time: t, Valid: true}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	company, err := store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("get company: %w", err)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		CompanyID:      req.CompanyID,
		EventStartDate: eventStart,
		VenueLocation:  textOrNull(req.VenueLocation),
		VenueCity:      req.VenueCity,
		TripType:       req.TripType,
		VehicleType:    req.VehicleType,
		BaseOpsTotal:   decimalToNumeric(baseOps),
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	p, err := s.recomputePricing(ctx, store, order, numericToDecimal(company.DefaultMarginPercent), false)
	if err != nil {
		return nil, err
	}

	if _, err := store.CreateOrderEvent(ctx, database.CreateOrderEventParams{
		OrderID:   order.ID,
		EventType: enum.EventStatusChanged,
		ToStatus:  textOrNull(order.Status),
		Actor:     uuidOrNull(req.CreatedBy),
	}); err != nil {
		return nil, fmt.Errorf("record order event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &TransitionResult{Order: order, Pricing: p}, nil
}

// Submit moves DRAFT -> SUBMITTED.
func (s *OrderService) Submit(ctx context.Context, orderID, actor uuid.UUID) (*TransitionResult, error) {
	return s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusDraft {
			return nil, transitionError(order.Status, enum.OrderStatusSubmitted)
		}
		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusSubmitted, actor, "")
		if err != nil {
			return nil, err
		}
		p, err := fetchPricing(ctx, store, orderID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
}

// StartReview moves SUBMITTED -> PRICING_REVIEW and reseeds the pricing
// snapshot from the company default margin.
func (s *OrderService) StartReview(ctx context.Context, orderID, actor uuid.UUID) (*TransitionResult, error) {
	return s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusSubmitted {
			return nil, transitionError(order.Status, enum.OrderStatusPricingReview)
		}

		company, err := store.GetCompany(ctx, order.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("get company: %w", err)
		}
		p, err := s.recomputePricing(ctx, store, order, numericToDecimal(company.DefaultMarginPercent), false)
		if err != nil {
			return nil, err
		}

		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusPricingReview, actor, "")
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
}

// SubmitForApproval moves PRICING_REVIEW -> PENDING_APPROVAL. The order must
// carry at least one non-voided line item and a transport rate must exist for
// its route; the pricing snapshot is recomputed before the transition.
func (s *OrderService) SubmitForApproval(ctx context.Context, orderID, actor uuid.UUID) (*TransitionResult, error) {
	return s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusPricingReview {
			return nil, transitionError(order.Status, enum.OrderStatusPendingApproval)
		}

		count, err := store.CountActiveLineItems(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("count line items: %w", err)
		}
		if count == 0 {
			return nil, ErrNoLineItems
		}

		// The route context is part of the error so the caller can create
		// the missing rate and resubmit.
		if _, err := store.GetTransportRate(ctx, database.GetTransportRateParams{
			City:        order.VenueCity,
			TripType:    order.TripType,
			VehicleType: order.VehicleType,
		}); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: city=%q trip_type=%q vehicle_type=%q",
					ErrMissingTransportRate, order.VenueCity, order.TripType, order.VehicleType)
			}
			return nil, fmt.Errorf("get transport rate: %w", err)
		}

		margin, err := s.effectiveMargin(ctx, store, order)
		if err != nil {
			return nil, err
		}
		p, err := s.recomputePricing(ctx, store, order, margin, false)
		if err != nil {
			return nil, err
		}

		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusPendingApproval, actor, "")
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
}

// ApproveQuote moves PENDING_APPROVAL -> QUOTED, applying an optional margin
// override, locking the margin and emitting the quote-issued notification
// after commit.
func (s *OrderService) ApproveQuote(ctx context.Context, orderID, actor uuid.UUID, override *MarginOverride) (*TransitionResult, error) {
	var companyID uuid.UUID

	res, err := s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusPendingApproval {
			return nil, transitionError(order.Status, enum.OrderStatusQuoted)
		}
		companyID = order.CompanyID

		margin, err := s.effectiveMargin(ctx, store, order)
		if err != nil {
			return nil, err
		}

		prevMargin := margin
		overrideReason := ""
		if override != nil {
			if override.Percent.IsNegative() || override.Percent.GreaterThan(decimal.NewFromInt(100)) {
				return nil, ErrInvalidMarginPercent
			}
			if override.Percent.Sub(margin).Abs().LessThan(marginEpsilon) {
				return nil, ErrRedundantMarginOverride
			}
			overrideReason = strings.TrimSpace(override.Reason)
			if overrideReason == "" {
				return nil, ErrMissingOverrideReason
			}
			margin = override.Percent
		}

		p, err := s.recomputePricing(ctx, store, order, margin, true)
		if err != nil {
			return nil, err
		}

		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusQuoted, actor, "")
		if err != nil {
			return nil, err
		}

		if override != nil {
			if _, err := store.CreateOrderEvent(ctx, database.CreateOrderEventParams{
				OrderID:   orderID,
				EventType: enum.EventMarginOverride,
				Actor:     uuidOrNull(actor),
				Reason:    textOrNull(fmt.Sprintf("%s%% -> %s%%: %s", prevMargin, override.Percent, overrideReason)),
			}); err != nil {
				return nil, fmt.Errorf("record margin override: %w", err)
			}
		}

		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Dispatch(orderID, companyID, enum.NotificationQuoteIssued)
	}
	return res, nil
}

// DeclineQuote moves PENDING_APPROVAL -> DECLINED (terminal).
func (s *OrderService) DeclineQuote(ctx context.Context, orderID, actor uuid.UUID, reason string) (*TransitionResult, error) {
	if len(strings.TrimSpace(reason)) < minReasonLength {
		return nil, ErrInvalidReason
	}

	var companyID uuid.UUID
	res, err := s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusPendingApproval {
			return nil, transitionError(order.Status, enum.OrderStatusDeclined)
		}
		companyID = order.CompanyID

		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusDeclined, actor, reason)
		if err != nil {
			return nil, err
		}
		p, err := fetchPricing(ctx, store, orderID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Dispatch(orderID, companyID, enum.NotificationQuoteDeclined)
	}
	return res, nil
}

// ReturnToLogistics moves PENDING_APPROVAL -> PRICING_REVIEW, clearing any
// margin override: the snapshot is reseeded from the company default and
// unlocked. Line items are preserved.
func (s *OrderService) ReturnToLogistics(ctx context.Context, orderID, actor uuid.UUID, reason string) (*TransitionResult, error) {
	if len(strings.TrimSpace(reason)) < minReasonLength {
		return nil, ErrInvalidReason
	}

	return s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusPendingApproval {
			return nil, transitionError(order.Status, enum.OrderStatusPricingReview)
		}

		company, err := store.GetCompany(ctx, order.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("get company: %w", err)
		}
		p, err := s.recomputePricing(ctx, store, order, numericToDecimal(company.DefaultMarginPercent), false)
		if err != nil {
			return nil, err
		}

		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusPricingReview, actor, reason)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
}

// Confirm moves QUOTED -> CONFIRMED.
func (s *OrderService) Confirm(ctx context.Context, orderID, actor uuid.UUID) (*TransitionResult, error) {
	return s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusQuoted {
			return nil, transitionError(order.Status, enum.OrderStatusConfirmed)
		}
		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusConfirmed, actor, "")
		if err != nil {
			return nil, err
		}
		p, err := fetchPricing(ctx, store, orderID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
}

// ScheduleFabrication moves CONFIRMED -> AWAITING_FABRICATION. The order must
// have at least one linked service request to wait on.
func (s *OrderService) ScheduleFabrication(ctx context.Context, orderID, actor uuid.UUID) (*TransitionResult, error) {
	return s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusConfirmed {
			return nil, transitionError(order.Status, enum.OrderStatusAwaitingFabrication)
		}

		count, err := store.CountServiceRequests(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("count service requests: %w", err)
		}
		if count == 0 {
			return nil, ErrNoServiceRequests
		}

		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusAwaitingFabrication, actor, "")
		if err != nil {
			return nil, err
		}
		p, err := fetchPricing(ctx, store, orderID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
}

// AdvanceFabrication moves AWAITING_FABRICATION -> IN_PREPARATION once every
// linked service request has finished. System-triggered; no actor.
func (s *OrderService) AdvanceFabrication(ctx context.Context, orderID uuid.UUID) (*TransitionResult, error) {
	return s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusAwaitingFabrication {
			return nil, transitionError(order.Status, enum.OrderStatusInPreparation)
		}

		open, err := store.CountOpenServiceRequests(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("count open service requests: %w", err)
		}
		if open > 0 {
			return nil, ErrServiceRequestsOpen
		}

		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusInPreparation, uuid.Nil, "")
		if err != nil {
			return nil, err
		}
		p, err := fetchPricing(ctx, store, orderID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
}

// AdvanceReadyFabrications finds AWAITING_FABRICATION orders whose service
// requests have all completed and advances each one. Returns the number of
// orders advanced. Called by the background worker.
func (s *OrderService) AdvanceReadyFabrications(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	ids, err := s.newStore(tx).ListFabricationReadyOrders(ctx)
	tx.Rollback(ctx) //nolint:errcheck
	if err != nil {
		return 0, fmt.Errorf("list fabrication-ready orders: %w", err)
	}

	advanced := 0
	for _, id := range ids {
		if _, err := s.AdvanceFabrication(ctx, id); err != nil {
			// Lost the race against a concurrent transition or a request
			// reopened; skip and let the next sweep retry.
			if errors.Is(err, ErrInvalidStateTransition) || errors.Is(err, ErrServiceRequestsOpen) || errors.Is(err, ErrOrderConflict) {
				continue
			}
			return advanced, err
		}
		advanced++
	}
	return advanced, nil
}

// Complete moves IN_PREPARATION -> COMPLETED.
func (s *OrderService) Complete(ctx context.Context, orderID, actor uuid.UUID) (*TransitionResult, error) {
	return s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		if order.Status != enum.OrderStatusInPreparation {
			return nil, transitionError(order.Status, enum.OrderStatusCompleted)
		}
		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusCompleted, actor, "")
		if err != nil {
			return nil, err
		}
		p, err := fetchPricing(ctx, store, orderID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
}

// Cancel moves any non-terminal status to CANCELLED. Idempotent: cancelling
// an already-cancelled order succeeds without writing a second cancellation
// event. Line items are kept for audit, never auto-voided.
func (s *OrderService) Cancel(ctx context.Context, orderID, actor uuid.UUID, reason string) (*TransitionResult, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyReason
	}

	cancelled := false
	var companyID uuid.UUID

	res, err := s.withOrderTx(ctx, orderID, func(store OrderStore, order database.Order) (*TransitionResult, error) {
		companyID = order.CompanyID

		if order.Status == enum.OrderStatusCancelled {
			p, err := fetchPricing(ctx, store, orderID)
			if err != nil {
				return nil, err
			}
			return &TransitionResult{Order: order, Pricing: p}, nil
		}
		if enum.TerminalOrderStatus(order.Status) {
			return nil, transitionError(order.Status, enum.OrderStatusCancelled)
		}

		updated, err := s.applyStatus(ctx, store, order, enum.OrderStatusCancelled, actor, reason)
		if err != nil {
			return nil, err
		}
		cancelled = true

		p, err := fetchPricing(ctx, store, orderID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Order: updated, Pricing: p}, nil
	})
	if err != nil {
		return nil, err
	}

	if cancelled && s.notifier != nil {
		s.notifier.Dispatch(orderID, companyID, enum.NotificationOrderCancelled)
	}
	return res, nil
}

// ── Internals ──

// withOrderTx runs fn under the per-order lock inside a transaction, with the
// current order row loaded.
func (s *OrderService) withOrderTx(ctx context.Context, orderID uuid.UUID, fn func(store OrderStore, order database.Order) (*TransitionResult, error)) (*TransitionResult, error) {
	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	res, err := fn(store, order)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

// applyStatus performs the guarded status UPDATE and writes the audit event.
// Zero rows updated means another writer won the race.
func (s *OrderService) applyStatus(ctx context.Context, store OrderStore, order database.Order, to string, actor uuid.UUID, reason string) (database.Order, error) {
	if !transitionAllowed(order.Status, to) {
		return database.Order{}, transitionError(order.Status, to)
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:             order.ID,
		ExpectedStatus: order.Status,
		Status:         to,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderConflict
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	if _, err := store.CreateOrderEvent(ctx, database.CreateOrderEventParams{
		OrderID:    order.ID,
		EventType:  enum.EventStatusChanged,
		FromStatus: textOrNull(order.Status),
		ToStatus:   textOrNull(to),
		Actor:      uuidOrNull(actor),
		Reason:     textOrNull(reason),
	}); err != nil {
		return database.Order{}, fmt.Errorf("record order event: %w", err)
	}

	return updated, nil
}

// pricingStore is the slice of store methods the recompute path needs;
// satisfied by both OrderStore and LineItemStore implementations.
type pricingStore interface {
	GetTransportRate(ctx context.Context, arg database.GetTransportRateParams) (database.TransportRate, error)
	SumLineItems(ctx context.Context, orderID uuid.UUID) (database.SumLineItemsRow, error)
	GetOrderPricing(ctx context.Context, orderID uuid.UUID) (database.OrderPricing, error)
	UpsertOrderPricing(ctx context.Context, arg database.UpsertOrderPricingParams) (database.OrderPricing, error)
	GetCompany(ctx context.Context, id uuid.UUID) (database.Company, error)
}

// recomputePricing rebuilds the order's pricing snapshot: base ops from the
// order, transport from the rate table (zero while no rate exists), line-item
// totals from the ledger, margin as given.
func (s *OrderService) recomputePricing(ctx context.Context, store pricingStore, order database.Order, marginPercent decimal.Decimal, locked bool) (database.OrderPricing, error) {
	transport := decimal.Zero
	rate, err := store.GetTransportRate(ctx, database.GetTransportRateParams{
		City:        order.VenueCity,
		TripType:    order.TripType,
		VehicleType: order.VehicleType,
	})
	if err == nil {
		transport = numericToDecimal(rate.FinalRate)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return database.OrderPricing{}, fmt.Errorf("get transport rate: %w", err)
	}

	sums, err := store.SumLineItems(ctx, order.ID)
	if err != nil {
		return database.OrderPricing{}, fmt.Errorf("sum line items: %w", err)
	}

	snapshot := pricing.Snapshot{
		BaseOps:      numericToDecimal(order.BaseOpsTotal),
		Transport:    transport,
		CatalogTotal: numericToDecimal(sums.CatalogTotal),
		CustomTotal:  numericToDecimal(sums.CustomTotal),
	}
	totals, err := pricing.ComputeTotals(snapshot, marginPercent)
	if err != nil {
		return database.OrderPricing{}, err
	}

	p, err := store.UpsertOrderPricing(ctx, database.UpsertOrderPricingParams{
		OrderID:       order.ID,
		BaseOpsTotal:  decimalToNumeric(snapshot.BaseOps),
		TransportRate: decimalToNumeric(snapshot.Transport),
		CatalogTotal:  decimalToNumeric(snapshot.CatalogTotal),
		CustomTotal:   decimalToNumeric(snapshot.CustomTotal),
		MarginPercent: decimalToNumeric(marginPercent),
		MarginAmount:  decimalToNumeric(totals.MarginAmount),
		Total:         decimalToNumeric(totals.Total),
		MarginLocked:  locked,
	})
	if err != nil {
		return database.OrderPricing{}, fmt.Errorf("upsert order pricing: %w", err)
	}
	return p, nil
}

// effectiveMargin is the order's current snapshot margin, falling back to the
// company default while no snapshot exists yet.
func (s *OrderService) effectiveMargin(ctx context.Context, store pricingStore, order database.Order) (decimal.Decimal, error) {
	p, err := store.GetOrderPricing(ctx, order.ID)
	if err == nil {
		return numericToDecimal(p.MarginPercent), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("get order pricing: %w", err)
	}

	company, err := store.GetCompany(ctx, order.CompanyID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get company: %w", err)
	}
	return numericToDecimal(company.DefaultMarginPercent), nil
}

func fetchPricing(ctx context.Context, store OrderStore, orderID uuid.UUID) (database.OrderPricing, error) {
	p, err := store.GetOrderPricing(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderPricing{OrderID: orderID}, nil
		}
		return database.OrderPricing{}, fmt.Errorf("get order pricing: %w", err)
	}
	return p, nil
}

func transitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
}

func uuidOrNull(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
