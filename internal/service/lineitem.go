package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/gearstage/ops-api/internal/database"
	"github.com/gearstage/ops-api/internal/enum"
)

// LineItemStore defines the DB methods the ledger needs.
// Satisfied by *database.Queries.
type LineItemStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetServiceType(ctx context.Context, id uuid.UUID) (database.ServiceType, error)
	CreateLineItem(ctx context.Context, arg database.CreateLineItemParams) (database.LineItem, error)
	VoidLineItem(ctx context.Context, arg database.VoidLineItemParams) (database.LineItem, error)
	GetLineItem(ctx context.Context, arg database.GetLineItemParams) (database.LineItem, error)
	GetTransportRate(ctx context.Context, arg database.GetTransportRateParams) (database.TransportRate, error)
	GetOrderPricing(ctx context.Context, orderID uuid.UUID) (database.OrderPricing, error)
	UpsertOrderPricing(ctx context.Context, arg database.UpsertOrderPricingParams) (database.OrderPricing, error)
	SumLineItems(ctx context.Context, orderID uuid.UUID) (database.SumLineItemsRow, error)
	GetCompany(ctx context.Context, id uuid.UUID) (database.Company, error)
	CreateOrderEvent(ctx context.Context, arg database.CreateOrderEventParams) (database.OrderEvent, error)
}

// NewLineItemStore creates a LineItemStore from a DBTX.
type NewLineItemStore func(db database.DBTX) LineItemStore

// LineItemResult is a mutated line item with the recomputed pricing snapshot
// and the order it belongs to.
type LineItemResult struct {
	Order   database.Order
	Item    database.LineItem
	Pricing database.OrderPricing
}

// LineItemService is the order's charge ledger. Items are only mutable while
// the order sits in a line-item-editable status, and voided items stay on the
// books for audit. Every mutation recomputes the pricing snapshot in the same
// transaction.
type LineItemService struct {
	pool     TxBeginner
	newStore NewLineItemStore
	orders   *OrderService
}

func NewLineItemService(pool TxBeginner, newStore NewLineItemStore, orders *OrderService) *LineItemService {
	return &LineItemService{pool: pool, newStore: newStore, orders: orders}
}

// AddCatalogItem attaches a catalog service charge. The unit rate is
// snapshotted from the service type at insertion time, not referenced live.
func (s *LineItemService) AddCatalogItem(ctx context.Context, orderID, actor, serviceTypeID uuid.UUID, quantity int32) (*LineItemResult, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	return s.withLedgerTx(ctx, orderID, func(store LineItemStore, order database.Order) (*LineItemResult, error) {
		st, err := store.GetServiceType(ctx, serviceTypeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrServiceTypeNotFound
			}
			return nil, fmt.Errorf("get service type: %w", err)
		}

		unitRate := numericToDecimal(st.DefaultRate)
		amount := unitRate.Mul(decimal.NewFromInt32(quantity))

		item, err := store.CreateLineItem(ctx, database.CreateLineItemParams{
			OrderID:       orderID,
			Kind:          enum.LineItemKindCatalog,
			ServiceTypeID: pgtype.UUID{Bytes: serviceTypeID, Valid: true},
			Description:   st.Name,
			Quantity:      quantity,
			UnitRate:      decimalToNumeric(unitRate),
			Amount:        decimalToNumeric(amount),
			CreatedBy:     actor,
		})
		if err != nil {
			return nil, fmt.Errorf("create line item: %w", err)
		}

		return s.finishMutation(ctx, store, order, item, enum.EventLineItemAdded, actor, "")
	})
}

// AddCustomItem attaches a free-form charge with a caller-supplied rate.
func (s *LineItemService) AddCustomItem(ctx context.Context, orderID, actor uuid.UUID, description string, quantity int32, unitRate string) (*LineItemResult, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ErrEmptyDescription
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	rate, err := decimal.NewFromString(unitRate)
	if err != nil || rate.IsNegative() {
		return nil, ErrInvalidUnitRate
	}

	return s.withLedgerTx(ctx, orderID, func(store LineItemStore, order database.Order) (*LineItemResult, error) {
		amount := rate.Mul(decimal.NewFromInt32(quantity))

		item, err := store.CreateLineItem(ctx, database.CreateLineItemParams{
			OrderID:     orderID,
			Kind:        enum.LineItemKindCustom,
			Description: strings.TrimSpace(description),
			Quantity:    quantity,
			UnitRate:    decimalToNumeric(rate),
			Amount:      decimalToNumeric(amount),
			CreatedBy:   actor,
		})
		if err != nil {
			return nil, fmt.Errorf("create line item: %w", err)
		}

		return s.finishMutation(ctx, store, order, item, enum.EventLineItemAdded, actor, "")
	})
}

// VoidItem soft-voids a line item. The row is never deleted; repeating the
// void is a client error, and the recomputed totals exclude the item.
func (s *LineItemService) VoidItem(ctx context.Context, orderID, actor, itemID uuid.UUID, reason string) (*LineItemResult, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyReason
	}

	return s.withLedgerTx(ctx, orderID, func(store LineItemStore, order database.Order) (*LineItemResult, error) {
		item, err := store.VoidLineItem(ctx, database.VoidLineItemParams{
			ID:      itemID,
			OrderID: orderID,
			Reason:  reason,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Distinguish "missing" from "already voided".
				existing, getErr := store.GetLineItem(ctx, database.GetLineItemParams{ID: itemID, OrderID: orderID})
				if getErr != nil {
					if errors.Is(getErr, pgx.ErrNoRows) {
						return nil, ErrItemNotFound
					}
					return nil, fmt.Errorf("get line item: %w", getErr)
				}
				if existing.Voided {
					return nil, ErrItemAlreadyVoided
				}
				return nil, ErrItemNotFound
			}
			return nil, fmt.Errorf("void line item: %w", err)
		}

		return s.finishMutation(ctx, store, order, item, enum.EventLineItemVoided, actor, reason)
	})
}

// ── Internals ──

// withLedgerTx runs fn under the order lock in a transaction, after checking
// the order exists and is in an editable status.
func (s *LineItemService) withLedgerTx(ctx context.Context, orderID uuid.UUID, fn func(store LineItemStore, order database.Order) (*LineItemResult, error)) (*LineItemResult, error) {
	s.orders.locks.Lock(orderID)
	defer s.orders.locks.Unlock(orderID)

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
	if !lineItemEditable(order.Status) {
		return nil, fmt.Errorf("%w: status %s", ErrOrderNotEditable, order.Status)
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

// finishMutation records the audit event and recomputes the pricing snapshot
// with the order's current effective margin.
func (s *LineItemService) finishMutation(ctx context.Context, store LineItemStore, order database.Order, item database.LineItem, eventType string, actor uuid.UUID, reason string) (*LineItemResult, error) {
	if _, err := store.CreateOrderEvent(ctx, database.CreateOrderEventParams{
		OrderID:   order.ID,
		EventType: eventType,
		Actor:     uuidOrNull(actor),
		Reason:    textOrNull(reason),
	}); err != nil {
		return nil, fmt.Errorf("record order event: %w", err)
	}

	margin, err := s.orders.effectiveMargin(ctx, store, order)
	if err != nil {
		return nil, err
	}
	p, err := s.orders.recomputePricing(ctx, store, order, margin, false)
	if err != nil {
		return nil, err
	}

	return &LineItemResult{Order: order, Item: item, Pricing: p}, nil
}

func lineItemEditable(status string) bool {
	switch status {
	case enum.OrderStatusPricingReview, enum.OrderStatusPendingApproval:
		return true
	}
	return false
}
