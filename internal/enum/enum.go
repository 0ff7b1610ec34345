package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusDraft               = "DRAFT"
	OrderStatusSubmitted           = "SUBMITTED"
	OrderStatusPricingReview       = "PRICING_REVIEW"
	OrderStatusPendingApproval     = "PENDING_APPROVAL"
	OrderStatusQuoted              = "QUOTED"
	OrderStatusConfirmed           = "CONFIRMED"
	OrderStatusAwaitingFabrication = "AWAITING_FABRICATION"
	OrderStatusInPreparation       = "IN_PREPARATION"
	OrderStatusDeclined            = "DECLINED"
	OrderStatusCompleted           = "COMPLETED"
	OrderStatusCancelled           = "CANCELLED"
)

const (
	LineItemKindCatalog = "CATALOG"
	LineItemKindCustom  = "CUSTOM"
)

const (
	ServiceRequestStatusRequested  = "REQUESTED"
	ServiceRequestStatusInProgress = "IN_PROGRESS"
	ServiceRequestStatusCompleted  = "COMPLETED"
	ServiceRequestStatusCancelled  = "CANCELLED"
)

// ── Capabilities carried in JWT claims ──

const (
	CapPricingAdjust       = "orders:pricing_adjust"
	CapPricingAdminApprove = "orders:pricing_admin_approve"
	CapCancel              = "orders:cancel"
	CapLineItemsManage     = "orders:line_items_manage"
)

// ── Order event types (audit log) ──

const (
	EventStatusChanged  = "STATUS_CHANGED"
	EventMarginOverride = "MARGIN_OVERRIDE"
	EventLineItemAdded  = "LINE_ITEM_ADDED"
	EventLineItemVoided = "LINE_ITEM_VOIDED"
)

// ── Notification kinds ──

const (
	NotificationQuoteIssued    = "QUOTE_ISSUED"
	NotificationQuoteDeclined  = "QUOTE_DECLINED"
	NotificationOrderCancelled = "ORDER_CANCELLED"
)

// ValidOrderStatus reports whether s is one of the known order statuses.
// Unknown strings must be rejected at the gateway before they reach the
// state machine.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusDraft, OrderStatusSubmitted, OrderStatusPricingReview,
		OrderStatusPendingApproval, OrderStatusQuoted, OrderStatusConfirmed,
		OrderStatusAwaitingFabrication, OrderStatusInPreparation,
		OrderStatusDeclined, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// TerminalOrderStatus reports whether s is a terminal status.
func TerminalOrderStatus(s string) bool {
	switch s {
	case OrderStatusDeclined, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}
