package enum

// ── Table lifecycle (derived, never stored authoritatively) ──

const (
	TableStatusAvailable    = "available"
	TableStatusSeated       = "seated"
	TableStatusOccupied     = "occupied"
	TableStatusReadyToClean = "ready-to-clean"
)

const (
	TakeoutStatusNew    = "takeout-new"
	TakeoutStatusUnpaid = "takeout-unpaid"
	TakeoutStatusPaid   = "takeout-paid"
)

// ── History record fields ──

const (
	SourceDineIn  = "dine_in"
	SourceTakeout = "takeout"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)
