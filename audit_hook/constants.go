package audithook

// Action constants for audit events.
const (
	// Engine actions
	ActionEngineStarted = "engine.started"
	ActionEngineStopped = "engine.stopped"

	// Invoice actions
	ActionInvoiceCreated = "invoice.created"
	ActionInvoicePaid    = "invoice.paid"
	ActionPaymentFailed  = "payment.failed"

	// Withdrawal actions
	ActionWithdrawalCompleted = "withdrawal.completed"
	ActionWithdrawalFailed    = "withdrawal.failed"
)

// Resource constants for audit events.
const (
	ResourceEngine     = "engine"
	ResourceInvoice    = "invoice"
	ResourceWithdrawal = "withdrawal"
)

// Category constants for audit events.
const (
	CategoryLifecycle = "lifecycle"
	CategoryBilling   = "billing"
	CategoryPayment   = "payment"
	CategoryPayout    = "payout"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
