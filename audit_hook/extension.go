// Package audithook bridges Paylink lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/plugin"
	"github.com/xraph/paylink/settlement"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnInit             = (*Extension)(nil)
	_ plugin.OnShutdown         = (*Extension)(nil)
	_ plugin.OnInvoiceCreated   = (*Extension)(nil)
	_ plugin.OnInvoicePaid      = (*Extension)(nil)
	_ plugin.OnPaymentFailed    = (*Extension)(nil)
	_ plugin.OnWithdrawal       = (*Extension)(nil)
	_ plugin.OnWithdrawalFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Paylink lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Engine lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, _ interface{}) error {
	return e.record(ctx, success(ActionEngineStarted, ResourceEngine, "", CategoryLifecycle, nil))
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, success(ActionEngineStopped, ResourceEngine, "", CategoryLifecycle, nil))
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice, rcpt settlement.Receipt) error {
	meta := merge(invoiceMeta(inv), receiptMeta(rcpt))
	meta["expires_at"] = inv.ExpiresAt
	return e.record(ctx, success(ActionInvoiceCreated, ResourceInvoice, inv.ID.Hex(), CategoryBilling, meta))
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice, rcpt settlement.Receipt) error {
	meta := merge(invoiceMeta(inv), receiptMeta(rcpt))
	meta["payer"] = inv.Payer.Hex()
	return e.record(ctx, success(ActionInvoicePaid, ResourceInvoice, inv.ID.Hex(), CategoryPayment, meta))
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, invID invoice.ID, payer common.Address, err error) error {
	evt := failure(ActionPaymentFailed, SeverityWarning, ResourceInvoice, invID.Hex(), CategoryPayment, err)
	evt.Metadata["payer"] = payer.Hex()
	return e.record(ctx, evt)
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawal implements plugin.OnWithdrawal.
func (e *Extension) OnWithdrawal(ctx context.Context, w *balance.Withdrawal, rcpt settlement.Receipt) error {
	meta := merge(transferMeta(w.Merchant, w.Recipient, w.Token.String(), w.Amount.String()), receiptMeta(rcpt))
	return e.record(ctx, success(ActionWithdrawalCompleted, ResourceWithdrawal, w.ID.String(), CategoryPayout, meta))
}

// OnWithdrawalFailed implements plugin.OnWithdrawalFailed.
func (e *Extension) OnWithdrawalFailed(ctx context.Context, req balance.Request, err error) error {
	evt := failure(ActionWithdrawalFailed, SeverityCritical, ResourceWithdrawal, "", CategoryPayout, err)
	evt.Metadata = merge(evt.Metadata, transferMeta(req.Merchant, req.Recipient, req.Token.String(), req.Amount.String()))
	return e.record(ctx, evt)
}

// ──────────────────────────────────────────────────
// Event construction
// ──────────────────────────────────────────────────

func success(action, resource, resourceID, category string, meta map[string]any) *AuditEvent {
	return &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	}
}

func failure(action, severity, resource, resourceID, category string, err error) *AuditEvent {
	return &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   map[string]any{"error": err.Error()},
		Outcome:    OutcomeFailure,
		Severity:   severity,
		Reason:     err.Error(),
	}
}

func invoiceMeta(inv *invoice.Invoice) map[string]any {
	return map[string]any{
		"merchant": inv.Merchant.Hex(),
		"token":    inv.Token.String(),
		"amount":   inv.Amount.String(),
	}
}

func transferMeta(merchant, recipient common.Address, tok, amount string) map[string]any {
	return map[string]any{
		"merchant":  merchant.Hex(),
		"recipient": recipient.Hex(),
		"token":     tok,
		"amount":    amount,
	}
}

func receiptMeta(rcpt settlement.Receipt) map[string]any {
	return map[string]any{
		"mode":    string(rcpt.Mode),
		"tx_hash": rcpt.TxHash.Hex(),
	}
}

// merge copies src into dst and returns dst.
func merge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// record sends evt if its action is enabled. Recorder failures are logged,
// never returned: the audited mutation has already committed.
func (e *Extension) record(ctx context.Context, evt *AuditEvent) error {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
			"error", err,
		)
	}
	return nil
}
