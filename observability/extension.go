// Package observability provides a metrics extension for Paylink that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/plugin"
	"github.com/xraph/paylink/settlement"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated   = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid      = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed    = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawal       = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Paylink plugin to track invoice and payout activity.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceCreated Counter
	InvoicePaid    Counter
	InvoiceAmount  Histogram

	// Payment failure metrics
	PaymentExpired     Counter
	PaymentAlreadyPaid Counter
	PaymentFailed      Counter

	// Withdrawal metrics
	WithdrawalCompleted    Counter
	WithdrawalAmount       Histogram
	WithdrawalInsufficient Counter
	WithdrawalFailed       Counter

	// Backend metrics
	BackendUnavailable Counter
	TransactionPending Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		InvoiceCreated: factory.Counter("paylink.invoice.created"),
		InvoicePaid:    factory.Counter("paylink.invoice.paid"),
		InvoiceAmount:  factory.Histogram("paylink.invoice.paid_amount"),

		PaymentExpired:     factory.Counter("paylink.payment.expired"),
		PaymentAlreadyPaid: factory.Counter("paylink.payment.already_paid"),
		PaymentFailed:      factory.Counter("paylink.payment.failed"),

		WithdrawalCompleted:    factory.Counter("paylink.withdrawal.completed"),
		WithdrawalAmount:       factory.Histogram("paylink.withdrawal.amount"),
		WithdrawalInsufficient: factory.Counter("paylink.withdrawal.insufficient_balance"),
		WithdrawalFailed:       factory.Counter("paylink.withdrawal.failed"),

		BackendUnavailable: factory.Counter("paylink.backend.unavailable"),
		TransactionPending: factory.Counter("paylink.backend.pending"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, _ *invoice.Invoice, _ settlement.Receipt) error {
	m.InvoiceCreated.Inc()
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid. Amounts are observed in
// whole tokens.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, inv *invoice.Invoice, _ settlement.Receipt) error {
	m.InvoicePaid.Inc()
	m.InvoiceAmount.Observe(inv.Amount.Decimal().InexactFloat64())
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _ invoice.ID, _ common.Address, err error) error {
	switch {
	case errors.Is(err, paylink.ErrInvoiceExpired):
		m.PaymentExpired.Inc()
	case errors.Is(err, paylink.ErrInvoiceAlreadyPaid):
		m.PaymentAlreadyPaid.Inc()
	default:
		m.PaymentFailed.Inc()
	}
	m.backendError(err)
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawal implements plugin.OnWithdrawal.
func (m *MetricsExtension) OnWithdrawal(_ context.Context, w *balance.Withdrawal, _ settlement.Receipt) error {
	m.WithdrawalCompleted.Inc()
	m.WithdrawalAmount.Observe(w.Amount.Decimal().InexactFloat64())
	return nil
}

// OnWithdrawalFailed implements plugin.OnWithdrawalFailed.
func (m *MetricsExtension) OnWithdrawalFailed(_ context.Context, _ balance.Request, err error) error {
	if errors.Is(err, paylink.ErrInsufficientBalance) {
		m.WithdrawalInsufficient.Inc()
	} else {
		m.WithdrawalFailed.Inc()
	}
	m.backendError(err)
	return nil
}

func (m *MetricsExtension) backendError(err error) {
	if _, ok := paylink.IsPending(err); ok {
		m.TransactionPending.Inc()
		return
	}
	if paylink.IsRetryable(err) {
		m.BackendUnavailable.Inc()
	}
}
