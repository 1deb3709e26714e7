package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/settlement"
)

// Registry holds registered plugins. Hook implementations are sorted into
// per-hook lists at registration so emission never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	hooks   map[string][]string
	logger  *slog.Logger
	timeout time.Duration

	onInit             []OnInit
	onShutdown         []OnShutdown
	onInvoiceCreated   []OnInvoiceCreated
	onInvoicePaid      []OnInvoicePaid
	onPaymentFailed    []OnPaymentFailed
	onWithdrawal       []OnWithdrawal
	onWithdrawalFailed []OnWithdrawalFailed
}

// NewRegistry creates an empty registry with a 5s hook timeout.
func NewRegistry() *Registry {
	return &Registry{
		hooks:   make(map[string][]string),
		logger:  slog.Default(),
		timeout: 5 * time.Second,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout bounds how long a single hook call may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds p. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, dup := r.hooks[name]; dup {
		return fmt.Errorf("plugin: duplicate registration: %s", name)
	}

	var hooks []string
	sortHook(p, &r.onInit, "OnInit", &hooks)
	sortHook(p, &r.onShutdown, "OnShutdown", &hooks)
	sortHook(p, &r.onInvoiceCreated, "OnInvoiceCreated", &hooks)
	sortHook(p, &r.onInvoicePaid, "OnInvoicePaid", &hooks)
	sortHook(p, &r.onPaymentFailed, "OnPaymentFailed", &hooks)
	sortHook(p, &r.onWithdrawal, "OnWithdrawal", &hooks)
	sortHook(p, &r.onWithdrawalFailed, "OnWithdrawalFailed", &hooks)

	r.plugins = append(r.plugins, p)
	r.hooks[name] = hooks

	r.logger.Info("plugin registered", "name", name, "hooks", hooks)
	return nil
}

func sortHook[H Plugin](p Plugin, list *[]H, hook string, names *[]string) {
	if h, ok := p.(H); ok {
		*list = append(*list, h)
		*names = append(*names, hook)
	}
}

// Hooks lists the hooks the named plugin implements, in dispatch order.
func (r *Registry) Hooks(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.hooks[name]...)
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin(nil), r.plugins...)
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Emission
// ──────────────────────────────────────────────────

// EmitInit calls OnInit on every implementer.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	emit(ctx, r, &r.onInit, "OnInit", func(ctx context.Context, p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown on every implementer.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, &r.onShutdown, "OnShutdown", func(ctx context.Context, p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitInvoiceCreated reports a committed invoice.
func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Invoice, rcpt settlement.Receipt) {
	emit(ctx, r, &r.onInvoiceCreated, "OnInvoiceCreated", func(ctx context.Context, p OnInvoiceCreated) error {
		return p.OnInvoiceCreated(ctx, inv, rcpt)
	})
}

// EmitInvoicePaid reports a committed payment.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice, rcpt settlement.Receipt) {
	emit(ctx, r, &r.onInvoicePaid, "OnInvoicePaid", func(ctx context.Context, p OnInvoicePaid) error {
		return p.OnInvoicePaid(ctx, inv, rcpt)
	})
}

// EmitPaymentFailed reports a rejected or failed payment.
func (r *Registry) EmitPaymentFailed(ctx context.Context, invID invoice.ID, payer common.Address, err error) {
	emit(ctx, r, &r.onPaymentFailed, "OnPaymentFailed", func(ctx context.Context, p OnPaymentFailed) error {
		return p.OnPaymentFailed(ctx, invID, payer, err)
	})
}

// EmitWithdrawal reports a committed withdrawal.
func (r *Registry) EmitWithdrawal(ctx context.Context, w *balance.Withdrawal, rcpt settlement.Receipt) {
	emit(ctx, r, &r.onWithdrawal, "OnWithdrawal", func(ctx context.Context, p OnWithdrawal) error {
		return p.OnWithdrawal(ctx, w, rcpt)
	})
}

// EmitWithdrawalFailed reports a rejected or failed withdrawal.
func (r *Registry) EmitWithdrawalFailed(ctx context.Context, req balance.Request, err error) {
	emit(ctx, r, &r.onWithdrawalFailed, "OnWithdrawalFailed", func(ctx context.Context, p OnWithdrawalFailed) error {
		return p.OnWithdrawalFailed(ctx, req, err)
	})
}

// emit runs call for each implementer in order. Hooks run after the
// mutation committed, so a failing or slow hook is logged and skipped.
func emit[H Plugin](ctx context.Context, r *Registry, list *[]H, hook string, call func(context.Context, H) error) {
	r.mu.RLock()
	targets := *list
	r.mu.RUnlock()

	for _, p := range targets {
		err := r.callWithTimeout(ctx, p.Name(), func(hctx context.Context) error { return call(hctx, p) })
		if err != nil {
			r.logger.Warn("plugin hook failed",
				"plugin", p.Name(),
				"hook", hook,
				"error", err,
			)
		}
	}
}

// callWithTimeout runs fn with a child of ctx that is cancelled when the
// timeout elapses, so a hook that honors its context stops with the call.
func (r *Registry) callWithTimeout(ctx context.Context, name string, fn func(context.Context) error) error {
	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(hctx) }()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		if errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("plugin: %s timed out after %s", name, r.timeout)
		}
		return ctx.Err()
	}
}
