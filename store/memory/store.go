// Package memory is an in-process Store. Every mutation runs under one mutex,
// so pay-and-credit and debit-and-record are trivially atomic.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/store"
	"github.com/xraph/paylink/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Invoice storage, in creation order
	invoices map[invoice.ID]*invoice.Invoice
	order    []invoice.ID

	// Running balance counters
	balances map[balance.Key]types.Amount

	// Withdrawal storage, in creation order
	withdrawals []*balance.Withdrawal
}

func New() *Store {
	return &Store{
		invoices: make(map[invoice.ID]*invoice.Invoice),
		balances: make(map[balance.Key]types.Amount),
	}
}

// Invoice Store implementation
func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return paylink.ErrStoreClosed
	}
	if _, exists := s.invoices[inv.ID]; exists {
		return paylink.ErrInvoiceExists
	}
	cp := *inv
	s.invoices[inv.ID] = &cp
	s.order = append(s.order, inv.ID)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID invoice.ID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, paylink.ErrStoreClosed
	}
	if inv, ok := s.invoices[invID]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, paylink.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, merchant common.Address, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, paylink.ErrStoreClosed
	}
	result := make([]*invoice.Invoice, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		inv := s.invoices[s.order[i]]
		if inv.Merchant == merchant && opts.Status.Matches(inv) {
			cp := *inv
			result = append(result, &cp)
		}
	}
	return opts.Page(result), nil
}

func (s *Store) SettleInvoice(_ context.Context, st invoice.Settlement) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, paylink.ErrStoreClosed
	}
	inv, ok := s.invoices[st.InvoiceID]
	if !ok {
		return nil, paylink.ErrInvoiceNotFound
	}
	switch inv.Check(st.PaidAt) {
	case invoice.RefusedAlreadyPaid:
		return nil, paylink.ErrInvoiceAlreadyPaid
	case invoice.RefusedExpired:
		return nil, paylink.ErrInvoiceExpired
	}

	inv.Settle(st)
	key := balance.Key{Merchant: inv.Merchant, Token: inv.Token}
	s.balances[key] = s.balances[key].Add(inv.Amount)

	cp := *inv
	return &cp, nil
}

// Balance Store implementation
func (s *Store) GetBalance(_ context.Context, key balance.Key) (types.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.Zero, paylink.ErrStoreClosed
	}
	return s.balances[key], nil
}

func (s *Store) Withdraw(_ context.Context, w *balance.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return paylink.ErrStoreClosed
	}
	key := w.Key()
	current := s.balances[key]
	if current.LessThan(w.Amount) {
		return paylink.ErrInsufficientBalance
	}
	s.balances[key] = current.Sub(w.Amount)
	cp := *w
	s.withdrawals = append(s.withdrawals, &cp)
	return nil
}

func (s *Store) ListWithdrawals(_ context.Context, merchant common.Address, opts balance.ListOpts) ([]*balance.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, paylink.ErrStoreClosed
	}
	result := make([]*balance.Withdrawal, 0)
	for i := len(s.withdrawals) - 1; i >= 0; i-- {
		if w := s.withdrawals[i]; w.Merchant == merchant {
			cp := *w
			result = append(result, &cp)
		}
	}
	return opts.Page(result), nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return paylink.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
