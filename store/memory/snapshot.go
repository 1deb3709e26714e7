package memory

import (
	"slices"
	"strings"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/types"
)

// Snapshot is a point-in-time copy of a Store, in creation order.
type Snapshot struct {
	Invoices    []*invoice.Invoice    `json:"invoices"`
	Balances    []balance.Balance     `json:"balances"`
	Withdrawals []*balance.Withdrawal `json:"withdrawals"`
}

// Snapshot copies the store contents. Balances are sorted by key.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Invoices:    make([]*invoice.Invoice, 0, len(s.order)),
		Balances:    make([]balance.Balance, 0, len(s.balances)),
		Withdrawals: make([]*balance.Withdrawal, 0, len(s.withdrawals)),
	}
	for _, invID := range s.order {
		cp := *s.invoices[invID]
		snap.Invoices = append(snap.Invoices, &cp)
	}
	for key, amt := range s.balances {
		snap.Balances = append(snap.Balances, balance.Balance{Key: key, Amount: amt})
	}
	slices.SortFunc(snap.Balances, func(a, b balance.Balance) int {
		return strings.Compare(a.Key.String(), b.Key.String())
	})
	for _, w := range s.withdrawals {
		cp := *w
		snap.Withdrawals = append(snap.Withdrawals, &cp)
	}
	return snap
}

// Restore replaces the store contents with snap.
func (s *Store) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoices = make(map[invoice.ID]*invoice.Invoice, len(snap.Invoices))
	s.order = make([]invoice.ID, 0, len(snap.Invoices))
	s.balances = make(map[balance.Key]types.Amount, len(snap.Balances))
	s.withdrawals = make([]*balance.Withdrawal, 0, len(snap.Withdrawals))

	for _, inv := range snap.Invoices {
		cp := *inv
		s.invoices[inv.ID] = &cp
		s.order = append(s.order, inv.ID)
	}
	for _, b := range snap.Balances {
		s.balances[b.Key] = b.Amount
	}
	for _, w := range snap.Withdrawals {
		cp := *w
		s.withdrawals = append(s.withdrawals, &cp)
	}
}
