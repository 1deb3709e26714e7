package invoice

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// ID is the opaque 256-bit invoice identifier issued by the settlement backend.
type ID = common.Hash

// ParseID parses a 0x-prefixed, 64-digit hex invoice identifier.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return ID{}, fmt.Errorf("invoice: malformed id %q", s)
	}
	for _, c := range s[2:] {
		if !isHex(c) {
			return ID{}, fmt.Errorf("invoice: malformed id %q", s)
		}
	}
	return common.HexToHash(s), nil
}

func isHex(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// Status filters invoice listings. It is derived from Paid and is never stored.
type Status string

const (
	StatusAny    Status = ""
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
)

// Invoice is a payment request with a fixed payee, token and amount.
// Identity, merchant, token, amount and note never change after creation;
// Paid, Payer and PaidAt are set together exactly once.
type Invoice struct {
	ID        ID             `json:"invoice_id"`
	Merchant  common.Address `json:"merchant"`
	Token     token.Symbol   `json:"token"`
	Amount    types.Amount   `json:"amount"`
	Note      string         `json:"note"`
	CreatedAt int64          `json:"created_at"`
	ExpiresAt int64          `json:"expires_at"`
	Paid      bool           `json:"paid"`
	Payer     common.Address `json:"payer"`
	PaidAt    int64          `json:"paid_at"`
}

// Expired reports whether the invoice can no longer be paid at now.
// ExpiresAt == 0 never expires.
func (inv *Invoice) Expired(now int64) bool {
	return inv.ExpiresAt != 0 && now > inv.ExpiresAt
}

// Refusal is the reason an existing invoice cannot be paid.
type Refusal int

const (
	Payable Refusal = iota
	RefusedAlreadyPaid
	RefusedExpired
)

// Check evaluates the payment preconditions that follow existence, in order:
// already paid, then expired.
func (inv *Invoice) Check(now int64) Refusal {
	switch {
	case inv.Paid:
		return RefusedAlreadyPaid
	case inv.Expired(now):
		return RefusedExpired
	default:
		return Payable
	}
}

// Settle applies a settlement to the paid fields together. Callers must have
// checked the invoice is Payable under the same lock or transaction.
func (inv *Invoice) Settle(s Settlement) {
	inv.Paid = true
	inv.Payer = s.Payer
	inv.PaidAt = s.PaidAt
}

// Matches reports whether inv passes the status filter.
func (s Status) Matches(inv *Invoice) bool {
	switch s {
	case StatusPaid:
		return inv.Paid
	case StatusUnpaid:
		return !inv.Paid
	default:
		return true
	}
}

// Draft holds the caller-supplied fields of a new invoice.
type Draft struct {
	Merchant  common.Address `json:"merchant"`
	Token     token.Symbol   `json:"token"`
	Amount    types.Amount   `json:"amount"`
	Note      string         `json:"note"`
	ExpiresAt int64          `json:"expires_at"`
}

// Settlement is a payment of an invoice by Payer at PaidAt.
type Settlement struct {
	InvoiceID ID             `json:"invoice_id"`
	Payer     common.Address `json:"payer"`
	PaidAt    int64          `json:"paid_at"`
}
