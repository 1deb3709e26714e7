// Package balance models merchant balances and the withdrawals that debit them.
package balance

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/id"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// Key identifies a balance entry.
type Key struct {
	Merchant common.Address `json:"merchant"`
	Token    token.Symbol   `json:"token"`
}

// String returns "merchant:token", used for per-key locking.
func (k Key) String() string {
	return k.Merchant.Hex() + ":" + string(k.Token)
}

// Balance is the withdrawable amount of a token held for a merchant: the sum of
// paid invoices minus completed withdrawals. It is never negative.
type Balance struct {
	Key
	Amount types.Amount `json:"amount"`
}

// Request asks to move Amount of Token from the merchant's balance to Recipient.
// Merchant is the authenticated caller; a request can only debit the caller.
type Request struct {
	Merchant  common.Address `json:"merchant"`
	Token     token.Symbol   `json:"token"`
	Amount    types.Amount   `json:"amount"`
	Recipient common.Address `json:"recipient"`
}

// Key returns the balance entry the request debits.
func (r Request) Key() Key { return Key{Merchant: r.Merchant, Token: r.Token} }

// Withdrawal is a completed debit and the transfer recorded with it.
type Withdrawal struct {
	ID        id.WithdrawalID `json:"id"`
	Merchant  common.Address  `json:"merchant"`
	Token     token.Symbol    `json:"token"`
	Amount    types.Amount    `json:"amount"`
	Recipient common.Address  `json:"recipient"`
	Receipt   common.Hash     `json:"receipt"`
	CreatedAt int64           `json:"created_at"`
}

// Key returns the balance entry the withdrawal debited.
func (w *Withdrawal) Key() Key { return Key{Merchant: w.Merchant, Token: w.Token} }
