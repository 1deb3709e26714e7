// Package settlement defines the capability every ledger backend implements.
//
// Two implementations exist: settlement/chain talks to the authoritative
// invoice contract, settlement/simulated runs the same rules against a local
// store. The choice is made once from configuration with DetectMode and the
// chosen Gateway is injected into the engine; nothing downstream branches on
// mode.
package settlement

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/paylink/activity"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/types"
)

// Mode names the backend that owns canonical ledger state.
type Mode string

const (
	ModeAuthoritative Mode = "authoritative"
	ModeSimulated     Mode = "simulated"
)

// DetectMode returns ModeAuthoritative when contractAddr is a 0x-prefixed,
// 42-character hex address other than the zero address, and ModeSimulated
// otherwise. It only looks at configuration.
func DetectMode(contractAddr string) Mode {
	contractAddr = strings.TrimSpace(contractAddr)
	if len(contractAddr) != 42 || !strings.HasPrefix(contractAddr, "0x") {
		return ModeSimulated
	}
	if !common.IsHexAddress(contractAddr) {
		return ModeSimulated
	}
	if common.HexToAddress(contractAddr) == (common.Address{}) {
		return ModeSimulated
	}
	return ModeAuthoritative
}

// Receipt identifies the settlement transaction behind a mutation.
type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	Mode        Mode        `json:"mode"`
	BlockNumber uint64      `json:"block_number,omitempty"`
}

// Gateway is the ledger capability: create, get, pay, balance, withdraw, plus
// the read-only listings built on them. Every implementation reports failures
// with the paylink sentinel errors.
//
// Mutations block until the backend has durably committed. A Gateway never
// retries a mutation on its own.
type Gateway interface {
	Mode() Mode

	// CreateInvoice allocates a new unpaid invoice and returns its snapshot.
	CreateInvoice(ctx context.Context, d invoice.Draft) (*invoice.Invoice, Receipt, error)
	// GetInvoice fails with paylink.ErrInvoiceNotFound when there is no record.
	GetInvoice(ctx context.Context, invID invoice.ID) (*invoice.Invoice, error)
	// PayInvoice marks the invoice paid by payer and credits the merchant
	// balance in one atomic step.
	PayInvoice(ctx context.Context, invID invoice.ID, payer common.Address) (*invoice.Invoice, Receipt, error)
	// GetBalance returns zero for an unseen key.
	GetBalance(ctx context.Context, key balance.Key) (types.Amount, error)
	// Withdraw debits req.Merchant's balance and records the transfer in one
	// atomic step.
	Withdraw(ctx context.Context, req balance.Request) (*balance.Withdrawal, Receipt, error)

	ListInvoices(ctx context.Context, merchant common.Address, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	Activity(ctx context.Context, merchant common.Address, opts activity.ListOpts) ([]activity.Event, error)

	Start(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
