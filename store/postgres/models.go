package postgres

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/id"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:paylink_invoices"`

	ID        string       `grove:"id,pk"`
	Merchant  string       `grove:"merchant"`
	Token     string       `grove:"token"`
	Amount    types.Amount `grove:"amount"`
	Note      string       `grove:"note"`
	CreatedAt int64        `grove:"created_at"`
	ExpiresAt int64        `grove:"expires_at"`
	Paid      bool         `grove:"paid"`
	Payer     string       `grove:"payer"`
	PaidAt    int64        `grove:"paid_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	return &invoiceModel{
		ID:        inv.ID.Hex(),
		Merchant:  inv.Merchant.Hex(),
		Token:     string(inv.Token),
		Amount:    inv.Amount,
		Note:      inv.Note,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
		Paid:      inv.Paid,
		Payer:     inv.Payer.Hex(),
		PaidAt:    inv.PaidAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := invoice.ParseID(m.ID)
	if err != nil {
		return nil, err
	}
	return &invoice.Invoice{
		ID:        invID,
		Merchant:  common.HexToAddress(m.Merchant),
		Token:     token.Symbol(m.Token),
		Amount:    m.Amount,
		Note:      m.Note,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		Paid:      m.Paid,
		Payer:     common.HexToAddress(m.Payer),
		PaidAt:    m.PaidAt,
	}, nil
}

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:paylink_withdrawals"`

	ID        string       `grove:"id,pk"`
	Merchant  string       `grove:"merchant"`
	Token     string       `grove:"token"`
	Amount    types.Amount `grove:"amount"`
	Recipient string       `grove:"recipient"`
	Receipt   string       `grove:"receipt"`
	CreatedAt int64        `grove:"created_at"`
}

func fromWithdrawalModel(m *withdrawalModel) (*balance.Withdrawal, error) {
	wID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	return &balance.Withdrawal{
		ID:        wID,
		Merchant:  common.HexToAddress(m.Merchant),
		Token:     token.Symbol(m.Token),
		Amount:    m.Amount,
		Recipient: common.HexToAddress(m.Recipient),
		Receipt:   common.HexToHash(m.Receipt),
		CreatedAt: m.CreatedAt,
	}, nil
}
