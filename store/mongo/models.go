package mongo

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/id"
	"github.com/xraph/paylink/invoice"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:paylink_invoices"`

	ID        string          `grove:"id,pk"      bson:"_id"`
	Merchant  string          `grove:"merchant"   bson:"merchant"`
	Token     string          `grove:"token"      bson:"token"`
	Amount    bson.Decimal128 `grove:"amount"     bson:"amount"`
	Note      string          `grove:"note"       bson:"note"`
	CreatedAt int64           `grove:"created_at" bson:"created_at"`
	ExpiresAt int64           `grove:"expires_at" bson:"expires_at"`
	Paid      bool            `grove:"paid"       bson:"paid"`
	Payer     string          `grove:"payer"      bson:"payer"`
	PaidAt    int64           `grove:"paid_at"    bson:"paid_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	amount, err := toDecimal128(inv.Amount)
	if err != nil {
		return nil, err
	}
	return &invoiceModel{
		ID:        inv.ID.Hex(),
		Merchant:  inv.Merchant.Hex(),
		Token:     string(inv.Token),
		Amount:    amount,
		Note:      inv.Note,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
		Paid:      inv.Paid,
		Payer:     inv.Payer.Hex(),
		PaidAt:    inv.PaidAt,
	}, nil
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := invoice.ParseID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := fromDecimal128(m.Amount)
	if err != nil {
		return nil, err
	}
	return &invoice.Invoice{
		ID:        invID,
		Merchant:  common.HexToAddress(m.Merchant),
		Token:     token.Symbol(m.Token),
		Amount:    amount,
		Note:      m.Note,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		Paid:      m.Paid,
		Payer:     common.HexToAddress(m.Payer),
		PaidAt:    m.PaidAt,
	}, nil
}

// ==================== Balance models ====================

// balanceModel is a running counter keyed by balance.Key.String().
type balanceModel struct {
	grove.BaseModel `grove:"table:paylink_balances"`

	ID       string          `grove:"id,pk"    bson:"_id"`
	Merchant string          `grove:"merchant" bson:"merchant"`
	Token    string          `grove:"token"    bson:"token"`
	Amount   bson.Decimal128 `grove:"amount"   bson:"amount"`
}

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:paylink_withdrawals"`

	ID        string          `grove:"id,pk"      bson:"_id"`
	Merchant  string          `grove:"merchant"   bson:"merchant"`
	Token     string          `grove:"token"      bson:"token"`
	Amount    bson.Decimal128 `grove:"amount"     bson:"amount"`
	Recipient string          `grove:"recipient"  bson:"recipient"`
	Receipt   string          `grove:"receipt"    bson:"receipt"`
	CreatedAt int64           `grove:"created_at" bson:"created_at"`
}

func toWithdrawalModel(w *balance.Withdrawal) (*withdrawalModel, error) {
	amount, err := toDecimal128(w.Amount)
	if err != nil {
		return nil, err
	}
	return &withdrawalModel{
		ID:        w.ID.String(),
		Merchant:  w.Merchant.Hex(),
		Token:     string(w.Token),
		Amount:    amount,
		Recipient: w.Recipient.Hex(),
		Receipt:   w.Receipt.Hex(),
		CreatedAt: w.CreatedAt,
	}, nil
}

func fromWithdrawalModel(m *withdrawalModel) (*balance.Withdrawal, error) {
	wID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := fromDecimal128(m.Amount)
	if err != nil {
		return nil, err
	}
	return &balance.Withdrawal{
		ID:        wID,
		Merchant:  common.HexToAddress(m.Merchant),
		Token:     token.Symbol(m.Token),
		Amount:    amount,
		Recipient: common.HexToAddress(m.Recipient),
		Receipt:   common.HexToHash(m.Receipt),
		CreatedAt: m.CreatedAt,
	}, nil
}

// ==================== Amount conversion ====================

// toDecimal128 encodes base units with exponent 0. Decimal128 holds 34
// significant digits, about 10^16 whole tokens at 18 decimals.
func toDecimal128(a types.Amount) (bson.Decimal128, error) {
	d, ok := bson.ParseDecimal128FromBigInt(a.BigInt(), 0)
	if !ok {
		return bson.Decimal128{}, fmt.Errorf("paylink/mongo: amount %s exceeds decimal128 range", a.UnitsString())
	}
	return d, nil
}

func fromDecimal128(d bson.Decimal128) (types.Amount, error) {
	bi, exp, err := d.BigInt()
	if err != nil {
		return types.Zero, fmt.Errorf("paylink/mongo: decode amount: %w", err)
	}
	if exp < 0 {
		return types.Zero, fmt.Errorf("paylink/mongo: fractional base-unit amount %s", d.String())
	}
	if exp > 0 {
		bi.Mul(bi, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
	}
	return types.NewAmount(bi), nil
}

func negated(a types.Amount) (bson.Decimal128, error) {
	return toDecimal128(types.Zero.Sub(a))
}
