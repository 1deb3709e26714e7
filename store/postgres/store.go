package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	paylinkstore "github.com/xraph/paylink/store"
	"github.com/xraph/paylink/types"
)

// compile-time interface check
var _ paylinkstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Balances are NUMERIC counters. Settlement and withdrawal each run as one
// statement built from data-modifying CTEs, so the row-level write locks
// PostgreSQL takes on the invoice or balance row serialize concurrent callers.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("paylink/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("paylink/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	res, err := s.pg.NewInsert(toInvoiceModel(inv)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return paylink.ErrInvoiceExists
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID invoice.ID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.Hex()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, paylink.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, merchant common.Address, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models).Where("merchant = $1", merchant.Hex())

	switch opts.Status {
	case invoice.StatusPaid:
		q = q.Where("paid = $2", true)
	case invoice.StatusUnpaid:
		q = q.Where("paid = $2", false)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

const settleSQL = `
WITH paid AS (
    UPDATE paylink_invoices
    SET paid = TRUE, payer = $2, paid_at = $3
    WHERE id = $1 AND paid = FALSE AND (expires_at = 0 OR expires_at >= $3)
    RETURNING merchant, token, amount
), credited AS (
    INSERT INTO paylink_balances (merchant, token, amount)
    SELECT merchant, token, amount FROM paid
    ON CONFLICT (merchant, token) DO UPDATE SET amount = paylink_balances.amount + EXCLUDED.amount
    RETURNING 1
)
SELECT COUNT(*) FROM paid`

func (s *Store) SettleInvoice(ctx context.Context, st invoice.Settlement) (*invoice.Invoice, error) {
	var settled int64
	err := s.pg.NewRaw(settleSQL, st.InvoiceID.Hex(), st.Payer.Hex(), st.PaidAt).Scan(ctx, &settled)
	if err != nil {
		return nil, err
	}
	inv, err := s.GetInvoice(ctx, st.InvoiceID)
	if err != nil {
		return nil, err
	}
	if settled == 1 {
		return inv, nil
	}
	// Nothing matched: the invoice was already paid or has expired.
	if inv.Paid {
		return nil, paylink.ErrInvoiceAlreadyPaid
	}
	if inv.Expired(st.PaidAt) {
		return nil, paylink.ErrInvoiceExpired
	}
	return nil, fmt.Errorf("paylink/postgres: invoice %s was not settled", st.InvoiceID.Hex())
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, key balance.Key) (types.Amount, error) {
	var units string
	err := s.pg.NewRaw(`
		SELECT COALESCE((SELECT amount FROM paylink_balances WHERE merchant = $1 AND token = $2), 0)::text
	`, key.Merchant.Hex(), string(key.Token)).Scan(ctx, &units)
	if err != nil {
		return types.Zero, err
	}
	return types.ParseUnits(units)
}

const withdrawSQL = `
WITH debited AS (
    UPDATE paylink_balances
    SET amount = amount - $4::numeric
    WHERE merchant = $2 AND token = $3 AND amount >= $4::numeric
    RETURNING merchant
), recorded AS (
    INSERT INTO paylink_withdrawals (id, merchant, token, amount, recipient, receipt, created_at)
    SELECT $1::text, $2::text, $3::text, $4::numeric, $5::text, $6::text, $7::bigint FROM debited
    RETURNING id
)
SELECT COUNT(*) FROM recorded`

func (s *Store) Withdraw(ctx context.Context, w *balance.Withdrawal) error {
	var recorded int64
	err := s.pg.NewRaw(withdrawSQL,
		w.ID.String(),
		w.Merchant.Hex(),
		string(w.Token),
		w.Amount.UnitsString(),
		w.Recipient.Hex(),
		w.Receipt.Hex(),
		w.CreatedAt,
	).Scan(ctx, &recorded)
	if err != nil {
		return err
	}
	if recorded == 0 {
		return paylink.ErrInsufficientBalance
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, merchant common.Address, opts balance.ListOpts) ([]*balance.Withdrawal, error) {
	var models []withdrawalModel
	q := s.pg.NewSelect(&models).Where("merchant = $1", merchant.Hex())
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*balance.Withdrawal, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
