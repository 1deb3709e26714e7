package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	paylinkstore "github.com/xraph/paylink/store"
	"github.com/xraph/paylink/types"
)

// compile-time interface check
var _ paylinkstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// A balance is derived: paid invoices minus withdrawals for the key. Settling
// is a single conditional UPDATE and a withdrawal is one INSERT guarded by a
// unique per-key sequence number, so several connections or processes may
// share the database file.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// maxWithdrawAttempts bounds retries of a withdrawal that keeps losing the
// sequence race.
const maxWithdrawAttempts = 16

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("paylink/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("paylink/sqlite: migration failed: %w", err)
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
	res, err := s.sdb.NewInsert(toInvoiceModel(inv)).
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", invID.Hex()).
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
	q := s.sdb.NewSelect(&models).Where("merchant = ?", merchant.Hex())

	switch opts.Status {
	case invoice.StatusPaid:
		q = q.Where("paid = ?", true)
	case invoice.StatusUnpaid:
		q = q.Where("paid = ?", false)
	}
	q = page(q, opts.Limit, opts.Offset)
	q = q.OrderExpr("created_at DESC, rowid DESC")

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

func (s *Store) SettleInvoice(ctx context.Context, st invoice.Settlement) (*invoice.Invoice, error) {
	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("paid = ?", true).
		Set("payer = ?", st.Payer.Hex()).
		Set("paid_at = ?", st.PaidAt).
		Where("id = ?", st.InvoiceID.Hex()).
		Where("paid = ?", false).
		Where("(expires_at = 0 OR expires_at >= ?)", st.PaidAt).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	inv, err := s.GetInvoice(ctx, st.InvoiceID)
	if err != nil {
		return nil, err
	}
	if rows == 1 {
		return inv, nil
	}
	if inv.Paid {
		return nil, paylink.ErrInvoiceAlreadyPaid
	}
	if inv.Expired(st.PaidAt) {
		return nil, paylink.ErrInvoiceExpired
	}
	return nil, fmt.Errorf("paylink/sqlite: invoice %s was not settled", st.InvoiceID.Hex())
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, key balance.Key) (types.Amount, error) {
	bal, _, err := s.balance(ctx, key)
	return bal, err
}

// balance returns the balance of key and the sequence number of its latest
// withdrawal. Both sums are read in one transaction, so they come from the
// same snapshot.
func (s *Store) balance(ctx context.Context, key balance.Key) (types.Amount, int64, error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return types.Zero, 0, err
	}
	defer tx.Rollback() //nolint:errcheck // read only

	var paid []invoiceModel
	err = tx.NewSelect(&paid).
		Where("merchant = ?", key.Merchant.Hex()).
		Where("token = ?", string(key.Token)).
		Where("paid = ?", true).
		Scan(ctx)
	if err != nil {
		return types.Zero, 0, err
	}
	var withdrawn []withdrawalModel
	err = tx.NewSelect(&withdrawn).
		Where("merchant = ?", key.Merchant.Hex()).
		Where("token = ?", string(key.Token)).
		Scan(ctx)
	if err != nil {
		return types.Zero, 0, err
	}

	total := types.Zero
	for i := range paid {
		total = total.Add(paid[i].Amount)
	}
	var seq int64
	for i := range withdrawn {
		total = total.Sub(withdrawn[i].Amount)
		seq = max(seq, withdrawn[i].Seq)
	}
	return total, seq, nil
}

// Withdraw checks the balance and claims the next sequence number for the
// key. Sequence numbers are dense, so any withdrawal committed after the
// balance was read holds seq+1 and the claim conflicts; the check is then
// repeated against fresh state.
func (s *Store) Withdraw(ctx context.Context, w *balance.Withdrawal) error {
	for range maxWithdrawAttempts {
		current, seq, err := s.balance(ctx, w.Key())
		if err != nil {
			return err
		}
		if current.LessThan(w.Amount) {
			return paylink.ErrInsufficientBalance
		}
		res, err := s.sdb.NewInsert(&withdrawalModel{
			ID:        w.ID.String(),
			Merchant:  w.Merchant.Hex(),
			Token:     string(w.Token),
			Amount:    w.Amount,
			Recipient: w.Recipient.Hex(),
			Receipt:   w.Receipt.Hex(),
			CreatedAt: w.CreatedAt,
			Seq:       seq + 1,
		}).
			OnConflict("(merchant, token, seq) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 1 {
			return nil
		}
	}
	return fmt.Errorf("paylink/sqlite: withdrawal kept losing to concurrent debits: %w", paylink.ErrBackendUnavailable)
}

func (s *Store) ListWithdrawals(ctx context.Context, merchant common.Address, opts balance.ListOpts) ([]*balance.Withdrawal, error) {
	var models []withdrawalModel
	q := s.sdb.NewSelect(&models).Where("merchant = ?", merchant.Hex())
	q = page(q, opts.Limit, opts.Offset)
	q = q.OrderExpr("created_at DESC, rowid DESC")

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

// page applies limit and offset. SQLite only accepts OFFSET after a LIMIT,
// so an offset without a limit is paired with the largest one.
func page(q *sqlitedriver.SelectQuery, limit, offset int) *sqlitedriver.SelectQuery {
	if offset <= 0 {
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	}
	if limit <= 0 {
		limit = math.MaxInt
	}
	return q.Limit(limit).Offset(offset)
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
