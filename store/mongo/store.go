package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/paylink"
	"github.com/xraph/paylink/balance"
	"github.com/xraph/paylink/invoice"
	paylinkstore "github.com/xraph/paylink/store"
	"github.com/xraph/paylink/token"
	"github.com/xraph/paylink/types"
)

// Collection name constants.
const (
	colInvoices    = "paylink_invoices"
	colBalances    = "paylink_balances"
	colWithdrawals = "paylink_withdrawals"
)

// compile-time interface check
var _ paylinkstore.Store = (*Store)(nil)

// errNotSettled aborts a settlement transaction whose conditional update
// matched nothing.
var errNotSettled = errors.New("paylink/mongo: invoice not settled")

// Store implements store.Store using MongoDB via Grove ORM.
//
// Balances are Decimal128 counters. Settlement and withdrawal each run in a
// multi-document transaction, which requires a replica set or sharded cluster.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all paylink collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("paylink/mongo: migrate %s indexes: %w", col, err)
		}
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

// inTx runs fn in a transaction on a fresh session.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.mdb.Collection(colBalances).Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("paylink/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx)
	})
	return err
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return paylink.ErrInvoiceExists
		}
		return fmt.Errorf("paylink/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID invoice.ID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.Hex()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, paylink.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("paylink/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, merchant common.Address, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	filter := bson.M{"merchant": merchant.Hex()}
	switch opts.Status {
	case invoice.StatusPaid:
		filter["paid"] = true
	case invoice.StatusUnpaid:
		filter["paid"] = false
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("paylink/mongo: list invoices: %w", err)
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
	var settled invoiceModel
	err := s.inTx(ctx, func(txCtx context.Context) error {
		filter := bson.M{
			"_id":  st.InvoiceID.Hex(),
			"paid": false,
			"$or": bson.A{
				bson.M{"expires_at": 0},
				bson.M{"expires_at": bson.M{"$gte": st.PaidAt}},
			},
		}
		update := bson.M{"$set": bson.M{
			"paid":    true,
			"payer":   st.Payer.Hex(),
			"paid_at": st.PaidAt,
		}}
		err := s.mdb.Collection(colInvoices).
			FindOneAndUpdate(txCtx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
			Decode(&settled)
		if err != nil {
			if isNoDocuments(err) {
				return errNotSettled
			}
			return err
		}

		key := balance.Key{Merchant: common.HexToAddress(settled.Merchant), Token: token.Symbol(settled.Token)}
		_, err = s.mdb.Collection(colBalances).UpdateOne(txCtx,
			bson.M{"_id": key.String()},
			bson.M{
				"$inc":         bson.M{"amount": settled.Amount},
				"$setOnInsert": bson.M{"merchant": settled.Merchant, "token": settled.Token},
			},
			options.UpdateOne().SetUpsert(true),
		)
		return err
	})

	switch {
	case err == nil:
		return fromInvoiceModel(&settled)
	case !errors.Is(err, errNotSettled):
		return nil, fmt.Errorf("paylink/mongo: settle invoice: %w", err)
	}

	inv, err := s.GetInvoice(ctx, st.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Paid {
		return nil, paylink.ErrInvoiceAlreadyPaid
	}
	if inv.Expired(st.PaidAt) {
		return nil, paylink.ErrInvoiceExpired
	}
	return nil, errNotSettled
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, key balance.Key) (types.Amount, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Zero, nil
		}
		return types.Zero, fmt.Errorf("paylink/mongo: get balance: %w", err)
	}
	return fromDecimal128(m.Amount)
}

func (s *Store) Withdraw(ctx context.Context, w *balance.Withdrawal) error {
	m, err := toWithdrawalModel(w)
	if err != nil {
		return err
	}
	debit, err := negated(w.Amount)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(txCtx context.Context) error {
		res, err := s.mdb.Collection(colBalances).UpdateOne(txCtx,
			bson.M{"_id": w.Key().String(), "amount": bson.M{"$gte": m.Amount}},
			bson.M{"$inc": bson.M{"amount": debit}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return paylink.ErrInsufficientBalance
		}
		_, err = s.mdb.Collection(colWithdrawals).InsertOne(txCtx, bson.M{
			"_id":        m.ID,
			"merchant":   m.Merchant,
			"token":      m.Token,
			"amount":     m.Amount,
			"recipient":  m.Recipient,
			"receipt":    m.Receipt,
			"created_at": m.CreatedAt,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, paylink.ErrInsufficientBalance) {
			return err
		}
		return fmt.Errorf("paylink/mongo: withdraw: %w", err)
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, merchant common.Address, opts balance.ListOpts) ([]*balance.Withdrawal, error) {
	var models []withdrawalModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{"merchant": merchant.Hex()}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("paylink/mongo: list withdrawals: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all paylink collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvoices: {
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "paid", Value: 1}}},
		},
		colBalances: {
			{
				Keys:    bson.D{{Key: "merchant", Value: 1}, {Key: "token", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
