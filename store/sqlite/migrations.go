package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the SQLite store.
//
// Amounts are TEXT base-unit integers; an 18-decimal amount overflows
// SQLite's INTEGER, so balances are never summed in SQL. Withdrawals carry a
// per-key sequence number whose unique index serializes debits across
// connections and processes.
var Migrations = migrate.NewGroup("paylink")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_paylink_invoices",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paylink_invoices (
    id         TEXT PRIMARY KEY,
    merchant   TEXT NOT NULL,
    token      TEXT NOT NULL,
    amount     TEXT NOT NULL,
    note       TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0,
    paid       INTEGER NOT NULL DEFAULT 0,
    payer      TEXT NOT NULL DEFAULT '',
    paid_at    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_paylink_invoices_merchant ON paylink_invoices (merchant, created_at);
CREATE INDEX IF NOT EXISTS idx_paylink_invoices_balance ON paylink_invoices (merchant, token, paid);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paylink_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_paylink_withdrawals",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paylink_withdrawals (
    id         TEXT PRIMARY KEY,
    merchant   TEXT NOT NULL,
    token      TEXT NOT NULL,
    amount     TEXT NOT NULL,
    recipient  TEXT NOT NULL,
    receipt    TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    seq        INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_paylink_withdrawals_seq ON paylink_withdrawals (merchant, token, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paylink_withdrawals`)
				return err
			},
		},
	)
}
