package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the PostgreSQL store.
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
    amount     NUMERIC(78,0) NOT NULL CHECK (amount > 0),
    note       TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    expires_at BIGINT NOT NULL DEFAULT 0,
    paid       BOOLEAN NOT NULL DEFAULT FALSE,
    payer      TEXT NOT NULL DEFAULT '',
    paid_at    BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_paylink_invoices_merchant ON paylink_invoices (merchant, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_paylink_invoices_paid_at ON paylink_invoices (merchant, paid_at) WHERE paid;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paylink_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_paylink_balances",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paylink_balances (
    merchant TEXT NOT NULL,
    token    TEXT NOT NULL,
    amount   NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (amount >= 0),
    PRIMARY KEY (merchant, token)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paylink_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_paylink_withdrawals",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paylink_withdrawals (
    id         TEXT PRIMARY KEY,
    merchant   TEXT NOT NULL,
    token      TEXT NOT NULL,
    amount     NUMERIC(78,0) NOT NULL CHECK (amount > 0),
    recipient  TEXT NOT NULL,
    receipt    TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_paylink_withdrawals_merchant ON paylink_withdrawals (merchant, created_at DESC);
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
