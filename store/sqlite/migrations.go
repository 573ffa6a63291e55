package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Bursar store (SQLite).
var Migrations = migrate.NewGroup("bursar")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_bursar_tenants",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bursar_tenants (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    edition_id  TEXT NOT NULL DEFAULT '',
    metadata    TEXT NOT NULL DEFAULT '{}',
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bursar_tenants_edition ON bursar_tenants (edition_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bursar_tenants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bursar_plans",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bursar_plans (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL COLLATE NOCASE,
    description      TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'active',
    currency         TEXT NOT NULL DEFAULT '',
    price            INTEGER NOT NULL DEFAULT 0,
    billing_interval TEXT NOT NULL DEFAULT 'monthly',
    modules          TEXT NOT NULL DEFAULT '[]',
    created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_plans_name ON bursar_plans (name);
CREATE INDEX IF NOT EXISTS idx_bursar_plans_status ON bursar_plans (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bursar_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bursar_subscriptions",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bursar_subscriptions (
    id                   TEXT PRIMARY KEY,
    tenant_id            TEXT NOT NULL,
    plan_id              TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'active',
    billing_email        TEXT NOT NULL DEFAULT '',
    payment_method       TEXT NOT NULL DEFAULT '',
    payment_reference    TEXT NOT NULL DEFAULT '',
    current_period_start TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    current_period_end   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    canceled_at          TIMESTAMP,
    charges              TEXT NOT NULL DEFAULT '[]',
    created_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bursar_subs_tenant ON bursar_subscriptions (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_bursar_subs_plan ON bursar_subscriptions (plan_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bursar_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bursar_grants",
			Version: "20250301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bursar_grants (
    id             TEXT PRIMARY KEY,
    tenant_id      TEXT NOT NULL,
    module_key     TEXT NOT NULL,
    enabled        INTEGER NOT NULL DEFAULT 0,
    source_plan_id TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_grants_key ON bursar_grants (tenant_id, module_key);
CREATE INDEX IF NOT EXISTS idx_bursar_grants_source ON bursar_grants (tenant_id, source_plan_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bursar_grants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bursar_invoices",
			Version: "20250301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bursar_invoices (
    id             TEXT PRIMARY KEY,
    tenant_id      TEXT NOT NULL,
    edition_id     TEXT NOT NULL DEFAULT '',
    invoice_number TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'draft',
    currency       TEXT NOT NULL DEFAULT '',
    subtotal       INTEGER NOT NULL DEFAULT 0,
    tax            INTEGER NOT NULL DEFAULT 0,
    discount       INTEGER NOT NULL DEFAULT 0,
    total          INTEGER NOT NULL DEFAULT 0,
    line_items     TEXT NOT NULL DEFAULT '[]',
    period_start   TIMESTAMP NOT NULL,
    period_end     TIMESTAMP NOT NULL,
    due_date       TIMESTAMP,
    issued_at      TIMESTAMP,
    paid_at        TIMESTAMP,
    voided_at      TIMESTAMP,
    payment_id     TEXT NOT NULL DEFAULT '',
    metadata       TEXT NOT NULL DEFAULT '{}',
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_invoices_number ON bursar_invoices (tenant_id, invoice_number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_invoices_period
    ON bursar_invoices (tenant_id, edition_id, period_start, period_end)
    WHERE status <> 'void';
CREATE INDEX IF NOT EXISTS idx_bursar_invoices_tenant ON bursar_invoices (tenant_id, period_start);
CREATE INDEX IF NOT EXISTS idx_bursar_invoices_due ON bursar_invoices (due_date) WHERE status = 'issued';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bursar_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bursar_payments",
			Version: "20250301000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bursar_payments (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    invoice_id      TEXT NOT NULL DEFAULT '',
    amount          INTEGER NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT '',
    gateway         TEXT NOT NULL,
    external_id     TEXT NOT NULL,
    external_type   TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending',
    failure_code    TEXT NOT NULL DEFAULT '',
    failure_message TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_payments_external ON bursar_payments (gateway, external_id);
CREATE INDEX IF NOT EXISTS idx_bursar_payments_tenant ON bursar_payments (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_bursar_payments_invoice ON bursar_payments (tenant_id, invoice_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bursar_payments`)
				return err
			},
		},
	)
}
