package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Bursar store.
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
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    name             TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'active',
    currency         TEXT NOT NULL DEFAULT '',
    price            BIGINT NOT NULL DEFAULT 0,
    billing_interval TEXT NOT NULL DEFAULT 'monthly',
    modules          JSONB NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_plans_name ON bursar_plans (LOWER(name));
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
    current_period_start TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    current_period_end   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    canceled_at          TIMESTAMPTZ,
    charges              JSONB NOT NULL DEFAULT '[]',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bursar_subs_tenant ON bursar_subscriptions (tenant_id, created_at DESC);
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
    enabled        BOOLEAN NOT NULL DEFAULT FALSE,
    source_plan_id TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    subtotal       BIGINT NOT NULL DEFAULT 0,
    tax            BIGINT NOT NULL DEFAULT 0,
    discount       BIGINT NOT NULL DEFAULT 0,
    total          BIGINT NOT NULL DEFAULT 0,
    line_items     JSONB NOT NULL DEFAULT '[]',
    period_start   TIMESTAMPTZ NOT NULL,
    period_end     TIMESTAMPTZ NOT NULL,
    due_date       TIMESTAMPTZ,
    issued_at      TIMESTAMPTZ,
    paid_at        TIMESTAMPTZ,
    voided_at      TIMESTAMPTZ,
    payment_id     TEXT NOT NULL DEFAULT '',
    metadata       JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_invoices_number ON bursar_invoices (tenant_id, invoice_number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_invoices_period
    ON bursar_invoices (tenant_id, edition_id, period_start, period_end)
    WHERE status <> 'void';
CREATE INDEX IF NOT EXISTS idx_bursar_invoices_tenant ON bursar_invoices (tenant_id, period_start DESC);
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
    amount          BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT '',
    gateway         TEXT NOT NULL,
    external_id     TEXT NOT NULL,
    external_type   TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending',
    failure_code    TEXT NOT NULL DEFAULT '',
    failure_message TEXT NOT NULL DEFAULT '',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bursar_payments_external ON bursar_payments (gateway, external_id);
CREATE INDEX IF NOT EXISTS idx_bursar_payments_tenant ON bursar_payments (tenant_id, created_at DESC);
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
