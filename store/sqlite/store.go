package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	bursarstore "github.com/xraph/bursar/store"
	"github.com/xraph/bursar/store/internal/sqlmodel"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/tenant"
)

// compile-time interface check
var _ bursarstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DSN builds a modernc.org/sqlite DSN for the database file at path with a
// busy timeout and WAL journaling.
func DSN(path string) string {
	q := url.Values{"_pragma": {"busy_timeout(30000)", "journal_mode(WAL)", "synchronous(NORMAL)"}}
	return "file:" + path + "?" + q.Encode()
}

// Open connects to dsn and wraps the connection in a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sdb := sqlitedriver.New()
	// One connection serialises writers; busy_timeout in the DSN covers
	// readers from other processes.
	if err := sdb.Open(ctx, dsn, driver.WithPoolSize(1)); err != nil {
		return nil, fmt.Errorf("bursar/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("bursar/sqlite: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("bursar/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bursar/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", bursar.ErrStoreNotReady, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Tenant Store ====================

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	_, err := s.sdb.NewInsert(sqlmodel.FromTenant(t)).Exec(ctx)
	if _, dup := uniqueViolation(err); dup {
		return fmt.Errorf("%w: tenant %s", bursar.ErrAlreadyExists, t.ID)
	}
	return err
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	m := new(sqlmodel.Tenant)
	err := s.sdb.NewSelect(m).
		Where("id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrTenantNotFound
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	res, err := s.sdb.NewUpdate(sqlmodel.FromTenant(t)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return affected(res, bursar.ErrTenantNotFound)
}

func (s *Store) ListTenants(ctx context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	var models []sqlmodel.Tenant
	q := s.sdb.NewSelect(&models)
	if opts.EditionID != "" {
		q = q.Where("edition_id = ?", opts.EditionID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Tenant).Domain)
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.sdb.NewInsert(sqlmodel.FromPlan(p)).Exec(ctx)
	return planWriteErr(err, p)
}

func planWriteErr(err error, p *plan.Plan) error {
	constraint, dup := uniqueViolation(err)
	switch {
	case !dup:
		return err
	case constraint == sqlmodel.IndexPlanName:
		return fmt.Errorf("%w: %q", bursar.ErrDuplicatePlanName, p.Name)
	default:
		return fmt.Errorf("%w: plan %s", bursar.ErrAlreadyExists, p.ID)
	}
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(sqlmodel.Plan)
	err := s.sdb.NewSelect(m).
		Where("id = ?", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrPlanNotFound
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) GetPlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	m := new(sqlmodel.Plan)
	err := s.sdb.NewSelect(m).
		Where("name = ? COLLATE NOCASE", strings.TrimSpace(name)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrPlanNotFound
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []sqlmodel.Plan
	q := s.sdb.NewSelect(&models)
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Plan).Domain)
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	res, err := s.sdb.NewUpdate(sqlmodel.FromPlan(p)).WherePK().Exec(ctx)
	if err != nil {
		return planWriteErr(err, p)
	}
	return affected(res, bursar.ErrPlanNotFound)
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.sdb.NewInsert(sqlmodel.FromSubscription(sub)).Exec(ctx)
	if _, dup := uniqueViolation(err); dup {
		return fmt.Errorf("%w: subscription %s", bursar.ErrAlreadyExists, sub.ID)
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(sqlmodel.Subscription)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) GetSubscriptionByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	m := new(sqlmodel.Subscription)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []sqlmodel.Subscription
	q := s.sdb.NewSelect(&models)

	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}
	if !opts.PlanID.IsNil() {
		q = q.Where("plan_id = ?", opts.PlanID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Subscription).Domain)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.sdb.NewUpdate(sqlmodel.FromSubscription(sub)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return affected(res, bursar.ErrSubscriptionNotFound)
}

// ==================== Entitlement Grant Store ====================

// UpsertGrant keeps the id and created_at of an existing row for the same
// tenant and module.
func (s *Store) UpsertGrant(ctx context.Context, g *entitlement.Grant) error {
	_, err := s.sdb.NewInsert(sqlmodel.FromGrant(g)).
		OnConflict("(tenant_id, module_key) DO UPDATE").
		Set("enabled = excluded.enabled").
		Set("source_plan_id = excluded.source_plan_id").
		Set("updated_at = excluded.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetGrant(ctx context.Context, tenantID string, key catalog.ModuleKey) (*entitlement.Grant, error) {
	m := new(sqlmodel.Grant)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("module_key = ?", string(key)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: grant %s/%s", bursar.ErrNotFound, tenantID, key)
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) ListGrants(ctx context.Context, tenantID string) ([]*entitlement.Grant, error) {
	var models []sqlmodel.Grant
	err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		OrderExpr("module_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Grant).Domain)
}

func (s *Store) ListGrantsBySource(ctx context.Context, tenantID string, planID id.PlanID) ([]*entitlement.Grant, error) {
	var models []sqlmodel.Grant
	err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("source_plan_id = ?", planID.String()).
		OrderExpr("module_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Grant).Domain)
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := s.sdb.NewInsert(sqlmodel.FromInvoice(inv)).Exec(ctx)
	constraint, dup := uniqueViolation(err)
	switch {
	case !dup:
		return err
	case constraint == sqlmodel.IndexInvoicePeriod:
		return fmt.Errorf("%w: %s to %s", bursar.ErrDuplicatePeriod,
			inv.PeriodStart.Format(time.DateOnly), inv.PeriodEnd.Format(time.DateOnly))
	default:
		return fmt.Errorf("%w: invoice %s", bursar.ErrAlreadyExists, inv.InvoiceNumber)
	}
}

func (s *Store) GetInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(sqlmodel.Invoice)
	err := s.sdb.NewSelect(m).
		Where("id = ?", invID.String()).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrInvoiceNotFound
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []sqlmodel.Invoice
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.Start.IsZero() {
		q = q.Where("period_start >= ?", opts.Start.UTC())
	}
	if !opts.End.IsZero() {
		q = q.Where("period_end <= ?", opts.End.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("period_start DESC, created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Invoice).Domain)
}

// UpdateInvoice is a compare-and-set on status: the row is only written
// while its stored status still equals from.
func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error {
	res, err := s.sdb.NewUpdate(sqlmodel.FromInvoice(inv)).
		WherePK().
		Where("tenant_id = ?", inv.TenantID).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		if _, dup := uniqueViolation(err); dup {
			return fmt.Errorf("%w: %s", bursar.ErrDuplicatePeriod, inv.InvoiceNumber)
		}
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	cur, err := s.GetInvoice(ctx, inv.TenantID, inv.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: invoice %s is %s, expected %s",
		bursar.ErrConcurrentModification, inv.ID, cur.Status, from)
}

func (s *Store) FindActiveInvoiceForPeriod(ctx context.Context, tenantID, editionID string, start, end time.Time) (*invoice.Invoice, error) {
	m := new(sqlmodel.Invoice)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("edition_id = ?", editionID).
		Where("period_start = ?", start.UTC()).
		Where("period_end = ?", end.UTC()).
		Where("status <> ?", string(invoice.StatusVoid)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrInvoiceNotFound
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) InvoiceTenant(ctx context.Context, invID id.InvoiceID) (string, error) {
	var tenantID string
	err := s.sdb.NewRaw(`SELECT tenant_id FROM bursar_invoices WHERE id = ?`, invID.String()).
		Scan(ctx, &tenantID)
	if err != nil {
		if isNoRows(err) {
			return "", bursar.ErrInvoiceNotFound
		}
		return "", err
	}
	return tenantID, nil
}

func (s *Store) ListInvoicesDue(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	var models []sqlmodel.Invoice
	q := s.sdb.NewSelect(&models).
		Where("status = ?", string(invoice.StatusIssued)).
		Where("due_date IS NOT NULL").
		Where("due_date < ?", asOf.UTC()).
		OrderExpr("due_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Invoice).Domain)
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.sdb.NewInsert(sqlmodel.FromPayment(p)).Exec(ctx)
	if _, dup := uniqueViolation(err); dup {
		return fmt.Errorf("%w: payment %s/%s", bursar.ErrAlreadyExists, p.Gateway, p.ExternalID)
	}
	return err
}

func (s *Store) GetPayment(ctx context.Context, tenantID string, paymentID id.PaymentID) (*payment.Payment, error) {
	m := new(sqlmodel.Payment)
	err := s.sdb.NewSelect(m).
		Where("id = ?", paymentID.String()).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrPaymentNotFound
		}
		return nil, err
	}
	return m.Domain()
}

func (s *Store) GetPaymentByExternalID(ctx context.Context, gateway, externalID string) (*payment.Payment, error) {
	m := new(sqlmodel.Payment)
	err := s.sdb.NewSelect(m).
		Where("gateway = ?", gateway).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bursar.ErrPaymentNotFound
		}
		return nil, err
	}
	return m.Domain()
}

// UpdatePayment writes the mutable payment fields. The invoice link is set
// once: a stored link is never replaced, and p.InvoiceID is refreshed from
// the row so callers see a link committed by a concurrent delivery.
func (s *Store) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	m := sqlmodel.FromPayment(p)
	var invoiceID string
	err := s.sdb.NewRaw(`UPDATE bursar_payments SET
    invoice_id      = COALESCE(NULLIF(invoice_id, ''), ?),
    amount          = ?,
    currency        = ?,
    external_type   = ?,
    status          = ?,
    failure_code    = ?,
    failure_message = ?,
    metadata        = ?,
    updated_at      = ?
WHERE id = ? AND tenant_id = ?
RETURNING invoice_id`,
		m.InvoiceID, m.Amount, m.Currency, m.ExternalType, m.Status,
		m.FailureCode, m.FailureMessage, m.Metadata, m.UpdatedAt,
		m.ID, m.TenantID,
	).Scan(ctx, &invoiceID)
	if err != nil {
		if isNoRows(err) {
			return bursar.ErrPaymentNotFound
		}
		return err
	}
	p.InvoiceID, err = id.ParseOptional(invoiceID, id.PrefixInvoice)
	return err
}

func (s *Store) ListPaymentsByInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) ([]*payment.Payment, error) {
	var models []sqlmodel.Payment
	err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("invoice_id = ?", invID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Payment).Domain)
}

func (s *Store) ListPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []sqlmodel.Payment
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID)
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return sqlmodel.Each(models, (*sqlmodel.Payment).Domain)
}

// ==================== Helpers ====================

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, grove.ErrNoRows)
}

const uniqueFailed = "UNIQUE constraint failed: "

// uniqueIndexes maps the column list SQLite reports for a unique violation
// to the index that enforces it.
var uniqueIndexes = map[string]string{
	"bursar_plans.name": sqlmodel.IndexPlanName,
	"bursar_invoices.tenant_id, bursar_invoices.edition_id, bursar_invoices.period_start, bursar_invoices.period_end": sqlmodel.IndexInvoicePeriod,
	"bursar_invoices.tenant_id, bursar_invoices.invoice_number":                                                       sqlmodel.IndexInvoiceNumber,
	"bursar_payments.gateway, bursar_payments.external_id":                                                            sqlmodel.IndexPaymentExternal,
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and, if
// so, the name of the index behind it. Primary key collisions report the
// raw column list.
func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	i := strings.Index(msg, uniqueFailed)
	if i < 0 {
		return "", false
	}
	cols := msg[i+len(uniqueFailed):]
	if j := strings.Index(cols, " ("); j >= 0 {
		cols = cols[:j]
	}
	if name, ok := uniqueIndexes[cols]; ok {
		return name, true
	}
	if strings.HasPrefix(cols, "index '") {
		return strings.TrimSuffix(strings.TrimPrefix(cols, "index '"), "'"), true
	}
	return cols, true
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func affected(res rowsAffecter, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
