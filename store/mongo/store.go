package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	bursarstore "github.com/xraph/bursar/store"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/tenant"
)

// Collection name constants.
const (
	colTenants       = "bursar_tenants"
	colPlans         = "bursar_plans"
	colSubscriptions = "bursar_subscriptions"
	colGrants        = "bursar_grants"
	colInvoices      = "bursar_invoices"
	colPayments      = "bursar_payments"
)

// Unique index names, matched against duplicate key errors.
const (
	idxPlanName        = "uniq_plan_name"
	idxGrantKey        = "uniq_grant_key"
	idxInvoiceNumber   = "uniq_invoice_number"
	idxInvoicePeriod   = "uniq_invoice_period"
	idxPaymentExternal = "uniq_payment_external"
)

// compile-time interface check
var _ bursarstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
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

// Open connects to the MongoDB deployment at uri. The database name comes
// from the URI path unless database is non-empty.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	var opts []mongodriver.MongoOption
	if database != "" {
		opts = append(opts, mongodriver.WithDatabase(database))
	}
	mdb := mongodriver.New()
	if err := mdb.Open(ctx, uri, opts...); err != nil {
		return nil, fmt.Errorf("bursar/mongo: open: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("bursar/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all bursar collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("bursar/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toTenantModel(t)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: tenant %s", bursar.ErrAlreadyExists, t.ID)
		}
		return fmt.Errorf("bursar/mongo: create tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	var m tenantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bursar.ErrTenantNotFound
		}
		return nil, fmt.Errorf("bursar/mongo: get tenant: %w", err)
	}
	return fromTenantModel(&m), nil
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	m := toTenantModel(t)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bursar/mongo: update tenant: %w", err)
	}
	if res.MatchedCount() == 0 {
		return bursar.ErrTenantNotFound
	}
	return nil
}

func (s *Store) ListTenants(ctx context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	var models []tenantModel

	filter := bson.M{}
	if opts.EditionID != "" {
		filter["edition_id"] = opts.EditionID
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bursar/mongo: list tenants: %w", err)
	}

	result := make([]*tenant.Tenant, len(models))
	for i := range models {
		result[i] = fromTenantModel(&models[i])
	}
	return result, nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.mdb.NewInsert(toPlanModel(p)).Exec(ctx)
	if err != nil {
		return planWriteErr("create plan", err, p)
	}
	return nil
}

func planWriteErr(op string, err error, p *plan.Plan) error {
	switch {
	case isDuplicate(err, idxPlanName):
		return fmt.Errorf("%w: %q", bursar.ErrDuplicatePlanName, p.Name)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: plan %s", bursar.ErrAlreadyExists, p.ID)
	default:
		return fmt.Errorf("bursar/mongo: %s: %w", op, err)
	}
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return s.findPlan(ctx, bson.M{"_id": planID.String()})
}

func (s *Store) GetPlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	return s.findPlan(ctx, bson.M{"name_key": nameKey(name)})
}

func (s *Store) findPlan(ctx context.Context, filter bson.M) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bursar.ErrPlanNotFound
		}
		return nil, fmt.Errorf("bursar/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "name", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bursar/mongo: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return planWriteErr("update plan", err, p)
	}
	if res.MatchedCount() == 0 {
		return bursar.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: subscription %s", bursar.ErrAlreadyExists, sub.ID)
		}
		return fmt.Errorf("bursar/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bursar.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("bursar/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetSubscriptionByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID}).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bursar.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("bursar/mongo: get tenant subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if !opts.PlanID.IsNil() {
		filter["plan_id"] = opts.PlanID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bursar/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bursar/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return bursar.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Entitlement Grant Store ====================

// UpsertGrant keys on (tenant_id, module_key); the _id and created_at of an
// existing grant are kept.
func (s *Store) UpsertGrant(ctx context.Context, g *entitlement.Grant) error {
	_, err := s.mdb.NewUpdate((*grantModel)(nil)).
		Filter(bson.M{"tenant_id": g.TenantID, "module_key": string(g.ModuleKey)}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"enabled":        g.Enabled,
				"source_plan_id": g.SourcePlanID.String(),
				"updated_at":     g.UpdatedAt.UTC(),
			},
			"$setOnInsert": bson.M{
				"_id":        g.ID.String(),
				"created_at": g.CreatedAt.UTC(),
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bursar/mongo: upsert grant: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, tenantID string, key catalog.ModuleKey) (*entitlement.Grant, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "module_key": string(key)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: grant %s/%s", bursar.ErrNotFound, tenantID, key)
		}
		return nil, fmt.Errorf("bursar/mongo: get grant: %w", err)
	}
	return fromGrantModel(&m)
}

func (s *Store) ListGrants(ctx context.Context, tenantID string) ([]*entitlement.Grant, error) {
	return s.listGrants(ctx, bson.M{"tenant_id": tenantID})
}

func (s *Store) ListGrantsBySource(ctx context.Context, tenantID string, planID id.PlanID) ([]*entitlement.Grant, error) {
	return s.listGrants(ctx, bson.M{"tenant_id": tenantID, "source_plan_id": planID.String()})
}

func (s *Store) listGrants(ctx context.Context, filter bson.M) ([]*entitlement.Grant, error) {
	var models []grantModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "module_key", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bursar/mongo: list grants: %w", err)
	}

	result := make([]*entitlement.Grant, len(models))
	for i := range models {
		g, err := fromGrantModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = g
	}
	return result, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := s.mdb.NewInsert(toInvoiceModel(inv)).Exec(ctx)
	if err != nil {
		return invoiceWriteErr("create invoice", err, inv)
	}
	return nil
}

func invoiceWriteErr(op string, err error, inv *invoice.Invoice) error {
	switch {
	case isDuplicate(err, idxInvoicePeriod):
		return fmt.Errorf("%w: %s to %s", bursar.ErrDuplicatePeriod,
			inv.PeriodStart.Format(time.DateOnly), inv.PeriodEnd.Format(time.DateOnly))
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: invoice %s", bursar.ErrAlreadyExists, inv.InvoiceNumber)
	default:
		return fmt.Errorf("bursar/mongo: %s: %w", op, err)
	}
}

func (s *Store) GetInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String(), "tenant_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bursar.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("bursar/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, tenantID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{"tenant_id": tenantID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.Start.IsZero() {
		filter["period_start"] = bson.M{"$gte": opts.Start.UTC()}
	}
	if !opts.End.IsZero() {
		filter["period_end"] = bson.M{"$lte": opts.End.UTC()}
	}

	sort := bson.D{{Key: "period_start", Value: -1}, {Key: "created_at", Value: -1}}
	return s.findInvoices(ctx, filter, sort, int64(opts.Limit), int64(opts.Offset))
}

func (s *Store) findInvoices(ctx context.Context, filter bson.M, sort bson.D, limit, skip int64) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(sort)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if skip > 0 {
		q = q.Skip(skip)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bursar/mongo: list invoices: %w", err)
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

// UpdateInvoice replaces the invoice only while its stored status is from.
func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error {
	m := toInvoiceModel(inv)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "tenant_id": m.TenantID, "status": string(from)}).
		Exec(ctx)
	if err != nil {
		return invoiceWriteErr("update invoice", err, inv)
	}
	if res.MatchedCount() > 0 {
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
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"tenant_id":     tenantID,
			"edition_id":    editionID,
			"period_start":  start.UTC(),
			"period_end":    end.UTC(),
			"period_locked": true,
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bursar.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("bursar/mongo: find invoice for period: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) InvoiceTenant(ctx context.Context, invID id.InvoiceID) (string, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return "", bursar.ErrInvoiceNotFound
		}
		return "", fmt.Errorf("bursar/mongo: invoice tenant: %w", err)
	}
	return m.TenantID, nil
}

func (s *Store) ListInvoicesDue(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	filter := bson.M{
		"status":   string(invoice.StatusIssued),
		"due_date": bson.M{"$lt": asOf.UTC()},
	}
	return s.findInvoices(ctx, filter, bson.D{{Key: "due_date", Value: 1}}, int64(limit), 0)
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: payment %s/%s", bursar.ErrAlreadyExists, p.Gateway, p.ExternalID)
		}
		return fmt.Errorf("bursar/mongo: create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, tenantID string, paymentID id.PaymentID) (*payment.Payment, error) {
	return s.findPayment(ctx, bson.M{"_id": paymentID.String(), "tenant_id": tenantID})
}

func (s *Store) GetPaymentByExternalID(ctx context.Context, gateway, externalID string) (*payment.Payment, error) {
	return s.findPayment(ctx, bson.M{"gateway": gateway, "external_id": externalID})
}

func (s *Store) findPayment(ctx context.Context, filter bson.M) (*payment.Payment, error) {
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bursar.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("bursar/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

// UpdatePayment writes the mutable payment fields. The invoice link is set
// once: it is only written while the stored link is empty, and p.InvoiceID
// is refreshed from the document so callers see a link committed by a
// concurrent delivery.
func (s *Store) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	filter := bson.M{"_id": m.ID, "tenant_id": m.TenantID}

	res, err := s.mdb.NewUpdate((*paymentModel)(nil)).
		Filter(filter).
		SetUpdate(bson.M{"$set": bson.M{
			"amount":          m.Amount,
			"currency":        m.Currency,
			"external_type":   m.ExternalType,
			"status":          m.Status,
			"failure_code":    m.FailureCode,
			"failure_message": m.FailureMessage,
			"metadata":        m.Metadata,
			"updated_at":      m.UpdatedAt,
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bursar/mongo: update payment: %w", err)
	}
	if res.MatchedCount() == 0 {
		return bursar.ErrPaymentNotFound
	}

	if m.InvoiceID != "" {
		_, err = s.mdb.NewUpdate((*paymentModel)(nil)).
			Filter(bson.M{"_id": m.ID, "tenant_id": m.TenantID, "invoice_id": ""}).
			SetUpdate(bson.M{"$set": bson.M{"invoice_id": m.InvoiceID}}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("bursar/mongo: link payment: %w", err)
		}
	}

	stored, err := s.findPayment(ctx, filter)
	if err != nil {
		return err
	}
	p.InvoiceID = stored.InvoiceID
	return nil
}

func (s *Store) ListPaymentsByInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) ([]*payment.Payment, error) {
	filter := bson.M{"tenant_id": tenantID, "invoice_id": invID.String()}
	return s.findPayments(ctx, filter, bson.D{{Key: "created_at", Value: 1}}, 0, 0)
}

func (s *Store) ListPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	filter := bson.M{"tenant_id": tenantID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	return s.findPayments(ctx, filter, bson.D{{Key: "created_at", Value: -1}}, int64(opts.Limit), int64(opts.Offset))
}

func (s *Store) findPayments(ctx context.Context, filter bson.M, sort bson.D, limit, skip int64) ([]*payment.Payment, error) {
	var models []paymentModel

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(sort)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if skip > 0 {
		q = q.Skip(skip)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bursar/mongo: list payments: %w", err)
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isDuplicate reports whether err is a duplicate key error on the named index.
func isDuplicate(err error, index string) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), index)
}

// migrationIndexes returns the index definitions for all bursar collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTenants: {
			{Keys: bson.D{{Key: "edition_id", Value: 1}}},
		},
		colPlans: {
			{
				Keys:    bson.D{{Key: "name_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(idxPlanName),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "name", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "plan_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colGrants: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "module_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(idxGrantKey),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "source_plan_id", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "invoice_number", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(idxInvoiceNumber),
			},
			{
				// Void invoices drop out of the index and free their period.
				Keys: bson.D{
					{Key: "tenant_id", Value: 1},
					{Key: "edition_id", Value: 1},
					{Key: "period_start", Value: 1},
					{Key: "period_end", Value: 1},
				},
				Options: options.Index().
					SetUnique(true).
					SetName(idxInvoicePeriod).
					SetPartialFilterExpression(bson.M{"period_locked": true}),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "period_start", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		colPayments: {
			{
				Keys:    bson.D{{Key: "gateway", Value: 1}, {Key: "external_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(idxPaymentExternal),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "invoice_id", Value: 1}}},
		},
	}
}
