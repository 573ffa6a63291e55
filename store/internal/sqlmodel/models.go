// Package sqlmodel holds the grove row models shared by the PostgreSQL and
// SQLite stores. Nested values (metadata, plan modules, line items, charges)
// are stored as JSON text so both dialects bind them as plain strings.
package sqlmodel

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/tenant"
	"github.com/xraph/bursar/types"
)

// Table names.
const (
	TableTenants       = "bursar_tenants"
	TablePlans         = "bursar_plans"
	TableSubscriptions = "bursar_subscriptions"
	TableGrants        = "bursar_grants"
	TableInvoices      = "bursar_invoices"
	TablePayments      = "bursar_payments"
)

// Index names referenced when classifying unique violations.
const (
	IndexPlanName        = "idx_bursar_plans_name"
	IndexInvoicePeriod   = "idx_bursar_invoices_period"
	IndexInvoiceNumber   = "idx_bursar_invoices_number"
	IndexPaymentExternal = "idx_bursar_payments_external"
)

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "{}"
	}
	return string(b)
}

func encodeList(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func decode(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func utc(t time.Time) time.Time { return t.UTC() }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func entity(created, updated time.Time) types.Entity {
	return types.Entity{CreatedAt: created.UTC(), UpdatedAt: updated.UTC()}
}

// ==================== Tenant ====================

type Tenant struct {
	grove.BaseModel `grove:"table:bursar_tenants"`

	ID        string    `grove:"id,pk"`
	Name      string    `grove:"name"`
	EditionID string    `grove:"edition_id"`
	Metadata  string    `grove:"metadata"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func FromTenant(t *tenant.Tenant) *Tenant {
	return &Tenant{
		ID:        t.ID,
		Name:      t.Name,
		EditionID: t.EditionID,
		Metadata:  encode(t.Metadata),
		CreatedAt: utc(t.CreatedAt),
		UpdatedAt: utc(t.UpdatedAt),
	}
}

func (m *Tenant) Domain() (*tenant.Tenant, error) {
	t := &tenant.Tenant{
		Entity:    entity(m.CreatedAt, m.UpdatedAt),
		ID:        m.ID,
		Name:      m.Name,
		EditionID: m.EditionID,
	}
	if err := decode(m.Metadata, &t.Metadata); err != nil {
		return nil, err
	}
	return t, nil
}

// ==================== Plan ====================

type Plan struct {
	grove.BaseModel `grove:"table:bursar_plans"`

	ID          string    `grove:"id,pk"`
	Name        string    `grove:"name"`
	Description string    `grove:"description"`
	Status      string    `grove:"status"`
	Currency    string    `grove:"currency"`
	Price       int64     `grove:"price"`
	Interval    string    `grove:"billing_interval"`
	Modules     string    `grove:"modules"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func FromPlan(p *plan.Plan) *Plan {
	return &Plan{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		Currency:    p.Currency,
		Price:       p.Price.Amount,
		Interval:    string(p.Interval),
		Modules:     encodeList(p.Modules),
		CreatedAt:   utc(p.CreatedAt),
		UpdatedAt:   utc(p.UpdatedAt),
	}
}

func (m *Plan) Domain() (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}
	p := &plan.Plan{
		Entity:      entity(m.CreatedAt, m.UpdatedAt),
		ID:          planID,
		Name:        m.Name,
		Description: m.Description,
		Status:      plan.Status(m.Status),
		Currency:    m.Currency,
		Price:       types.New(m.Price, m.Currency),
		Interval:    plan.Interval(m.Interval),
		Modules:     []plan.ModuleGrant{},
	}
	if err := decode(m.Modules, &p.Modules); err != nil {
		return nil, err
	}
	return p, nil
}

// ==================== Subscription ====================

type Subscription struct {
	grove.BaseModel `grove:"table:bursar_subscriptions"`

	ID                 string     `grove:"id,pk"`
	TenantID           string     `grove:"tenant_id"`
	PlanID             string     `grove:"plan_id"`
	Status             string     `grove:"status"`
	BillingEmail       string     `grove:"billing_email"`
	PaymentMethod      string     `grove:"payment_method"`
	PaymentReference   string     `grove:"payment_reference"`
	CurrentPeriodStart time.Time  `grove:"current_period_start"`
	CurrentPeriodEnd   time.Time  `grove:"current_period_end"`
	CanceledAt         *time.Time `grove:"canceled_at"`
	Charges            string     `grove:"charges"`
	CreatedAt          time.Time  `grove:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"`
}

func FromSubscription(s *subscription.Subscription) *Subscription {
	return &Subscription{
		ID:                 s.ID.String(),
		TenantID:           s.TenantID,
		PlanID:             s.PlanID.String(),
		Status:             string(s.Status),
		BillingEmail:       s.BillingEmail,
		PaymentMethod:      s.PaymentMethod,
		PaymentReference:   s.PaymentReference,
		CurrentPeriodStart: utc(s.CurrentPeriodStart),
		CurrentPeriodEnd:   utc(s.CurrentPeriodEnd),
		CanceledAt:         utcPtr(s.CanceledAt),
		Charges:            encodeList(s.Charges),
		CreatedAt:          utc(s.CreatedAt),
		UpdatedAt:          utc(s.UpdatedAt),
	}
}

func (m *Subscription) Domain() (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParseOptional(m.PlanID, id.PrefixPlan)
	if err != nil {
		return nil, err
	}
	s := &subscription.Subscription{
		Entity:             entity(m.CreatedAt, m.UpdatedAt),
		ID:                 subID,
		TenantID:           m.TenantID,
		PlanID:             planID,
		Status:             subscription.Status(m.Status),
		BillingEmail:       m.BillingEmail,
		PaymentMethod:      m.PaymentMethod,
		PaymentReference:   m.PaymentReference,
		CurrentPeriodStart: m.CurrentPeriodStart.UTC(),
		CurrentPeriodEnd:   m.CurrentPeriodEnd.UTC(),
		CanceledAt:         utcPtr(m.CanceledAt),
	}
	if err := decode(m.Charges, &s.Charges); err != nil {
		return nil, err
	}
	if len(s.Charges) == 0 {
		s.Charges = nil
	}
	return s, nil
}

// ==================== Grant ====================

type Grant struct {
	grove.BaseModel `grove:"table:bursar_grants"`

	ID           string    `grove:"id,pk"`
	TenantID     string    `grove:"tenant_id"`
	ModuleKey    string    `grove:"module_key"`
	Enabled      bool      `grove:"enabled"`
	SourcePlanID string    `grove:"source_plan_id"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func FromGrant(g *entitlement.Grant) *Grant {
	return &Grant{
		ID:           g.ID.String(),
		TenantID:     g.TenantID,
		ModuleKey:    string(g.ModuleKey),
		Enabled:      g.Enabled,
		SourcePlanID: g.SourcePlanID.String(),
		CreatedAt:    utc(g.CreatedAt),
		UpdatedAt:    utc(g.UpdatedAt),
	}
}

func (m *Grant) Domain() (*entitlement.Grant, error) {
	grantID, err := id.ParseGrantID(m.ID)
	if err != nil {
		return nil, err
	}
	source, err := id.ParseOptional(m.SourcePlanID, id.PrefixPlan)
	if err != nil {
		return nil, err
	}
	return &entitlement.Grant{
		ID:           grantID,
		TenantID:     m.TenantID,
		ModuleKey:    catalog.ModuleKey(m.ModuleKey),
		Enabled:      m.Enabled,
		SourcePlanID: source,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}, nil
}

// ==================== Invoice ====================

type Invoice struct {
	grove.BaseModel `grove:"table:bursar_invoices"`

	ID            string     `grove:"id,pk"`
	TenantID      string     `grove:"tenant_id"`
	EditionID     string     `grove:"edition_id"`
	InvoiceNumber string     `grove:"invoice_number"`
	Status        string     `grove:"status"`
	Currency      string     `grove:"currency"`
	Subtotal      int64      `grove:"subtotal"`
	Tax           int64      `grove:"tax"`
	Discount      int64      `grove:"discount"`
	Total         int64      `grove:"total"`
	LineItems     string     `grove:"line_items"`
	PeriodStart   time.Time  `grove:"period_start"`
	PeriodEnd     time.Time  `grove:"period_end"`
	DueDate       *time.Time `grove:"due_date"`
	IssuedAt      *time.Time `grove:"issued_at"`
	PaidAt        *time.Time `grove:"paid_at"`
	VoidedAt      *time.Time `grove:"voided_at"`
	PaymentID     string     `grove:"payment_id"`
	Metadata      string     `grove:"metadata"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func FromInvoice(inv *invoice.Invoice) *Invoice {
	return &Invoice{
		ID:            inv.ID.String(),
		TenantID:      inv.TenantID,
		EditionID:     inv.EditionID,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        string(inv.Status),
		Currency:      inv.Currency,
		Subtotal:      inv.Subtotal.Amount,
		Tax:           inv.Tax.Amount,
		Discount:      inv.Discount.Amount,
		Total:         inv.Total.Amount,
		LineItems:     encodeList(inv.LineItems),
		PeriodStart:   utc(inv.PeriodStart),
		PeriodEnd:     utc(inv.PeriodEnd),
		DueDate:       utcPtr(inv.DueDate),
		IssuedAt:      utcPtr(inv.IssuedAt),
		PaidAt:        utcPtr(inv.PaidAt),
		VoidedAt:      utcPtr(inv.VoidedAt),
		PaymentID:     inv.PaymentID.String(),
		Metadata:      encode(inv.Metadata),
		CreatedAt:     utc(inv.CreatedAt),
		UpdatedAt:     utc(inv.UpdatedAt),
	}
}

func (m *Invoice) Domain() (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	paymentID, err := id.ParseOptional(m.PaymentID, id.PrefixPayment)
	if err != nil {
		return nil, err
	}
	inv := &invoice.Invoice{
		Entity:        entity(m.CreatedAt, m.UpdatedAt),
		ID:            invID,
		TenantID:      m.TenantID,
		EditionID:     m.EditionID,
		InvoiceNumber: m.InvoiceNumber,
		Status:        invoice.Status(m.Status),
		Currency:      m.Currency,
		Subtotal:      types.New(m.Subtotal, m.Currency),
		Tax:           types.New(m.Tax, m.Currency),
		Discount:      types.New(m.Discount, m.Currency),
		Total:         types.New(m.Total, m.Currency),
		LineItems:     []invoice.LineItem{},
		PeriodStart:   m.PeriodStart.UTC(),
		PeriodEnd:     m.PeriodEnd.UTC(),
		DueDate:       utcPtr(m.DueDate),
		IssuedAt:      utcPtr(m.IssuedAt),
		PaidAt:        utcPtr(m.PaidAt),
		VoidedAt:      utcPtr(m.VoidedAt),
		PaymentID:     paymentID,
	}
	if err := decode(m.LineItems, &inv.LineItems); err != nil {
		return nil, err
	}
	if err := decode(m.Metadata, &inv.Metadata); err != nil {
		return nil, err
	}
	return inv, nil
}

// ==================== Payment ====================

type Payment struct {
	grove.BaseModel `grove:"table:bursar_payments"`

	ID             string    `grove:"id,pk"`
	TenantID       string    `grove:"tenant_id"`
	InvoiceID      string    `grove:"invoice_id"`
	Amount         int64     `grove:"amount"`
	Currency       string    `grove:"currency"`
	Gateway        string    `grove:"gateway"`
	ExternalID     string    `grove:"external_id"`
	ExternalType   string    `grove:"external_type"`
	Status         string    `grove:"status"`
	FailureCode    string    `grove:"failure_code"`
	FailureMessage string    `grove:"failure_message"`
	Metadata       string    `grove:"metadata"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func FromPayment(p *payment.Payment) *Payment {
	return &Payment{
		ID:             p.ID.String(),
		TenantID:       p.TenantID,
		InvoiceID:      p.InvoiceID.String(),
		Amount:         p.Amount.Amount,
		Currency:       p.Amount.Currency,
		Gateway:        p.Gateway,
		ExternalID:     p.ExternalID,
		ExternalType:   p.ExternalType,
		Status:         string(p.Status),
		FailureCode:    p.FailureCode,
		FailureMessage: p.FailureMessage,
		Metadata:       encode(p.Metadata),
		CreatedAt:      utc(p.CreatedAt),
		UpdatedAt:      utc(p.UpdatedAt),
	}
}

func (m *Payment) Domain() (*payment.Payment, error) {
	payID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseOptional(m.InvoiceID, id.PrefixInvoice)
	if err != nil {
		return nil, err
	}
	p := &payment.Payment{
		Entity:         entity(m.CreatedAt, m.UpdatedAt),
		ID:             payID,
		TenantID:       m.TenantID,
		InvoiceID:      invID,
		Amount:         types.New(m.Amount, m.Currency),
		Gateway:        m.Gateway,
		ExternalID:     m.ExternalID,
		ExternalType:   m.ExternalType,
		Status:         payment.Status(m.Status),
		FailureCode:    m.FailureCode,
		FailureMessage: m.FailureMessage,
	}
	if err := decode(m.Metadata, &p.Metadata); err != nil {
		return nil, err
	}
	return p, nil
}

// Each converts a slice of row models with conv, stopping at the first error.
func Each[M any, D any](rows []M, conv func(*M) (D, error)) ([]D, error) {
	out := make([]D, 0, len(rows))
	for i := range rows {
		d, err := conv(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
