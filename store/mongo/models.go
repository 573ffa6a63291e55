package mongo

import (
	"strings"
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

// ==================== Tenant models ====================

type tenantModel struct {
	grove.BaseModel `grove:"table:bursar_tenants"`

	ID        string            `grove:"id,pk"      bson:"_id"`
	Name      string            `grove:"name"       bson:"name"`
	EditionID string            `grove:"edition_id" bson:"edition_id"`
	Metadata  map[string]string `grove:"metadata"   bson:"metadata,omitempty"`
	CreatedAt time.Time         `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at" bson:"updated_at"`
}

func toTenantModel(t *tenant.Tenant) *tenantModel {
	return &tenantModel{
		ID:        t.ID,
		Name:      t.Name,
		EditionID: t.EditionID,
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt.UTC(),
		UpdatedAt: t.UpdatedAt.UTC(),
	}
}

func fromTenantModel(m *tenantModel) *tenant.Tenant {
	return &tenant.Tenant{
		Entity:    types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:        m.ID,
		Name:      m.Name,
		EditionID: m.EditionID,
		Metadata:  m.Metadata,
	}
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:bursar_plans"`

	ID          string             `grove:"id,pk"            bson:"_id"`
	Name        string             `grove:"name"             bson:"name"`
	NameKey     string             `grove:"name_key"         bson:"name_key"`
	Description string             `grove:"description"      bson:"description"`
	Status      string             `grove:"status"           bson:"status"`
	Currency    string             `grove:"currency"         bson:"currency"`
	Price       int64              `grove:"price"            bson:"price"`
	Interval    string             `grove:"billing_interval" bson:"billing_interval"`
	Modules     []moduleGrantModel `grove:"modules"          bson:"modules"`
	CreatedAt   time.Time          `grove:"created_at"       bson:"created_at"`
	UpdatedAt   time.Time          `grove:"updated_at"       bson:"updated_at"`
}

type moduleGrantModel struct {
	ModuleKey string `bson:"module_key"`
	Enabled   bool   `bson:"enabled"`
}

// nameKey folds a plan name for the case-insensitive unique index.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func toPlanModel(p *plan.Plan) *planModel {
	modules := make([]moduleGrantModel, len(p.Modules))
	for i, g := range p.Modules {
		modules[i] = moduleGrantModel{ModuleKey: string(g.ModuleKey), Enabled: g.Enabled}
	}
	return &planModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		NameKey:     nameKey(p.Name),
		Description: p.Description,
		Status:      string(p.Status),
		Currency:    p.Currency,
		Price:       p.Price.Amount,
		Interval:    string(p.Interval),
		Modules:     modules,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}
	modules := make([]plan.ModuleGrant, len(m.Modules))
	for i, g := range m.Modules {
		modules[i] = plan.ModuleGrant{ModuleKey: catalog.ModuleKey(g.ModuleKey), Enabled: g.Enabled}
	}
	return &plan.Plan{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:          planID,
		Name:        m.Name,
		Description: m.Description,
		Status:      plan.Status(m.Status),
		Currency:    m.Currency,
		Price:       types.New(m.Price, m.Currency),
		Interval:    plan.Interval(m.Interval),
		Modules:     modules,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:bursar_subscriptions"`

	ID                 string        `grove:"id,pk"                bson:"_id"`
	TenantID           string        `grove:"tenant_id"            bson:"tenant_id"`
	PlanID             string        `grove:"plan_id"              bson:"plan_id"`
	Status             string        `grove:"status"               bson:"status"`
	BillingEmail       string        `grove:"billing_email"        bson:"billing_email"`
	PaymentMethod      string        `grove:"payment_method"       bson:"payment_method"`
	PaymentReference   string        `grove:"payment_reference"    bson:"payment_reference"`
	CurrentPeriodStart time.Time     `grove:"current_period_start" bson:"current_period_start"`
	CurrentPeriodEnd   time.Time     `grove:"current_period_end"   bson:"current_period_end"`
	CanceledAt         *time.Time    `grove:"canceled_at"          bson:"canceled_at,omitempty"`
	Charges            []chargeModel `grove:"charges"              bson:"charges,omitempty"`
	CreatedAt          time.Time     `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time     `grove:"updated_at"           bson:"updated_at"`
}

type chargeModel struct {
	ID               string    `bson:"id"`
	Description      string    `bson:"description"`
	PlanID           string    `bson:"plan_id"`
	AmountCents      int64     `bson:"amount_cents"`
	AmountCurrency   string    `bson:"amount_currency"`
	PaymentMethod    string    `bson:"payment_method,omitempty"`
	PaymentReference string    `bson:"payment_reference,omitempty"`
	RecordedAt       time.Time `bson:"recorded_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	var charges []chargeModel
	for _, c := range s.Charges {
		charges = append(charges, chargeModel{
			ID:               c.ID.String(),
			Description:      c.Description,
			PlanID:           c.PlanID.String(),
			AmountCents:      c.Amount.Amount,
			AmountCurrency:   c.Amount.Currency,
			PaymentMethod:    c.PaymentMethod,
			PaymentReference: c.PaymentReference,
			RecordedAt:       c.RecordedAt.UTC(),
		})
	}
	return &subscriptionModel{
		ID:                 s.ID.String(),
		TenantID:           s.TenantID,
		PlanID:             s.PlanID.String(),
		Status:             string(s.Status),
		BillingEmail:       s.BillingEmail,
		PaymentMethod:      s.PaymentMethod,
		PaymentReference:   s.PaymentReference,
		CurrentPeriodStart: s.CurrentPeriodStart.UTC(),
		CurrentPeriodEnd:   s.CurrentPeriodEnd.UTC(),
		CanceledAt:         utcPtr(s.CanceledAt),
		Charges:            charges,
		CreatedAt:          s.CreatedAt.UTC(),
		UpdatedAt:          s.UpdatedAt.UTC(),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParseOptional(m.PlanID, id.PrefixPlan)
	if err != nil {
		return nil, err
	}
	var charges []subscription.Charge
	for _, c := range m.Charges {
		chargeID, err := id.ParseChargeID(c.ID)
		if err != nil {
			return nil, err
		}
		chargePlan, err := id.ParseOptional(c.PlanID, id.PrefixPlan)
		if err != nil {
			return nil, err
		}
		charges = append(charges, subscription.Charge{
			ID:               chargeID,
			Description:      c.Description,
			PlanID:           chargePlan,
			Amount:           types.New(c.AmountCents, c.AmountCurrency),
			PaymentMethod:    c.PaymentMethod,
			PaymentReference: c.PaymentReference,
			RecordedAt:       c.RecordedAt.UTC(),
		})
	}
	return &subscription.Subscription{
		Entity:             types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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
		Charges:            charges,
	}, nil
}

// ==================== Grant models ====================

type grantModel struct {
	grove.BaseModel `grove:"table:bursar_grants"`

	ID           string    `grove:"id,pk"          bson:"_id"`
	TenantID     string    `grove:"tenant_id"      bson:"tenant_id"`
	ModuleKey    string    `grove:"module_key"     bson:"module_key"`
	Enabled      bool      `grove:"enabled"        bson:"enabled"`
	SourcePlanID string    `grove:"source_plan_id" bson:"source_plan_id"`
	CreatedAt    time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"     bson:"updated_at"`
}

func fromGrantModel(m *grantModel) (*entitlement.Grant, error) {
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

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:bursar_invoices"`

	ID            string            `grove:"id,pk"          bson:"_id"`
	TenantID      string            `grove:"tenant_id"      bson:"tenant_id"`
	EditionID     string            `grove:"edition_id"     bson:"edition_id"`
	InvoiceNumber string            `grove:"invoice_number" bson:"invoice_number"`
	Status        string            `grove:"status"         bson:"status"`
	PeriodLocked  bool              `grove:"period_locked"  bson:"period_locked"`
	Currency      string            `grove:"currency"       bson:"currency"`
	Subtotal      int64             `grove:"subtotal"       bson:"subtotal"`
	Tax           int64             `grove:"tax"            bson:"tax"`
	Discount      int64             `grove:"discount"       bson:"discount"`
	Total         int64             `grove:"total"          bson:"total"`
	LineItems     []lineItemModel   `grove:"line_items"     bson:"line_items"`
	PeriodStart   time.Time         `grove:"period_start"   bson:"period_start"`
	PeriodEnd     time.Time         `grove:"period_end"     bson:"period_end"`
	DueDate       *time.Time        `grove:"due_date"       bson:"due_date,omitempty"`
	IssuedAt      *time.Time        `grove:"issued_at"      bson:"issued_at,omitempty"`
	PaidAt        *time.Time        `grove:"paid_at"        bson:"paid_at,omitempty"`
	VoidedAt      *time.Time        `grove:"voided_at"      bson:"voided_at,omitempty"`
	PaymentID     string            `grove:"payment_id"     bson:"payment_id"`
	Metadata      map[string]string `grove:"metadata"       bson:"metadata,omitempty"`
	CreatedAt     time.Time         `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"     bson:"updated_at"`
}

type lineItemModel struct {
	ID          string            `bson:"id"`
	Description string            `bson:"description"`
	Quantity    int64             `bson:"quantity"`
	UnitAmount  int64             `bson:"unit_amount"`
	Amount      int64             `bson:"amount"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	items := make([]lineItemModel, len(inv.LineItems))
	for i, li := range inv.LineItems {
		items[i] = lineItemModel{
			ID:          li.ID.String(),
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitAmount:  li.UnitAmount.Amount,
			Amount:      li.Amount.Amount,
			Metadata:    li.Metadata,
		}
	}
	return &invoiceModel{
		ID:            inv.ID.String(),
		TenantID:      inv.TenantID,
		EditionID:     inv.EditionID,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        string(inv.Status),
		PeriodLocked:  inv.Status != invoice.StatusVoid,
		Currency:      inv.Currency,
		Subtotal:      inv.Subtotal.Amount,
		Tax:           inv.Tax.Amount,
		Discount:      inv.Discount.Amount,
		Total:         inv.Total.Amount,
		LineItems:     items,
		PeriodStart:   inv.PeriodStart.UTC(),
		PeriodEnd:     inv.PeriodEnd.UTC(),
		DueDate:       utcPtr(inv.DueDate),
		IssuedAt:      utcPtr(inv.IssuedAt),
		PaidAt:        utcPtr(inv.PaidAt),
		VoidedAt:      utcPtr(inv.VoidedAt),
		PaymentID:     inv.PaymentID.String(),
		Metadata:      inv.Metadata,
		CreatedAt:     inv.CreatedAt.UTC(),
		UpdatedAt:     inv.UpdatedAt.UTC(),
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	paymentID, err := id.ParseOptional(m.PaymentID, id.PrefixPayment)
	if err != nil {
		return nil, err
	}
	items := make([]invoice.LineItem, len(m.LineItems))
	for i, li := range m.LineItems {
		liID, err := id.ParseLineItemID(li.ID)
		if err != nil {
			return nil, err
		}
		items[i] = invoice.LineItem{
			ID:          liID,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitAmount:  types.New(li.UnitAmount, m.Currency),
			Amount:      types.New(li.Amount, m.Currency),
			Metadata:    li.Metadata,
		}
	}
	return &invoice.Invoice{
		Entity:        types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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
		LineItems:     items,
		PeriodStart:   m.PeriodStart.UTC(),
		PeriodEnd:     m.PeriodEnd.UTC(),
		DueDate:       utcPtr(m.DueDate),
		IssuedAt:      utcPtr(m.IssuedAt),
		PaidAt:        utcPtr(m.PaidAt),
		VoidedAt:      utcPtr(m.VoidedAt),
		PaymentID:     paymentID,
		Metadata:      m.Metadata,
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:bursar_payments"`

	ID             string            `grove:"id,pk"           bson:"_id"`
	TenantID       string            `grove:"tenant_id"       bson:"tenant_id"`
	InvoiceID      string            `grove:"invoice_id"      bson:"invoice_id"`
	Amount         int64             `grove:"amount"          bson:"amount"`
	Currency       string            `grove:"currency"        bson:"currency"`
	Gateway        string            `grove:"gateway"         bson:"gateway"`
	ExternalID     string            `grove:"external_id"     bson:"external_id"`
	ExternalType   string            `grove:"external_type"   bson:"external_type,omitempty"`
	Status         string            `grove:"status"          bson:"status"`
	FailureCode    string            `grove:"failure_code"    bson:"failure_code,omitempty"`
	FailureMessage string            `grove:"failure_message" bson:"failure_message,omitempty"`
	Metadata       map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"      bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
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
		Metadata:       p.Metadata,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	payID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseOptional(m.InvoiceID, id.PrefixInvoice)
	if err != nil {
		return nil, err
	}
	return &payment.Payment{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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
		Metadata:       m.Metadata,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
