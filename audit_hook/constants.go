package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceCreated       = "InvoiceCreated"
	ActionInvoiceIssued        = "InvoiceIssued"
	ActionInvoicePaid          = "InvoicePaid"
	ActionInvoiceMarkedOverdue = "InvoiceMarkedOverdue"
	ActionInvoiceVoided        = "InvoiceVoided"

	// Payment actions
	ActionPaymentCreated         = "PaymentCreated"
	ActionPaymentStatusUpdated   = "PaymentStatusUpdated"
	ActionPaymentLinked          = "PaymentLinked"
	ActionPaymentInvoiceMismatch = "PaymentInvoiceMismatch"
	ActionPaymentTenantMismatch  = "PaymentTenantMismatch"
	ActionWebhookReceived        = "WebhookReceived"

	// Plan and entitlement actions
	ActionPlanCreated            = "PlanCreated"
	ActionPlanUpdated            = "PlanUpdated"
	ActionEntitlementsRecomputed = "EntitlementsRecomputed"
	ActionEditionSelected        = "EditionSelected"

	// Subscription actions
	ActionSubscriptionPlanChanged = "SubscriptionPlanChanged"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourceEntitlement  = "entitlement"
	ResourceInvoice      = "invoice"
	ResourcePayment      = "payment"
	ResourceWebhook      = "webhook"
	ResourceTenant       = "tenant"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryAccess       = "access"
	CategoryPayment      = "payment"
	CategoryIntegration  = "integration"
	CategorySecurity     = "security"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
