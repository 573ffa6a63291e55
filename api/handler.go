// Package api exposes the Bursar engine over HTTP: gateway webhooks, tenant
// entitlements, invoices, payments, subscriptions and plans. Bodies use the
// {data, error, meta} envelope.
//
// The package performs no authentication. Mount it behind whatever
// middleware establishes the caller's right to act for the tenant in the path.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/bursar"
)

// WebhookBodyLimit caps the size of a webhook payload.
const WebhookBodyLimit = 1024 * 1024

// DefaultSignatureHeader is read for gateways without a registered header.
const DefaultSignatureHeader = "X-Webhook-Signature"

// Handler serves the Bursar HTTP API.
type Handler struct {
	engine   *bursar.Bursar
	logger   *slog.Logger
	validate *validator.Validate

	signatureHeaders map[string]string
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithSignatureHeader sets the header carrying the webhook signature of a
// gateway.
func WithSignatureHeader(gateway, header string) Option {
	return func(h *Handler) { h.signatureHeaders[gateway] = header }
}

// New creates a Handler for engine.
func New(engine *bursar.Bursar, opts ...Option) *Handler {
	h := &Handler{
		engine:   engine,
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		signatureHeaders: map[string]string{
			"stripe": "Stripe-Signature",
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.logging)
	r.Use(chimiddleware.Recoverer)

	r.Post("/webhooks/{gateway}", h.Webhook)
	r.Get("/catalog/editions", h.ListEditions)

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", h.ListPlans)
		r.Post("/", h.CreatePlan)
		r.Get("/{planID}", h.GetPlan)
		r.Patch("/{planID}", h.UpdatePlan)
	})

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Get("/entitlements", h.GetEntitlements)
		r.Get("/entitlements/{key}", h.CheckEntitlement)
		r.Put("/edition", h.SelectEdition)
		r.Get("/grants", h.ListGrants)
		r.Put("/grants/{module}", h.SetGrant)

		r.Get("/subscription", h.GetSubscription)
		r.Put("/subscription", h.ChangePlan)
		r.Delete("/subscription", h.CancelSubscription)

		r.Get("/invoices", h.ListInvoices)
		r.Post("/invoices", h.CreateInvoice)
		r.Get("/invoices/{invoiceID}", h.GetInvoice)
		r.Post("/invoices/{invoiceID}/issue", h.IssueInvoice)
		r.Post("/invoices/{invoiceID}/pay", h.PayInvoice)
		r.Post("/invoices/{invoiceID}/overdue", h.MarkInvoiceOverdue)
		r.Post("/invoices/{invoiceID}/void", h.VoidInvoice)
		r.Post("/invoices/{invoiceID}/evaluate", h.EvaluateInvoice)

		r.Post("/checkout", h.CreateCheckout)

		r.Get("/payments", h.ListPayments)
		r.Get("/payments/{paymentID}", h.GetPayment)
		r.Post("/payments/{paymentID}/link", h.LinkPayment)
	})

	return r
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

// Webhook handles POST /webhooks/{gateway}. The payload is verified by the
// gateway before anything is read from it; a bad signature is a 400 and
// mutates nothing. Verified events the engine does not act on are
// acknowledged with ignored=true so the gateway stops retrying.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "gateway")

	r.Body = http.MaxBytesReader(w, r.Body, WebhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, "failed to read request body")
		return
	}

	header, found := h.signatureHeaders[name]
	if !found {
		header = DefaultSignatureHeader
	}

	p, err := h.engine.HandleWebhook(r.Context(), name, payload, r.Header.Get(header))
	switch {
	case errors.Is(err, bursar.ErrIgnoredEvent):
		ok(w, webhookAck{Received: true, Ignored: true})
	case err != nil:
		if errors.Is(err, bursar.ErrInvalidSignature) {
			h.logger.Warn("webhook rejected",
				slog.String("gateway", name),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		}
		h.fail(w, r, err)
	default:
		ok(w, webhookAck{Received: true, Payment: p})
	}
}

type webhookAck struct {
	Received bool `json:"received"`
	Ignored  bool `json:"ignored,omitempty"`
	Payment  any  `json:"payment,omitempty"`
}

func (h *Handler) ListEditions(w http.ResponseWriter, _ *http.Request) {
	editions := h.engine.Catalog().Editions()
	list(w, editions, len(editions), 0, 0)
}

// decode reads a JSON body into dst and runs struct validation on it. An
// empty body leaves dst as is.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return true
		}
		h.fail(w, r, toValidation(err))
		return false
	}
	return true
}

func toValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return bursar.ValidationError{Field: "body", Message: err.Error()}
	}
	var me bursar.MultiError
	for _, fe := range fieldErrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		me.Add(bursar.ValidationError{Field: fe.Field(), Message: msg})
	}
	return me.ErrOrNil()
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, bursar.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, bursar.ValidationError{Field: "offset", Message: "must be a non-negative integer"}
		}
	}
	return limit, offset, nil
}
