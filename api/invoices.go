package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
)

func invoiceParam(r *http.Request) (id.InvoiceID, error) {
	invID, err := id.ParseInvoiceID(chi.URLParam(r, "invoiceID"))
	if err != nil {
		return id.Nil, bursar.ValidationError{Field: "invoiceID", Message: "not an invoice id"}
	}
	return invID, nil
}

// CreateInvoice handles POST /tenants/{tenantID}/invoices. The tenant comes
// from the path; a tenant_id in the body is ignored.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var in bursar.CreateInvoiceInput
	in.TenantID = chi.URLParam(r, "tenantID")
	if !h.decode(w, r, &in) {
		return
	}
	in.TenantID = chi.URLParam(r, "tenantID")

	inv, err := h.engine.CreateInvoice(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created(w, inv)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invID, err := invoiceParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.engine.GetInvoice(r.Context(), chi.URLParam(r, "tenantID"), invID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, inv)
}

// ListInvoices handles GET /tenants/{tenantID}/invoices?status=&from=&to=.
// from and to are RFC 3339 bounds on the billing period.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	opts := invoice.ListOpts{Limit: limit, Offset: offset}

	q := r.URL.Query()
	if s := invoice.Status(q.Get("status")); s != "" {
		if !s.IsValid() {
			h.fail(w, r, bursar.ValidationError{Field: "status", Message: "unknown invoice status"})
			return
		}
		opts.Status = s
	}
	for param, dst := range map[string]*time.Time{"from": &opts.Start, "to": &opts.End} {
		if v := q.Get(param); v != "" {
			t, perr := time.Parse(time.RFC3339, v)
			if perr != nil {
				h.fail(w, r, bursar.ValidationError{Field: param, Message: "must be an RFC 3339 timestamp"})
				return
			}
			*dst = t
		}
	}

	invs, err := h.engine.ListInvoices(r.Context(), chi.URLParam(r, "tenantID"), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list(w, invs, len(invs), limit, offset)
}

type payInvoiceRequest struct {
	PaymentID id.PaymentID `json:"payment_id"`
}

type voidInvoiceRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) IssueInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
		return h.engine.IssueInvoice(r.Context(), tenantID, invID)
	})
}

// PayInvoice handles POST .../pay. The body is optional; it may name the
// payment that settled the invoice.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	var req payInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(w, r, func(tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
		return h.engine.MarkInvoicePaid(r.Context(), tenantID, invID, req.PaymentID)
	})
}

func (h *Handler) MarkInvoiceOverdue(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
		return h.engine.MarkInvoiceOverdue(r.Context(), tenantID, invID)
	})
}

func (h *Handler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	var req voidInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(w, r, func(tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
		return h.engine.VoidInvoice(r.Context(), tenantID, invID, req.Reason)
	})
}

// EvaluateInvoice handles POST .../evaluate, re-running payment evaluation
// for an invoice.
func (h *Handler) EvaluateInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
		return h.engine.EvaluateInvoicePayment(r.Context(), tenantID, invID)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, do func(string, id.InvoiceID) (*invoice.Invoice, error)) {
	invID, err := invoiceParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := do(chi.URLParam(r, "tenantID"), invID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, inv)
}
