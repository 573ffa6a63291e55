package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/payment"
)

func paymentParam(r *http.Request) (id.PaymentID, error) {
	payID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		return id.Nil, bursar.ValidationError{Field: "paymentID", Message: "not a payment id"}
	}
	return payID, nil
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payID, err := paymentParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.engine.GetPayment(r.Context(), chi.URLParam(r, "tenantID"), payID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, p)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	opts := payment.ListOpts{Status: payment.Status(r.URL.Query().Get("status")), Limit: limit, Offset: offset}

	ps, err := h.engine.ListPayments(r.Context(), chi.URLParam(r, "tenantID"), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list(w, ps, len(ps), limit, offset)
}

type linkPaymentRequest struct {
	InvoiceID id.InvoiceID `json:"invoice_id"`
}

// LinkPayment handles POST /tenants/{tenantID}/payments/{paymentID}/link.
func (h *Handler) LinkPayment(w http.ResponseWriter, r *http.Request) {
	payID, err := paymentParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req linkPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.InvoiceID.IsNil() {
		h.fail(w, r, bursar.ValidationError{Field: "invoice_id", Message: "required"})
		return
	}

	p, err := h.engine.LinkPayment(r.Context(), chi.URLParam(r, "tenantID"), payID, req.InvoiceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, p)
}

// CreateCheckout handles POST /tenants/{tenantID}/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var in bursar.CheckoutInput
	in.TenantID = chi.URLParam(r, "tenantID")
	if !h.decode(w, r, &in) {
		return
	}
	in.TenantID = chi.URLParam(r, "tenantID")

	sess, err := h.engine.CreateCheckout(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created(w, sess)
}
