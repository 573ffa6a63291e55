package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/plan"
)

func planParam(r *http.Request) (id.PlanID, error) {
	planID, err := id.ParsePlanID(chi.URLParam(r, "planID"))
	if err != nil {
		return id.Nil, bursar.ValidationError{Field: "planID", Message: "not a plan id"}
	}
	return planID, nil
}

func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var in bursar.CreatePlanInput
	if !h.decode(w, r, &in) {
		return
	}
	p, err := h.engine.CreatePlan(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created(w, p)
}

// UpdatePlan handles PATCH /plans/{planID}. Changing the module list pushes
// the new grants to every active subscriber.
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID, err := planParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in bursar.UpdatePlanInput
	if !h.decode(w, r, &in) {
		return
	}
	in.PlanID = planID

	p, err := h.engine.UpdatePlan(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, p)
}

func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := planParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.engine.GetPlan(r.Context(), planID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, p)
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	opts := plan.ListOpts{Status: plan.Status(r.URL.Query().Get("status")), Limit: limit, Offset: offset}

	plans, err := h.engine.ListPlans(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list(w, plans, len(plans), limit, offset)
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.engine.GetSubscription(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, sub)
}

// ChangePlan handles PUT /tenants/{tenantID}/subscription.
func (h *Handler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var in bursar.ChangePlanInput
	in.TenantID = chi.URLParam(r, "tenantID")
	if !h.decode(w, r, &in) {
		return
	}
	in.TenantID = chi.URLParam(r, "tenantID")

	sub, err := h.engine.ChangePlan(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, sub)
}

func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.engine.CancelSubscription(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, sub)
}
