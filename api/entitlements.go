package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/bursar/catalog"
)

// GetEntitlements handles GET /tenants/{tenantID}/entitlements.
func (h *Handler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.ResolveEntitlements(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, snap)
}

// CheckEntitlement handles GET /tenants/{tenantID}/entitlements/{key}.
func (h *Handler) CheckEntitlement(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Entitled(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, res)
}

type selectEditionRequest struct {
	Edition string `json:"edition" validate:"required"`
}

// SelectEdition handles PUT /tenants/{tenantID}/edition.
func (h *Handler) SelectEdition(w http.ResponseWriter, r *http.Request) {
	var req selectEditionRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := h.engine.SelectEdition(r.Context(), chi.URLParam(r, "tenantID"), req.Edition)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, snap)
}

func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.engine.ListGrants(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list(w, grants, len(grants), 0, 0)
}

type setGrantRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetGrant handles PUT /tenants/{tenantID}/grants/{module}, a direct
// override of one module.
func (h *Handler) SetGrant(w http.ResponseWriter, r *http.Request) {
	var req setGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	g, err := h.engine.SetGrant(r.Context(), chi.URLParam(r, "tenantID"), catalog.ModuleKey(chi.URLParam(r, "module")), *req.Enabled)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, g)
}
