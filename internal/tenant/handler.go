// AngelaMos | 2026
// handler.go

package tenant

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Group(func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/principals/{principalID}/roles", h.GetRoles)
		r.Get("/tenants/{tenantID}", h.GetTenant)
		r.Get("/tenants/{tenantID}/subscription", h.GetSubscription)
	})
}

// GetRoles is limited to the caller's own principal unless the caller is a
// super admin.
func (h *Handler) GetRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principalID := chi.URLParam(r, "principalID")

	if principalID != middleware.GetUserID(ctx) &&
		!middleware.GetAccess(ctx).IsSuperAdmin {
		core.Forbidden(w, "cannot read roles of another principal")
		return
	}

	rows, err := h.service.RoleAssignments(ctx, principalID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToRolesResponse(principalID, rows))
}

func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")

	if err := h.service.Authorize(ctx, middleware.GetUserID(ctx), tenantID); err != nil {
		handleError(w, err, "tenant")
		return
	}

	t, err := h.service.GetTenant(ctx, tenantID)
	if err != nil {
		handleError(w, err, "tenant")
		return
	}

	core.OK(w, ToTenantResponse(t))
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")

	if err := h.service.Authorize(ctx, middleware.GetUserID(ctx), tenantID); err != nil {
		handleError(w, err, "subscription")
		return
	}

	sub, err := h.service.GetSubscription(ctx, tenantID)
	if err != nil {
		handleError(w, err, "subscription")
		return
	}

	core.OK(w, ToSubscriptionResponse(sub))
}

func handleError(w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, resource)
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "no access to this tenant")
	default:
		core.InternalServerError(w, err)
	}
}
