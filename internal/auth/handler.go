// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/middleware"
)

// errReplies maps service failures to client replies. The first match wins,
// so the more specific sentinel goes first.
var errReplies = []struct {
	target error
	reply  func() *core.AppError
}{
	{ErrInvalidCredentials, func() *core.AppError {
		return core.UnauthorizedError("invalid email or password")
	}},
	{ErrTokenReuse, func() *core.AppError {
		return core.NewAppError(core.ErrTokenRevoked,
			"token reuse detected, session revoked",
			http.StatusUnauthorized, "TOKEN_REUSE_DETECTED")
	}},
	{core.ErrTokenExpired, core.TokenExpiredError},
	{core.ErrTokenRevoked, core.TokenRevokedError},
	{core.ErrTokenInvalid, core.TokenInvalidError},
	{core.ErrForbidden, func() *core.AppError {
		return core.ForbiddenError("cannot revoke another user's token")
	}},
	{core.ErrNotFound, func() *core.AppError { return core.NotFoundError("user") }},
}

func reply(w http.ResponseWriter, err error) {
	for _, e := range errReplies {
		if errors.Is(err, e.target) {
			core.JSONError(w, e.reply())
			return
		}
	}
	core.InternalServerError(w, err)
}

type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts password sign-in and the session lifecycle under
// /auth. authenticator guards everything that acts on the caller's own
// session.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)

		r.With(authenticator).Get("/me", h.GetMe)
		r.With(authenticator).Post("/logout", h.Logout)
		r.With(authenticator).Post("/logout-all", h.LogoutAll)
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.bind(w, r, &req) {
		return
	}
	resp, err := h.service.Login(r.Context(), req.Email, req.Password, clientMeta(r))
	if err != nil {
		reply(w, err)
		return
	}
	core.OK(w, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.bind(w, r, &req) {
		return
	}
	resp, err := h.service.Refresh(r.Context(), req.RefreshToken, clientMeta(r))
	if err != nil {
		reply(w, err)
		return
	}
	core.OK(w, resp)
}

// Logout revokes the access token on the request and, when the body names
// one, the caller's refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		core.BadRequest(w, "invalid request body")
		return
	}

	err = h.service.Logout(r.Context(), req.RefreshToken, middleware.GetClaims(r.Context()))
	if err != nil {
		reply(w, err)
		return
	}
	core.NoContent(w)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.LogoutAll(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		reply(w, err)
		return
	}
	core.NoContent(w)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	me, err := h.service.GetCurrentUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		reply(w, err)
		return
	}
	core.OK(w, me)
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

func clientMeta(r *http.Request) ClientMeta {
	return ClientMeta{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	}
}
