// AngelaMos | 2026
// handler.go

package otp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assocly/memberaccess/internal/auth"
	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/otp/request", h.RequestCode)
	r.Post("/otp/verify", h.VerifyCode)
	r.Post("/session/exchange", h.Exchange)
}

func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.RequestCode(r.Context(), req.Phone)
	if err != nil {
		core.JSONError(w, toAppError(err))
		return
	}

	core.OK(w, ToRequestCodeResponse(res))
}

func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.VerifyCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		core.JSONError(w, toAppError(err))
		return
	}

	core.OK(w, ToVerifyCodeResponse(res))
}

func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.ExchangeBridgeToken(
		r.Context(),
		req.BridgeToken,
		req.PrincipalID,
		auth.ClientMeta{
			UserAgent: r.UserAgent(),
			IPAddress: middleware.ClientIP(r),
		},
	)
	if err != nil {
		core.JSONError(w, toAppError(err))
		return
	}

	core.OK(w, ToExchangeResponse(res))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}
