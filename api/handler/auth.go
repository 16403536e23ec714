package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/jborjar/paquetes/api/transport"
	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/internal/middleware"
	"github.com/jborjar/paquetes/pkg/httpcontext"
	loginUC "github.com/jborjar/paquetes/usecase/login"
)

type AuthHandler struct {
	baseHandler
	uc         *loginUC.UseCase
	cookieName string
}

func NewAuthHandler(uc *loginUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger, cookieName string) *AuthHandler {
	if cookieName == "" {
		cookieName = middleware.DefaultCookieName
	}
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		cookieName:  cookieName,
	}
}

// @Summary Exchange credentials for a session
// @Tags auth
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(ctx *fasthttp.RequestCtx) {
	var req transport.LoginRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), domain.ErrInvalidPayload.Message, nil))
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "username is required", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	view, err := h.uc.Login(stdCtx, req.Username, req.Password, req.Scopes)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	h.setSessionCookie(ctx, view)
	h.respondSuccess(ctx, http.StatusCreated, view)
}

// @Summary End the authenticated session
// @Tags auth
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(ctx *fasthttp.RequestCtx) {
	view, ok := middleware.SessionFrom(ctx)
	if !ok {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), domain.ErrMissingCredential.Message, nil))
		return
	}

	var req transport.LogoutRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), domain.ErrInvalidPayload.Message, nil))
			return
		}
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if req.Everywhere {
		revoked, err := h.uc.LogoutEverywhere(stdCtx, view.Username)
		if err != nil {
			h.respondError(ctx, err)
			return
		}
		h.clearSessionCookie(ctx)
		h.respondSuccess(ctx, http.StatusOK, transport.RevokedResponse{Username: view.Username, Revoked: revoked})
		return
	}

	if _, err := h.uc.Logout(stdCtx, view.SessionID); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.clearSessionCookie(ctx)
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"session_id": view.SessionID})
}

// @Summary Inspect the authenticated session
// @Tags auth
// @Router /api/v1/auth/session [get]
func (h *AuthHandler) Session(ctx *fasthttp.RequestCtx) {
	view, ok := middleware.SessionFrom(ctx)
	if !ok {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), domain.ErrMissingCredential.Message, nil))
		return
	}
	h.respondSuccess(ctx, http.StatusOK, view)
}

func (h *AuthHandler) setSessionCookie(ctx *fasthttp.RequestCtx, view *domain.SessionView) {
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(h.cookieName)
	cookie.SetValue(view.SessionID)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetExpire(view.ExpiresAt)
	ctx.Response.Header.SetCookie(cookie)
}

func (h *AuthHandler) clearSessionCookie(ctx *fasthttp.RequestCtx) {
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(h.cookieName)
	cookie.SetValue("")
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetExpire(fasthttp.CookieExpireDelete)
	ctx.Response.Header.SetCookie(cookie)
}
