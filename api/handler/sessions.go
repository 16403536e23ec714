package handler

import (
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/jborjar/paquetes/api/transport"
	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/pkg/httpcontext"
	sessionUC "github.com/jborjar/paquetes/usecase/session"
)

// SessionsHandler exposes the administrative surface: listing active
// sessions, bulk revocation per user, and triggering an expiry sweep.
type SessionsHandler struct {
	baseHandler
	sessions *sessionUC.Manager
}

func NewSessionsHandler(sessions *sessionUC.Manager, adapter *httpcontext.Adapter, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{
		baseHandler: newBaseHandler(adapter, logger),
		sessions:    sessions,
	}
}

// @Summary List active sessions, optionally filtered by user
// @Tags sessions
// @Router /api/v1/sessions [get]
func (h *SessionsHandler) List(ctx *fasthttp.RequestCtx) {
	username := string(ctx.QueryArgs().Peek("username"))

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	views, err := h.sessions.ListActive(stdCtx, username)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if views == nil {
		views = []*domain.SessionView{}
	}
	h.respondSuccess(ctx, http.StatusOK, views)
}

// @Summary Revoke every session belonging to a user
// @Tags sessions
// @Router /api/v1/sessions/{username} [delete]
func (h *SessionsHandler) RevokeUser(ctx *fasthttp.RequestCtx) {
	username, _ := ctx.UserValue("username").(string)
	username = strings.TrimSpace(username)
	if username == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "username is required", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	revoked, err := h.sessions.DeleteAllForUser(stdCtx, username)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.RevokedResponse{Username: username, Revoked: revoked})
}

// @Summary Remove expired sessions now
// @Tags sessions
// @Router /api/v1/sessions/cleanup [post]
func (h *SessionsHandler) Cleanup(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	removed, err := h.sessions.Cleanup(stdCtx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.CleanupResponse{Removed: removed})
}
