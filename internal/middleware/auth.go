// Package middleware guards protected routes: it extracts the session
// token, validates and renews the session, checks the route's scope
// requirement, and attaches the session to the request for handlers.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/jborjar/paquetes/api/transport"
	"github.com/jborjar/paquetes/domain"
	"github.com/jborjar/paquetes/scope"
	sessionUC "github.com/jborjar/paquetes/usecase/session"
)

const sessionUserValue = "auth_session"

// RequireSession builds the request guard. Missing, malformed, unknown,
// and expired credentials all produce the same 401; a valid session that
// lacks the required scopes produces 403; a storage failure maps to a
// generic 500 without internal detail. Passing the guard counts as
// activity and slides the session's expiration window.
func RequireSession(
	sessions *sessionUC.Manager,
	extractor CredentialExtractor,
	requiredScopes []string,
	logger *zap.Logger,
) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return guard(sessions, extractor, requiredScopes, true, logger)
}

// RequireSessionPeek is RequireSession without the activity touch: the
// session is validated but its window does not slide. Used by read-only
// introspection routes.
func RequireSessionPeek(
	sessions *sessionUC.Manager,
	extractor CredentialExtractor,
	requiredScopes []string,
	logger *zap.Logger,
) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return guard(sessions, extractor, requiredScopes, false, logger)
}

func guard(
	sessions *sessionUC.Manager,
	extractor CredentialExtractor,
	requiredScopes []string,
	renew bool,
	logger *zap.Logger,
) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			token, err := extractor.Token(ctx)
			if err != nil {
				respond(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, err.Error())
				return
			}

			view, err := sessions.Validate(ctx, token, renew)
			if err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) {
					respond(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, domain.ErrMissingCredential.Message)
					return
				}
				logger.Error("session validation failed", zap.Error(err))
				respond(ctx, http.StatusInternalServerError, domain.ErrCodeInternal, "internal error")
				return
			}

			if len(requiredScopes) > 0 {
				granted := grantedScopes(view)
				if !scope.Authorize(requiredScopes, granted) {
					logger.Warn("scope check failed",
						zap.String("username", view.Username),
						zap.Strings("required", requiredScopes))
					respond(ctx, http.StatusForbidden, domain.ErrCodeForbidden, domain.ErrInsufficientScope.Message)
					return
				}
			}

			ctx.SetUserValue(sessionUserValue, view)
			next(ctx)
		}
	}
}

// SessionFrom returns the session the guard attached, if any.
func SessionFrom(ctx *fasthttp.RequestCtx) (*domain.SessionView, bool) {
	view, ok := ctx.UserValue(sessionUserValue).(*domain.SessionView)
	return view, ok
}

// ResolveSession validates the request's credential without failing the
// request: nil means anonymous. Useful for routes with optional auth.
func ResolveSession(ctx *fasthttp.RequestCtx, sessions *sessionUC.Manager, extractor CredentialExtractor) *domain.SessionView {
	token, err := extractor.Token(ctx)
	if err != nil {
		return nil
	}
	view, err := sessions.Validate(ctx, token, true)
	if err != nil {
		return nil
	}
	return view
}

func grantedScopes(view *domain.SessionView) []string {
	if view == nil || view.Scopes == nil {
		return nil
	}
	return scope.ParseList(*view.Scopes)
}

func respond(ctx *fasthttp.RequestCtx, status int, code domain.ErrorCode, message string) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(transport.NewError(string(code), message, nil))
	ctx.SetBody(body)
}
