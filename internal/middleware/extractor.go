package middleware

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/jborjar/paquetes/domain"
)

// DefaultCookieName is the fallback cookie consulted when no Authorization
// header is present.
const DefaultCookieName = "session_auth"

// CredentialExtractor pulls a session token out of an inbound request. One
// implementation exists per host framework and is chosen at wiring time;
// request handling never branches on request shape.
type CredentialExtractor interface {
	Token(ctx *fasthttp.RequestCtx) (string, error)
}

// BearerExtractor reads "Authorization: Bearer <token>", falling back to a
// named cookie. A present but malformed header is rejected outright, even
// when the cookie would have worked.
type BearerExtractor struct {
	CookieName string
}

func NewBearerExtractor(cookieName string) BearerExtractor {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return BearerExtractor{CookieName: cookieName}
}

func (e BearerExtractor) Token(ctx *fasthttp.RequestCtx) (string, error) {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header != "" {
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", domain.ErrMalformedAuthorization
		}
		return parts[1], nil
	}

	if cookie := ctx.Request.Header.Cookie(e.CookieName); len(cookie) > 0 {
		return string(cookie), nil
	}
	return "", domain.ErrMissingCredential
}
