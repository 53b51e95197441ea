package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/session"
)

const signInPath = "/auth/sign-in"

// RedirectResponse tells the SPA where to navigate. From preserves the
// originally requested location for post-login return.
type RedirectResponse struct {
	Redirect string `json:"redirect"`
	From     string `json:"from,omitempty"`
}

// readCredential returns the bearer credential on the exchange. An expired
// token is reported absent so guards route straight to sign-in.
func readCredential(ctx echo.Context, conf *core.Config) (string, bool) {
	token, ok := newCookieTokenStore(ctx, conf.Session.CookieName).Get()
	if !ok || session.CredentialExpired(token, time.Now()) {
		return "", false
	}
	return token, true
}

// RequireAuth guards routes that need a credential. It consumes credential
// presence only, never tenant resolution, so guarded reads are not blocked
// by an in-flight profile fetch elsewhere.
func RequireAuth(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, ok := readCredential(ctx, conf); !ok {
				return ctx.JSON(http.StatusUnauthorized, RedirectResponse{
					Redirect: signInPath,
					From:     ctx.Request().URL.Path,
				})
			}
			return next(ctx)
		}
	}
}

// RedirectIfAuthed is the companion guard for auth-only routes (sign-in,
// sign-up): an existing credential redirects away immediately, without waiting
// for the profile load.
func RedirectIfAuthed(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, ok := readCredential(ctx, conf); ok {
				return ctx.JSON(http.StatusConflict, RedirectResponse{Redirect: "/"})
			}
			return next(ctx)
		}
	}
}
