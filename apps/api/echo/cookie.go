package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/darasahq/darasa/core/session"
)

// cookieTokenStore binds the credential slot to the current exchange's cookie.
// Path is fixed to "/" so the whole SPA shares one slot.
type cookieTokenStore struct {
	ctx  echo.Context
	name string
}

var _ session.TokenStore = cookieTokenStore{}

func newCookieTokenStore(ctx echo.Context, name string) cookieTokenStore {
	return cookieTokenStore{ctx: ctx, name: name}
}

func (s cookieTokenStore) Get() (string, bool) {
	cookie, err := s.ctx.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (s cookieTokenStore) Set(token string, ttl time.Duration) {
	s.ctx.SetCookie(&http.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s cookieTokenStore) Clear() {
	s.ctx.SetCookie(&http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
