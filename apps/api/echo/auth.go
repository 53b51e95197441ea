package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/profile"
	"github.com/darasahq/darasa/core/session"
)

type authApi struct {
	conf       *core.Config
	logger     core.Logger
	sessions   *session.Manager
	auth       profile.Authenticator
	validate   *validator.Validate
	translator ut.Translator
}

func registerAuthAPI(g *echo.Group, deps ServerDeps) {
	api := authApi{
		conf:       deps.Conf,
		logger:     deps.Logger,
		sessions:   deps.Sessions,
		auth:       deps.Auth,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	ag := g.Group("/auth")
	ag.POST("/sign-in", api.signIn, RedirectIfAuthed(deps.Conf))
	ag.GET("/session", api.session)
	ag.POST("/switch-company", api.switchCompany, RequireAuth(deps.Conf))
	ag.POST("/sign-out", api.signOut)
}

// Handlers

func (api *authApi) signIn(ctx echo.Context) error {
	var data SignInRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignInRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.auth.SignIn(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "signing in")
	}

	// persist the credential before the session is considered established
	newCookieTokenStore(ctx, api.conf.Session.CookieName).Set(res.Token, api.conf.Session.TokenTTL)

	return ctx.JSON(http.StatusOK, res)
}

func (api *authApi) session(ctx echo.Context) error {
	tokens := newCookieTokenStore(ctx, api.conf.Session.CookieName)
	token, ok := readCredential(ctx, api.conf)
	if !ok {
		return ctx.JSON(http.StatusOK, session.GuestSnapshot())
	}

	sess := api.sessions.Session(session.CredentialKey(token))
	return ctx.JSON(http.StatusOK, sess.Load(ctx.Request().Context(), tokens))
}

func (api *authApi) switchCompany(ctx echo.Context) error {
	var data SwitchCompanyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SwitchCompanyRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tokens := newCookieTokenStore(ctx, api.conf.Session.CookieName)
	token, _ := readCredential(ctx, api.conf)
	sess := api.sessions.Session(session.CredentialKey(token))

	// make sure the profile is loaded before switching (first call after a
	// reload may land here)
	snap := sess.Load(ctx.Request().Context(), tokens)
	if snap.Profile == nil {
		if snap.ProfileError != "" {
			return errors.Errorf("switching company: %s", snap.ProfileError)
		}
		return errUnauthorized
	}

	if _, err := sess.SetCompany(ctx.Request().Context(), data.CompanyID); err != nil {
		if errors.Cause(err) == session.ErrNotMember {
			return core.NewValidationError(err, core.FieldError{Field: "company_id", Error: err.Error()})
		}
		return errors.Wrap(err, "switching company")
	}

	// re-evaluate so the subscription read for the new tenant kicks off
	return ctx.JSON(http.StatusOK, sess.Load(ctx.Request().Context(), tokens))
}

func (api *authApi) signOut(ctx echo.Context) error {
	tokens := newCookieTokenStore(ctx, api.conf.Session.CookieName)

	if token, ok := tokens.Get(); ok {
		key := session.CredentialKey(token)
		sess := api.sessions.Session(key)
		if err := sess.Logout(ctx.Request().Context(), tokens); err != nil {
			// the in-memory session is reset regardless; log and move on
			api.logger.Error("signing out", err)
		}
		api.sessions.Evict(key)
	} else {
		tokens.Clear()
	}

	return ctx.JSON(http.StatusOK, RedirectResponse{Redirect: signInPath})
}

type (
	SignInRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	SwitchCompanyRequest struct {
		CompanyID string `json:"company_id" validate:"required"`
	}
)

func (sr *SignInRequest) Validate(validate *validator.Validate) error {
	sr.Username = core.CleanString(sr.Username, true /* lower */)
	return validate.Struct(sr)
}

func (sc *SwitchCompanyRequest) Validate(validate *validator.Validate) error {
	sc.CompanyID = core.CleanString(sc.CompanyID)
	return validate.Struct(sc)
}
