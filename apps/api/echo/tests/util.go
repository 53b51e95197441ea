package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/profile"
	"github.com/darasahq/darasa/core/session"

	. "github.com/darasahq/darasa/apps/api/echo"
	memcache "github.com/darasahq/darasa/storage/cache/memory"
	inmemscope "github.com/darasahq/darasa/storage/scope/inmem"
)

const cookieName = "darasa_token"

// fakeUpstream stands in for the core API: a fixed token/profile pair plus a
// scripted sign-in.
type fakeUpstream struct {
	token   string
	p       profile.Profile
	pErr    error
	sub     profile.Subscription
	subErr  error
	signErr error
}

var (
	_ profile.Authenticator       = (*fakeUpstream)(nil)
	_ profile.Fetcher             = (*fakeUpstream)(nil)
	_ profile.SubscriptionFetcher = (*fakeUpstream)(nil)
)

func (f *fakeUpstream) SignIn(_ context.Context, username, password string) (profile.SignInResult, error) {
	if f.signErr != nil {
		return profile.SignInResult{}, f.signErr
	}
	if username != "jane@test.test" || password != "s3cret" {
		return profile.SignInResult{}, core.NewValidationError(nil, core.FieldError{
			Field: "username", Error: "invalid credentials",
		})
	}
	return profile.SignInResult{Message: "welcome", Token: f.token}, nil
}

func (f *fakeUpstream) FetchProfile(_ context.Context, token string) (profile.Profile, error) {
	if f.pErr != nil {
		return profile.Profile{}, f.pErr
	}
	if token != f.token {
		return profile.Profile{}, profile.ErrAuth
	}
	return f.p, nil
}

func (f *fakeUpstream) FetchSubscription(context.Context, string, string, string) (profile.Subscription, error) {
	if f.subErr != nil {
		return profile.Subscription{}, f.subErr
	}
	return f.sub, nil
}

type app struct {
	server   *Server
	upstream *fakeUpstream
	scope    *inmemscope.Store
	cache    *memcache.Cache
	sessions *session.Manager
	conf     *core.Config
}

func setup(t *testing.T, upstream *fakeUpstream) *app {
	t.Helper()

	conf := &core.Config{Debug: false, TestMode: true}
	conf.Session.CookieName = cookieName
	conf.Session.TokenTTL = time.Hour
	conf.Session.CacheTTL = time.Hour

	scope := inmemscope.New()
	cache := memcache.New()
	sessions := session.NewManager(session.Deps{
		Scope:         scope,
		Cache:         cache,
		Profiles:      upstream,
		Subscriptions: upstream,
		CacheTTL:      conf.Session.CacheTTL,
	})

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         nopLogger{},
		Sessions:       sessions,
		Auth:           upstream,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return &app{
		server:   server,
		upstream: upstream,
		scope:    scope,
		cache:    cache,
		sessions: sessions,
		conf:     conf,
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (a *app) request(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// jsonDiff renders a unified diff of the two (indented) payloads for test
// failure output.
func jsonDiff(b1, b2 []byte) string {
	pretty := func(b []byte) string {
		var buf bytes.Buffer
		if err := json.Indent(&buf, b, "", "  "); err != nil {
			return string(b)
		}
		return buf.String()
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(pretty(b1)),
		B:        difflib.SplitLines(pretty(b2)),
		FromFile: "got",
		ToFile:   "want",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
		return
	}
	if !ok {
		t.Errorf("failed! data mismatch:\n%s", jsonDiff(rec.Body.Bytes(), tt.wantData))
	}
}

// sessionCookie returns the value of the credential cookie set on rec, with a
// found flag.
func sessionCookie(rec *httptest.ResponseRecorder) (*http.Cookie, bool) {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c, true
		}
	}
	return nil, false
}
