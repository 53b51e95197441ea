package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/darasahq/darasa/core/profile"
	"github.com/darasahq/darasa/core/session"
	memcache "github.com/darasahq/darasa/storage/cache/memory"
	inmemscope "github.com/darasahq/darasa/storage/scope/inmem"
	testutil "github.com/darasahq/darasa/tests"
)

type memTokenStore struct {
	mu    sync.Mutex
	token string
	ok    bool
}

func (s *memTokenStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.ok
}

func (s *memTokenStore) Set(token string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.ok = token, true
}

func (s *memTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.ok = "", false
}

type fakeFetcher struct {
	mu      sync.Mutex
	p       profile.Profile
	err     error
	calls   int
	started chan struct{} // closed on first call, when set
	block   chan struct{} // FetchProfile waits on it, when set
}

func (f *fakeFetcher) FetchProfile(_ context.Context, _ string) (profile.Profile, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	started, block := f.started, f.block
	p, err := f.p, f.err
	f.mu.Unlock()

	if started != nil && first {
		close(started)
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeSubs struct {
	mu    sync.Mutex
	sub   profile.Subscription
	err   error
	calls int
}

func (f *fakeSubs) FetchSubscription(_ context.Context, _, _, _ string) (profile.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return profile.Subscription{}, f.err
	}
	return f.sub, nil
}

type env struct {
	scope    *inmemscope.Store
	cache    *memcache.Cache
	profiles *fakeFetcher
	subs     *fakeSubs
	manager  *session.Manager
	tokens   *memTokenStore
	token    string
}

func setup(t *testing.T, p profile.Profile) *env {
	t.Helper()
	e := &env{
		scope:    inmemscope.New(),
		cache:    memcache.New(),
		profiles: &fakeFetcher{p: p},
		subs:     &fakeSubs{sub: profile.Subscription{Status: "active", Price: 49, CompanyCustomer: "cus_123"}},
		tokens:   &memTokenStore{},
	}
	e.manager = newManager(e)
	e.token = testutil.Token(t, p.ID, time.Now().Add(time.Hour))
	e.tokens.Set(e.token, time.Hour)
	return e
}

func newManager(e *env) *session.Manager {
	return session.NewManager(session.Deps{
		Scope:         e.scope,
		Cache:         e.cache,
		Profiles:      e.profiles,
		Subscriptions: e.subs,
	})
}

// reload simulates a full page reload: fresh manager (no in-memory session),
// same persisted stores and cache.
func (e *env) reload() *session.Manager {
	e.manager = newManager(e)
	return e.manager
}

func (e *env) session() *session.Session {
	return e.manager.Session(session.CredentialKey(e.token))
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func twoMemberships() (profile.Membership, profile.Membership) {
	a := testutil.Membership("mem-1", "com-a", "Academy A", profile.RoleTeacher)
	b := testutil.Membership("mem-2", "com-b", "Academy B", profile.RoleAdmin)
	return a, b
}

func TestLoad_zeroMemberships(t *testing.T) {
	e := setup(t, testutil.Profile("usr-1", "jane"))

	snap := e.session().Load(context.Background(), e.tokens)

	if !snap.IsReady {
		t.Errorf("IsReady = false, want true (no infinite loading)")
	}
	if snap.ActiveMembership != nil {
		t.Errorf("ActiveMembership = %+v, want nil", snap.ActiveMembership)
	}
	if snap.State != "ready" {
		t.Errorf("State = %q, want %q", snap.State, "ready")
	}
	if snap.Role != "" {
		t.Errorf("Role = %q, want empty", snap.Role)
	}
}

func TestLoad_firstLogin_selectsFirstMembership(t *testing.T) {
	a, b := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a, b))

	snap := e.session().Load(context.Background(), e.tokens)

	if snap.ActiveMembership == nil || snap.ActiveMembership.Company.ID != a.Company.ID {
		t.Fatalf("ActiveMembership = %+v, want company %s", snap.ActiveMembership, a.Company.ID)
	}
	if snap.Role != profile.RoleTeacher {
		t.Errorf("Role = %q, want %q", snap.Role, profile.RoleTeacher)
	}
	if id, ok, _ := e.scope.Get(context.Background(), "usr-1"); !ok || id != a.Company.ID {
		t.Errorf("persisted scope = %q (%v), want %q", id, ok, a.Company.ID)
	}
}

func TestLoad_persistedScope_selectsThatMembership(t *testing.T) {
	a, b := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a, b))
	_ = e.scope.Set(context.Background(), "usr-1", b.Company.ID)

	snap := e.session().Load(context.Background(), e.tokens)

	if snap.ActiveMembership == nil || snap.ActiveMembership.Company.ID != b.Company.ID {
		t.Fatalf("ActiveMembership = %+v, want company %s", snap.ActiveMembership, b.Company.ID)
	}
	if snap.Role != profile.RoleAdmin {
		t.Errorf("Role = %q, want %q", snap.Role, profile.RoleAdmin)
	}
}

func TestLoad_staleScope_fallsBackToFirst(t *testing.T) {
	a, b := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a, b))
	_ = e.scope.Set(context.Background(), "usr-1", "com-revoked")

	snap := e.session().Load(context.Background(), e.tokens)

	if snap.ActiveMembership == nil || snap.ActiveMembership.Company.ID != a.Company.ID {
		t.Fatalf("ActiveMembership = %+v, want fallback to %s", snap.ActiveMembership, a.Company.ID)
	}
	if snap.ProfileError != "" {
		t.Errorf("ProfileError = %q, want silent recovery", snap.ProfileError)
	}
	// the fallback is persisted
	if id, _, _ := e.scope.Get(context.Background(), "usr-1"); id != a.Company.ID {
		t.Errorf("persisted scope = %q, want %q", id, a.Company.ID)
	}
}

func TestLoad_resolutionIsIdempotent(t *testing.T) {
	a, b := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a, b))
	sess := e.session()

	first := sess.Load(context.Background(), e.tokens)
	second := sess.Load(context.Background(), e.tokens)

	assert.Equal(t, first.ActiveMembership, second.ActiveMembership, "active membership flapped")
	assert.Equal(t, first.Role, second.Role)
	if calls := e.profiles.Calls(); calls != 1 {
		t.Errorf("profile fetches = %d, want 1 (cached per session-load)", calls)
	}
}

func TestSetCompany_roundTrip(t *testing.T) {
	a, b := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a, b))
	sess := e.session()
	sess.Load(context.Background(), e.tokens)

	snap, err := sess.SetCompany(context.Background(), b.Company.ID)
	if err != nil {
		t.Fatalf("SetCompany() failed: %v", err)
	}

	if snap.Role != profile.RoleAdmin {
		t.Errorf("Role = %q, want %q", snap.Role, profile.RoleAdmin)
	}
	if snap.ActiveMembership == nil || snap.ActiveMembership.Company.ID != b.Company.ID {
		t.Errorf("ActiveMembership = %+v, want company %s", snap.ActiveMembership, b.Company.ID)
	}
	if id, _, _ := e.scope.Get(context.Background(), "usr-1"); id != b.Company.ID {
		t.Errorf("persisted scope = %q, want %q", id, b.Company.ID)
	}
	if snap.State != "ready" {
		t.Errorf("State = %q, want %q (switch settles synchronously)", snap.State, "ready")
	}
}

func TestSetCompany_notMember(t *testing.T) {
	a, _ := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a))
	sess := e.session()
	sess.Load(context.Background(), e.tokens)

	if _, err := sess.SetCompany(context.Background(), "com-nope"); err != session.ErrNotMember {
		t.Errorf("SetCompany() error = %v, want %v", err, session.ErrNotMember)
	}
}

func TestSetCompany_beforeLoad(t *testing.T) {
	a, _ := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a))

	if _, err := e.session().SetCompany(context.Background(), a.Company.ID); err != session.ErrNotReady {
		t.Errorf("SetCompany() error = %v, want %v", err, session.ErrNotReady)
	}
}

// Scenario: first login selects A (teacher); switch to B (admin); a reload
// with the persisted scope selects B directly.
func TestScenario_switchThenReload(t *testing.T) {
	a, b := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a, b))
	sess := e.session()

	snap := sess.Load(context.Background(), e.tokens)
	if snap.ActiveMembership.Company.ID != a.Company.ID || snap.Role != profile.RoleTeacher {
		t.Fatalf("first login selected %+v (%s), want company %s role %s",
			snap.ActiveMembership, snap.Role, a.Company.ID, profile.RoleTeacher)
	}

	if _, err := sess.SetCompany(context.Background(), b.Company.ID); err != nil {
		t.Fatalf("SetCompany() failed: %v", err)
	}

	e.reload()
	snap = e.session().Load(context.Background(), e.tokens)
	if snap.ActiveMembership.Company.ID != b.Company.ID || snap.Role != profile.RoleAdmin {
		t.Errorf("reload selected %+v (%s), want company %s role %s",
			snap.ActiveMembership, snap.Role, b.Company.ID, profile.RoleAdmin)
	}
}

// Scenario: the previously selected membership was revoked server-side; a
// reload falls back to member_on[0] without error.
func TestScenario_revokedMembershipOnReload(t *testing.T) {
	a, b := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a, b))
	sess := e.session()
	sess.Load(context.Background(), e.tokens)
	if _, err := sess.SetCompany(context.Background(), b.Company.ID); err != nil {
		t.Fatalf("SetCompany() failed: %v", err)
	}

	// b revoked server-side; cached profile must not mask it after restart
	e.profiles.mu.Lock()
	e.profiles.p = testutil.Profile("usr-1", "jane", a)
	e.profiles.mu.Unlock()
	_ = e.cache.DeletePrefix(context.Background(), "session:")

	e.reload()
	snap := e.session().Load(context.Background(), e.tokens)
	if snap.ActiveMembership == nil || snap.ActiveMembership.Company.ID != a.Company.ID {
		t.Fatalf("ActiveMembership = %+v, want fallback to %s", snap.ActiveMembership, a.Company.ID)
	}
	if snap.ProfileError != "" || !snap.IsReady {
		t.Errorf("fallback not silent: err=%q ready=%v", snap.ProfileError, snap.IsReady)
	}
}

func TestLogout_clearsEverything(t *testing.T) {
	a, _ := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a))
	sess := e.session()
	sess.Load(context.Background(), e.tokens)
	waitUntil(t, func() bool { return !sess.Snapshot().SubscriptionLoading })

	if e.cache.Len() == 0 {
		t.Fatal("expected cached reads before logout")
	}

	if err := sess.Logout(context.Background(), e.tokens); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}

	if _, ok := e.tokens.Get(); ok {
		t.Errorf("token store not cleared")
	}
	if _, ok, _ := e.scope.Get(context.Background(), "usr-1"); ok {
		t.Errorf("scope store not cleared")
	}
	if e.cache.Len() != 0 {
		t.Errorf("cache holds %d entries after logout, want 0", e.cache.Len())
	}

	snap := sess.Snapshot()
	if snap.State != "unauthenticated" || snap.Profile != nil {
		t.Errorf("session not reset: %+v", snap)
	}

	// a later sign-in must fetch again, not hit a stale cache
	before := e.profiles.Calls()
	e.tokens.Set(e.token, time.Hour)
	e.reload()
	e.session().Load(context.Background(), e.tokens)
	if e.profiles.Calls() != before+1 {
		t.Errorf("profile fetches = %d, want %d (cache must not serve a logged-out profile)",
			e.profiles.Calls(), before+1)
	}
}

// A profile fetch that resolves after logout must not revive session state.
func TestLogout_discardsLateProfileFetch(t *testing.T) {
	a, _ := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a))
	e.profiles.started = make(chan struct{})
	e.profiles.block = make(chan struct{})
	sess := e.session()

	done := make(chan session.Snapshot, 1)
	go func() { done <- sess.Load(context.Background(), e.tokens) }()
	<-e.profiles.started

	if err := sess.Logout(context.Background(), e.tokens); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	close(e.profiles.block)

	snap := <-done
	if snap.State != "unauthenticated" || snap.Profile != nil {
		t.Errorf("late fetch revived session: %+v", snap)
	}
	if after := sess.Snapshot(); after.Profile != nil {
		t.Errorf("late fetch revived session after settle: %+v", after)
	}
}

func TestLoad_authError_treatedAsUnauthenticated(t *testing.T) {
	a, _ := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a))
	e.profiles.SetErr(profile.ErrAuth)

	snap := e.session().Load(context.Background(), e.tokens)

	if snap.State != "unauthenticated" {
		t.Errorf("State = %q, want %q", snap.State, "unauthenticated")
	}
	if !snap.IsReady {
		t.Errorf("IsReady = false, want true (terminal settle)")
	}
	// the stale token is left to expire via its TTL
	if _, ok := e.tokens.Get(); !ok {
		t.Errorf("token store cleared on auth error, want left in place")
	}
}

func TestLoad_networkError_holdsWithFlag(t *testing.T) {
	a, _ := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a))
	e.profiles.SetErr(&profile.NetworkError{Err: context.DeadlineExceeded})
	sess := e.session()

	snap := sess.Load(context.Background(), e.tokens)
	if snap.ProfileError == "" {
		t.Errorf("ProfileError empty, want surfaced network failure")
	}
	if !snap.IsReady {
		t.Errorf("IsReady = false, want true (fetch settled)")
	}
	if snap.State != "profile_loading" {
		t.Errorf("State = %q, want %q (no forced transition)", snap.State, "profile_loading")
	}

	// the next evaluation retries and recovers
	e.profiles.SetErr(nil)
	snap = sess.Load(context.Background(), e.tokens)
	if snap.Profile == nil || snap.State != "ready" {
		t.Errorf("retry did not recover: %+v", snap)
	}
}

func TestLoad_expiredCredentialTreatedAsAbsent(t *testing.T) {
	a, _ := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a))
	e.tokens.Set(testutil.Token(t, "usr-1", time.Now().Add(-time.Hour)), time.Hour)

	snap := e.session().Load(context.Background(), e.tokens)

	if snap.State != "unauthenticated" || !snap.IsReady {
		t.Errorf("expired credential: state=%q ready=%v, want unauthenticated/ready", snap.State, snap.IsReady)
	}
	if e.profiles.Calls() != 0 {
		t.Errorf("profile fetched with an expired credential")
	}
}

func TestSubscription_fetchedForActiveTenant(t *testing.T) {
	a, b := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a, b))
	sess := e.session()
	sess.Load(context.Background(), e.tokens)

	waitUntil(t, func() bool {
		snap := sess.Snapshot()
		return !snap.SubscriptionLoading && snap.Subscription != nil
	})

	snap := sess.Snapshot()
	if snap.Subscription.Status != "active" {
		t.Errorf("Subscription = %+v, want status active", snap.Subscription)
	}

	// switching tenants refetches for the new scope
	if _, err := sess.SetCompany(context.Background(), b.Company.ID); err != nil {
		t.Fatalf("SetCompany() failed: %v", err)
	}
	if snap = sess.Snapshot(); snap.Subscription != nil {
		t.Errorf("stale subscription survives tenant switch: %+v", snap.Subscription)
	}
	sess.Load(context.Background(), e.tokens)
	waitUntil(t, func() bool {
		snap := sess.Snapshot()
		return !snap.SubscriptionLoading && snap.Subscription != nil
	})
}

func TestSubscription_failureDoesNotUnready(t *testing.T) {
	a, _ := twoMemberships()
	e := setup(t, testutil.Profile("usr-1", "jane", a))
	e.subs.mu.Lock()
	e.subs.err = &profile.NetworkError{Err: context.DeadlineExceeded}
	e.subs.mu.Unlock()
	sess := e.session()

	sess.Load(context.Background(), e.tokens)
	waitUntil(t, func() bool { return !sess.Snapshot().SubscriptionLoading })

	snap := sess.Snapshot()
	if !snap.IsReady || snap.State != "ready" {
		t.Errorf("subscription failure affected readiness: %+v", snap)
	}
	if snap.SubscriptionError == "" {
		t.Errorf("SubscriptionError empty, want surfaced failure")
	}
}

func TestGuestSnapshot(t *testing.T) {
	snap := session.GuestSnapshot()
	if !snap.IsReady || snap.State != "unauthenticated" {
		t.Errorf("GuestSnapshot() = %+v, want ready unauthenticated", snap)
	}
	if len(snap.Rules) == 0 {
		t.Errorf("guest rules empty, want minimal student privileges")
	}
}
