package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/ability"
	"github.com/darasahq/darasa/core/profile"
)

var (
	// ErrNotReady is returned by SetCompany before the profile has loaded.
	ErrNotReady = errors.New("session profile not loaded")
	// ErrNotMember is returned by SetCompany for a company the user holds no
	// membership on.
	ErrNotMember = errors.New("no membership on this company")
)

// Session orchestrates one user's authentication state: it owns the credential
// and tenant-scope slots, drives the profile fetch through the shared cache,
// resolves the active membership and derives the ability predicate.
//
// All external events go through the apply reducer under s.mu. Async settles
// carry the epoch they started under; a result from a superseded epoch (a
// fetch resolving after logout) is discarded instead of reviving state.
type Session struct {
	key string // stable per-user key, see CredentialKey
	id  string // instance id, log correlation only

	scope         ScopeStore
	cache         Cache
	profiles      profile.Fetcher
	subscriptions profile.SubscriptionFetcher
	logger        core.Logger
	now           func() time.Time
	cacheTTL      time.Duration

	mu         sync.Mutex
	epoch      uint64
	state      State
	prof       *profile.Profile
	active     *profile.Membership
	role       profile.Role
	abil       ability.Ability
	sub        *profile.Subscription
	profileErr error
	subErr     error
	subLoading bool
	subFor     string // company id the subscription fetch belongs to
}

// Snapshot is the composite session state: a pure projection, recomputed on
// demand and never persisted.
type Snapshot struct {
	State                string                `json:"state"`
	Profile              *profile.Profile      `json:"profile"`
	ActiveMembership     *profile.Membership   `json:"active_membership"`
	Role                 profile.Role          `json:"role,omitempty"`
	Rules                []ability.Rule        `json:"rules"`
	Subscription         *profile.Subscription `json:"subscription"`
	IsReady              bool                  `json:"is_ready"`
	IsInitializingTenant bool                  `json:"is_initializing_tenant"`
	ProfileLoading       bool                  `json:"profile_loading"`
	SubscriptionLoading  bool                  `json:"subscription_loading"`
	ProfileError         string                `json:"profile_error,omitempty"`
	SubscriptionError    string                `json:"subscription_error,omitempty"`
}

// GuestSnapshot is the state served when no credential exists: unauthenticated,
// ready, with the minimal-privilege guest rules so permission checks never run
// against an undefined ability.
func GuestSnapshot() Snapshot {
	return Snapshot{
		State:   StateUnauthenticated.String(),
		Rules:   ability.Guest().Rules(),
		IsReady: true,
	}
}

// Key returns the session's stable per-user key.
func (s *Session) Key() string { return s.key }

// apply is the single reducer: every transition of the session lifecycle runs
// through it with s.mu held.
func (s *Session) apply(ev event) {
	switch ev := ev.(type) {
	case credentialSeen:
		if s.state == StateUnauthenticated {
			s.state = StateProfileLoading
			s.profileErr = nil
		}

	case credentialGone:
		if s.state == StateUnauthenticated && s.prof == nil {
			return
		}
		s.resetLocked()
		s.state = StateUnauthenticated

	case profileFetched:
		if ev.epoch != s.epoch {
			return // superseded session; discard
		}
		p := ev.p
		s.prof = &p
		s.profileErr = nil
		switch {
		case s.state == StateProfileLoading:
			s.state = StateTenantUninitialized
		case s.state == StateReady && s.active != nil && !p.HasMembership(*s.active):
			// the refetched profile no longer holds the selected membership
			s.state = StateTenantUninitialized
		}

	case profileFailed:
		if ev.epoch != s.epoch {
			return
		}
		if profile.IsAuthError(ev.err) {
			// treat as never authenticated; the stale token is left to expire
			// via its TTL (see CredentialExpired for the presence check)
			s.resetLocked()
			s.state = StateUnauthenticated
			return
		}
		// hold with the error surfaced; the next evaluation retries
		s.profileErr = ev.err

	case tenantResolved:
		if ev.epoch != s.epoch || s.state != StateTenantUninitialized {
			return
		}
		s.selectMembership(ev.m)
		s.state = StateReady

	case companySwitched:
		m := ev.m
		s.selectMembership(&m)
		s.sub = nil
		s.subErr = nil
		s.subLoading = false
		s.subFor = ""
		s.state = StateReady

	case subscriptionSettled:
		if ev.epoch != s.epoch {
			return
		}
		if s.active == nil || s.active.Company.ID != ev.companyID {
			return // settled for a tenant no longer active
		}
		s.subLoading = false
		s.sub = ev.sub
		s.subErr = ev.err

	case loggedOut:
		s.resetLocked()
		s.state = StateUnauthenticated
	}
}

func (s *Session) selectMembership(m *profile.Membership) {
	s.active = m
	if m != nil {
		s.role = m.Role
		userID := ""
		if s.prof != nil {
			userID = s.prof.ID
		}
		s.abil = ability.Derive(ability.Identity{ID: userID, Role: m.Role})
	} else {
		s.role = ""
		s.abil = ability.Guest()
	}
}

func (s *Session) resetLocked() {
	s.epoch++ // anything still in flight is now stale
	s.prof = nil
	s.active = nil
	s.role = ""
	s.abil = ability.Guest()
	s.sub = nil
	s.profileErr = nil
	s.subErr = nil
	s.subLoading = false
	s.subFor = ""
}

// Load drives the session towards Ready for the credential held by tokens.
// It is idempotent: re-invoking it with unchanged inputs changes nothing
// (re-evaluation happens on every snapshot request).
func (s *Session) Load(ctx context.Context, tokens TokenStore) Snapshot {
	token, ok := tokens.Get()
	if !ok || CredentialExpired(token, s.now()) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.apply(credentialGone{})
		return s.snapshotLocked()
	}

	s.mu.Lock()
	s.apply(credentialSeen{})
	epoch := s.epoch
	needProfile := s.state == StateProfileLoading
	s.mu.Unlock()

	if needProfile {
		p, err := s.loadProfile(ctx, token)
		s.mu.Lock()
		if err != nil {
			s.apply(profileFailed{err: err, epoch: epoch})
		} else {
			s.apply(profileFetched{p: p, epoch: epoch})
		}
		s.mu.Unlock()
	}

	s.resolveTenant(ctx, epoch)
	s.maybeFetchSubscription(token, epoch)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// resolveTenant runs the resolution rules once per profile load:
//
//	a. zero memberships: Ready with no active tenant (display-only case);
//	b. a prior, still-held selection is kept (no redundant reselection);
//	c. a persisted scope naming a held membership is selected;
//	d. otherwise member_on[0], in backend order;
//	e. the selection is persisted before being committed in memory.
func (s *Session) resolveTenant(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	if s.state != StateTenantUninitialized || s.epoch != epoch || s.prof == nil {
		s.mu.Unlock()
		return
	}
	p := *s.prof
	prior := s.active
	priorRole := s.role
	s.mu.Unlock()

	if len(p.MemberOn) == 0 { // (a)
		s.mu.Lock()
		s.apply(tenantResolved{m: nil, epoch: epoch})
		s.mu.Unlock()
		return
	}

	if prior != nil && priorRole != "" && p.HasMembership(*prior) { // (b)
		s.mu.Lock()
		s.apply(tenantResolved{m: prior, epoch: epoch})
		s.mu.Unlock()
		return
	}

	selected := p.MemberOn[0] // (d)
	if id, ok, err := s.scope.Get(ctx, s.key); err != nil {
		// treated as absent; the first membership fallback applies
		s.logger.Warn("session: reading tenant scope", err)
	} else if ok {
		if m, held := p.MembershipFor(id); held { // (c)
			selected = m
		}
		// a stale persisted tenant recovers silently via the fallback
	}

	if err := s.scope.Set(ctx, s.key, selected.Company.ID); err != nil { // (e)
		s.logger.Error("session: persisting tenant scope", err)
	}
	s.mu.Lock()
	s.apply(tenantResolved{m: &selected, epoch: epoch})
	s.mu.Unlock()
}

// SetCompany switches the active tenant. The membership must exist on the
// loaded profile; the new scope is persisted before the in-memory switch
// commits, so a reload immediately after observes the new tenant.
func (s *Session) SetCompany(ctx context.Context, companyID string) (Snapshot, error) {
	s.mu.Lock()
	if s.prof == nil {
		s.mu.Unlock()
		return Snapshot{}, ErrNotReady
	}
	m, ok := s.prof.MembershipFor(companyID)
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrNotMember
	}

	if err := s.scope.Set(ctx, s.key, m.Company.ID); err != nil {
		return Snapshot{}, errors.Wrap(err, "persisting tenant scope")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(companySwitched{m: m})
	return s.snapshotLocked(), nil
}

// Logout clears the credential, the persisted scope and every cached read of
// this session, then resets to Unauthenticated. The epoch bump makes any
// in-flight fetch result stale. Cleanup and reset happen under one lock, so no
// reader observes a cleared credential alongside a stale cached profile.
func (s *Session) Logout(ctx context.Context, tokens TokenStore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateLoggedOut
	tokens.Clear()

	var firstErr error
	if err := s.scope.Clear(ctx, s.key); err != nil {
		firstErr = errors.Wrap(err, "clearing tenant scope")
	}
	if err := s.cache.DeletePrefix(ctx, s.cachePrefix()); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "purging session cache")
	}

	s.apply(loggedOut{})
	return firstErr
}

// Snapshot returns the current composite state without driving any fetch.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:                s.state.String(),
		Role:                 s.role,
		Rules:                s.abil.Rules(),
		IsReady:              s.readyLocked(),
		IsInitializingTenant: s.state == StateTenantUninitialized,
		ProfileLoading:       s.state == StateProfileLoading && s.profileErr == nil,
		SubscriptionLoading:  s.subLoading,
	}
	if s.prof != nil {
		p := *s.prof
		snap.Profile = &p
	}
	if s.active != nil {
		m := *s.active
		snap.ActiveMembership = &m
	}
	if s.sub != nil {
		sub := *s.sub
		snap.Subscription = &sub
	}
	if s.profileErr != nil {
		snap.ProfileError = s.profileErr.Error()
	}
	if s.subErr != nil {
		snap.SubscriptionError = s.subErr.Error()
	}
	return snap
}

// readyLocked: true when there is nothing to wait for (no credential) or the
// profile fetch has settled. Tenant resolution and the subscription sub-fetch
// never gate readiness.
func (s *Session) readyLocked() bool {
	switch s.state {
	case StateUnauthenticated, StateReady, StateTenantUninitialized:
		return true
	case StateProfileLoading:
		return s.profileErr != nil // settled with a transient failure
	}
	return false
}

// loadProfile serves the profile from the shared cache under the session's
// fixed key, fetching and caching on a miss.
func (s *Session) loadProfile(ctx context.Context, token string) (profile.Profile, error) {
	ckey := s.profileCacheKey()
	if raw, ok, err := s.cache.Get(ctx, ckey); err != nil {
		s.logger.Warn("session: cache read", err)
	} else if ok {
		var p profile.Profile
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		_ = s.cache.Delete(ctx, ckey) // corrupt entry
	}

	p, err := s.profiles.FetchProfile(ctx, token)
	if err != nil {
		return profile.Profile{}, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := s.cache.Set(ctx, ckey, raw, s.cacheTTL); err != nil {
			s.logger.Warn("session: cache write", err)
		}
	}
	return p, nil
}

// maybeFetchSubscription kicks the background subscription read when the
// session is Ready with an active tenant and no settled or in-flight read for
// that tenant exists. Its failure never invalidates readiness.
func (s *Session) maybeFetchSubscription(token string, epoch uint64) {
	s.mu.Lock()
	if s.state != StateReady || s.active == nil || s.epoch != epoch ||
		s.subLoading || s.subFor == s.active.Company.ID {
		s.mu.Unlock()
		return
	}
	companyID := s.active.Company.ID
	userID := s.prof.ID
	s.subLoading = true
	s.subFor = companyID
	s.mu.Unlock()

	go s.fetchSubscription(token, companyID, userID, epoch)
}

func (s *Session) fetchSubscription(token, companyID, userID string, epoch uint64) {
	// the triggering request may be gone before this settles
	ctx := context.Background()

	ckey := s.subscriptionCacheKey(companyID)
	var sub profile.Subscription
	cached := false
	if raw, ok, err := s.cache.Get(ctx, ckey); err == nil && ok {
		cached = json.Unmarshal(raw, &sub) == nil
	}

	var err error
	if !cached {
		sub, err = s.subscriptions.FetchSubscription(ctx, token, companyID, userID)
		if err == nil {
			if raw, merr := json.Marshal(sub); merr == nil {
				if cerr := s.cache.Set(ctx, ckey, raw, s.cacheTTL); cerr != nil {
					s.logger.Warn("session: cache write", cerr)
				}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.apply(subscriptionSettled{err: err, companyID: companyID, epoch: epoch})
		return
	}
	s.apply(subscriptionSettled{sub: &sub, companyID: companyID, epoch: epoch})
}

func (s *Session) cachePrefix() string {
	return "session:" + s.key + ":"
}

func (s *Session) profileCacheKey() string {
	return s.cachePrefix() + "profile"
}

func (s *Session) subscriptionCacheKey(companyID string) string {
	return s.cachePrefix() + "subscription:" + companyID
}
