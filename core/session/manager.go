package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/ability"
	"github.com/darasahq/darasa/core/profile"
)

// Deps are the collaborators injected at the application root. There is no
// package-level session singleton: tests supply isolated managers.
type Deps struct {
	Scope         ScopeStore
	Cache         Cache
	Profiles      profile.Fetcher
	Subscriptions profile.SubscriptionFetcher
	Logger        core.Logger
	CacheTTL      time.Duration
	Now           func() time.Time // defaults to time.Now
}

// Manager hands out the per-user Session orchestrators.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.CacheTTL == 0 {
		deps.CacheTTL = 7 * 24 * time.Hour
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Session returns the orchestrator for the given credential key, creating one
// on first sight.
func (m *Manager) Session(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := &Session{
		key:           key,
		id:            uuid.NewString(),
		scope:         m.deps.Scope,
		cache:         m.deps.Cache,
		profiles:      m.deps.Profiles,
		subscriptions: m.deps.Subscriptions,
		logger:        m.deps.Logger,
		now:           m.deps.Now,
		cacheTTL:      m.deps.CacheTTL,
		abil:          ability.Guest(),
	}
	m.sessions[key] = s
	return s
}

// Evict drops the orchestrator for key; a later Session call starts fresh.
func (m *Manager) Evict(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
