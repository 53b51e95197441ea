package session

import (
	"context"
	"time"
)

type (
	// TokenStore wraps the slot holding the bearer credential for the current
	// exchange (a cookie in production). Synchronous; never errors.
	// The Session is its sole writer.
	TokenStore interface {
		Get() (string, bool)
		Set(token string, ttl time.Duration)
		Clear()
	}

	// ScopeStore persists the selected tenant id per user key. It survives
	// restarts and holds only a non-secret identifier.
	ScopeStore interface {
		Get(ctx context.Context, userKey string) (string, bool, error)
		Set(ctx context.Context, userKey, companyID string) error
		Clear(ctx context.Context, userKey string) error
	}

	// Cache is the shared keyed response cache. Logout purges a session's
	// entries wholesale via DeletePrefix.
	Cache interface {
		Get(ctx context.Context, key string) ([]byte, bool, error)
		Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
		Delete(ctx context.Context, keys ...string) error
		DeletePrefix(ctx context.Context, prefix string) error
	}
)
