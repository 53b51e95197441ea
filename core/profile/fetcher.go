package profile

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAuth marks a fetch rejected for a missing, invalid or expired
	// credential. Callers treat it as "never authenticated".
	ErrAuth = errors.New("authentication required")
)

// NetworkError wraps a transient transport failure; the session surfaces it as
// an error flag without forcing a state transition.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("upstream unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	return errors.Cause(err) == ErrAuth
}

func IsNetworkError(err error) bool {
	_, ok := errors.Cause(err).(*NetworkError)
	return ok
}

type (
	// Fetcher retrieves the authenticated user's profile. It must not be
	// invoked without a credential; that gating is the caller's responsibility.
	Fetcher interface {
		FetchProfile(ctx context.Context, token string) (Profile, error)
	}

	// SubscriptionFetcher retrieves the billing status of one tenant.
	SubscriptionFetcher interface {
		FetchSubscription(ctx context.Context, token, companyID, userID string) (Subscription, error)
	}

	// Authenticator exchanges credentials for a bearer token.
	Authenticator interface {
		SignIn(ctx context.Context, username, password string) (SignInResult, error)
	}
)

type SignInResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}
