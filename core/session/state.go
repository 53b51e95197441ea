package session

import "github.com/darasahq/darasa/core/profile"

// State is the explicit session lifecycle. The SPA equivalent keeps these as
// derived booleans recomputed on render; here every external event goes
// through one reducer so transitions are inspectable and cannot flap.
type State int

const (
	// StateUnauthenticated: no credential. Stable until sign-in.
	StateUnauthenticated State = iota
	// StateProfileLoading: credential present, profile fetch not yet succeeded.
	StateProfileLoading
	// StateTenantUninitialized: profile available, active tenant unresolved.
	StateTenantUninitialized
	// StateReady: profile available, tenant resolution settled. The
	// subscription sub-fetch may still be in flight; it never gates readiness.
	StateReady
	// StateLoggedOut: transient during logout cleanup; settles back to
	// StateUnauthenticated before the mutation returns.
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateProfileLoading:
		return "profile_loading"
	case StateTenantUninitialized:
		return "tenant_uninitialized"
	case StateReady:
		return "ready"
	case StateLoggedOut:
		return "logged_out"
	}
	return "unknown"
}

type (
	event interface{ isEvent() }

	// credentialSeen: a credential appeared on the exchange.
	credentialSeen struct{}

	// credentialGone: the credential vanished without an explicit logout
	// (cookie expired or was cleared elsewhere).
	credentialGone struct{}

	// profileFetched: the profile read settled successfully.
	profileFetched struct {
		p     profile.Profile
		epoch uint64
	}

	// profileFailed: the profile read settled with an error.
	profileFailed struct {
		err   error
		epoch uint64
	}

	// tenantResolved: the resolution step selected the active membership
	// (nil for the degenerate zero-membership case).
	tenantResolved struct {
		m     *profile.Membership
		epoch uint64
	}

	// companySwitched: user-initiated tenant switch.
	companySwitched struct {
		m profile.Membership
	}

	// subscriptionSettled: the subscription sub-fetch finished.
	subscriptionSettled struct {
		sub       *profile.Subscription
		err       error
		companyID string
		epoch     uint64
	}

	// loggedOut: logout cleanup completed.
	loggedOut struct{}
)

func (credentialSeen) isEvent()      {}
func (credentialGone) isEvent()      {}
func (profileFetched) isEvent()      {}
func (profileFailed) isEvent()       {}
func (tenantResolved) isEvent()      {}
func (companySwitched) isEvent()     {}
func (subscriptionSettled) isEvent() {}
func (loggedOut) isEvent()           {}
