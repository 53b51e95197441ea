package profile

// Role is the closed set of roles a Membership may carry.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

var Roles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

// Company is the denormalized tenant metadata carried on a Membership.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

// Membership ties the profile owner to one tenant with one role.
type Membership struct {
	ID        string  `json:"id"`
	Role      Role    `json:"role"`
	CompanyID string  `json:"company_id"`
	UserID    string  `json:"user_id"`
	Company   Company `json:"company"`
}

// Profile is the authenticated user's identity record.
// MemberOn keeps the backend's ordering; it is never re-sorted client-side.
type Profile struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Phone    string       `json:"phone,omitempty"`
	MemberOn []Membership `json:"member_on"`
}

// MembershipFor returns the Membership whose company id equals companyID.
func (p Profile) MembershipFor(companyID string) (Membership, bool) {
	for _, m := range p.MemberOn {
		if m.Company.ID == companyID {
			return m, true
		}
	}
	return Membership{}, false
}

// HasMembership reports whether m (by membership id and company id) is still
// present on the profile.
func (p Profile) HasMembership(m Membership) bool {
	for _, held := range p.MemberOn {
		if held.ID == m.ID && held.Company.ID == m.Company.ID {
			return true
		}
	}
	return false
}

// Subscription is the tenant's billing status as reported by the backend.
// A zero Subscription means the tenant has none.
type Subscription struct {
	Status          string  `json:"status"`
	Price           float64 `json:"price"`
	TrialEnd        int64   `json:"trial_end"` // unix seconds; 0 when not trialing
	CompanyCustomer string  `json:"company_customer"`
}

func (s Subscription) IsZero() bool {
	return s == Subscription{}
}
