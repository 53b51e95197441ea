package profile

import "testing"

func sampleProfile() Profile {
	return Profile{
		ID:   "usr-1",
		Name: "jane",
		MemberOn: []Membership{
			{ID: "mem-1", Role: RoleTeacher, CompanyID: "com-a", UserID: "usr-1", Company: Company{ID: "com-a", Name: "Academy A"}},
			{ID: "mem-2", Role: RoleAdmin, CompanyID: "com-b", UserID: "usr-1", Company: Company{ID: "com-b", Name: "Academy B"}},
		},
	}
}

func TestProfile_MembershipFor(t *testing.T) {
	p := sampleProfile()

	m, ok := p.MembershipFor("com-b")
	if !ok || m.ID != "mem-2" {
		t.Errorf("MembershipFor(com-b) = %+v, %v; want mem-2", m, ok)
	}

	if _, ok = p.MembershipFor("com-nope"); ok {
		t.Errorf("MembershipFor(com-nope) = true, want false")
	}

	if _, ok = (Profile{}).MembershipFor("com-a"); ok {
		t.Errorf("MembershipFor() on empty profile = true, want false")
	}
}

func TestProfile_HasMembership(t *testing.T) {
	p := sampleProfile()

	if !p.HasMembership(p.MemberOn[0]) {
		t.Errorf("HasMembership() = false for a held membership")
	}

	// same membership id pointing at another company does not match
	moved := p.MemberOn[0]
	moved.Company.ID = "com-z"
	if p.HasMembership(moved) {
		t.Errorf("HasMembership() = true for a membership moved to another company")
	}

	if p.HasMembership(Membership{ID: "mem-404", Company: Company{ID: "com-a"}}) {
		t.Errorf("HasMembership() = true for an unknown membership")
	}
}

func TestSubscription_IsZero(t *testing.T) {
	if !(Subscription{}).IsZero() {
		t.Errorf("zero Subscription reported non-zero")
	}
	if (Subscription{Status: "active"}).IsZero() {
		t.Errorf("non-zero Subscription reported zero")
	}
}
