package testutil

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/darasahq/darasa/core/profile"
)

// Membership builds a membership fixture with denormalized company metadata.
func Membership(id, companyID, companyName string, role profile.Role) profile.Membership {
	return profile.Membership{
		ID:        id,
		Role:      role,
		CompanyID: companyID,
		Company: profile.Company{
			ID:   companyID,
			Name: companyName,
		},
	}
}

// Profile builds a profile fixture; memberships keep the given order.
func Profile(id, name string, memberships ...profile.Membership) profile.Profile {
	p := profile.Profile{
		ID:       id,
		Name:     name,
		Email:    name + "@test.test",
		MemberOn: memberships,
	}
	for i := range p.MemberOn {
		p.MemberOn[i].UserID = id
	}
	return p
}

// Token mints a bearer token whose sub/exp claims are readable by the gateway.
// The signing key is irrelevant: the gateway never verifies signatures.
func Token(t *testing.T, sub string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.StandardClaims{Subject: sub}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = expiresAt.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return token
}
