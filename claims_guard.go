package identity

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type immutableClaimsSnapshot struct {
	subject   string
	issuer    string
	id        string
	uid       string
	sessionID string
	audience  []string
	roles     []string
	issuedAt  *time.Time
	expiresAt *time.Time
}

func captureImmutableClaims(claims *SessionClaims) immutableClaimsSnapshot {
	return immutableClaimsSnapshot{
		subject:   claims.RegisteredClaims.Subject,
		issuer:    claims.RegisteredClaims.Issuer,
		id:        claims.RegisteredClaims.ID,
		uid:       claims.UID,
		sessionID: claims.SessionID,
		audience:  slices.Clone([]string(claims.RegisteredClaims.Audience)),
		roles:     slices.Clone(claims.Roles),
		issuedAt:  numericTime(claims.RegisteredClaims.IssuedAt),
		expiresAt: numericTime(claims.RegisteredClaims.ExpiresAt),
	}
}

func (snap immutableClaimsSnapshot) validate(claims *SessionClaims) error {
	switch {
	case claims.RegisteredClaims.Subject != snap.subject:
		return immutableClaimViolation("sub")
	case claims.RegisteredClaims.Issuer != snap.issuer:
		return immutableClaimViolation("iss")
	case claims.RegisteredClaims.ID != snap.id:
		return immutableClaimViolation("jti")
	case claims.UID != snap.uid:
		return immutableClaimViolation("uid")
	case claims.SessionID != snap.sessionID:
		return immutableClaimViolation("sid")
	case !slices.Equal([]string(claims.RegisteredClaims.Audience), snap.audience):
		return immutableClaimViolation("aud")
	case !slices.Equal(claims.Roles, snap.roles):
		return immutableClaimViolation("roles")
	case !sameTime(numericTime(claims.RegisteredClaims.IssuedAt), snap.issuedAt):
		return immutableClaimViolation("iat")
	case !sameTime(numericTime(claims.RegisteredClaims.ExpiresAt), snap.expiresAt):
		return immutableClaimViolation("exp")
	}
	return nil
}

func numericTime(date *jwt.NumericDate) *time.Time {
	if date == nil {
		return nil
	}
	t := date.Time
	return &t
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func immutableClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	clone.Source = ErrImmutableClaimMutation
	return clone.WithMetadata(map[string]any{"claim": field})
}
