package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims carried by an access token
type SessionClaims struct {
	jwt.RegisteredClaims
	UID       string         `json:"uid,omitempty"`
	SessionID string         `json:"sid,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"` // extension payload
}

// UserID returns the account id
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// HasRole checks if the roles claim contains role
func (c *SessionClaims) HasRole(role RoleName) bool {
	return HasRole(c.Roles, role)
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// Principal returns the caller identified by the claims.
func (c *SessionClaims) Principal() Principal {
	return Principal{AccountID: c.UserID()}
}
