package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the identity record. Email and phone number are independently
// nullable and independently confirmed.
type Account struct {
	bun.BaseModel        `bun:"table:accounts,alias:acc"`
	ID                   uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Username             string     `bun:"username,notnull,unique" json:"username"`
	FirstName            string     `bun:"first_name,notnull" json:"first_name"`
	LastName             string     `bun:"last_name" json:"last_name,omitempty"`
	Email                *string    `bun:"email,unique" json:"email,omitempty"`
	EmailConfirmed       bool       `bun:"email_confirmed,notnull" json:"email_confirmed"`
	PhoneNumber          *string    `bun:"phone_number,unique" json:"phone_number,omitempty"`
	PhoneNumberConfirmed bool       `bun:"phone_number_confirmed,notnull" json:"phone_number_confirmed"`
	PasswordConfigured   bool       `bun:"password_configured,notnull" json:"password_configured"`
	SecurityStamp        string     `bun:"security_stamp,notnull" json:"-"`
	CreatedAt            time.Time  `bun:"created_at,notnull" json:"created_at"`
	LastActiveAt         *time.Time `bun:"last_active_at" json:"last_active_at,omitempty"`
}

// ContactValue returns the stored value for the given channel and whether
// it is confirmed.
func (a *Account) ContactValue(kind ContactType) (string, bool, error) {
	switch kind {
	case ContactEmail:
		if a.Email == nil {
			return "", false, nil
		}
		return *a.Email, a.EmailConfirmed, nil
	case ContactPhoneNumber:
		if a.PhoneNumber == nil {
			return "", false, nil
		}
		return *a.PhoneNumber, a.PhoneNumberConfirmed, nil
	default:
		return "", false, ErrUnsupportedContactType
	}
}

// SetContact stores c in the matching field and sets its confirmation flag.
func (a *Account) SetContact(c Contact, confirmed bool) error {
	value := c.Value
	switch c.Type {
	case ContactEmail:
		a.Email = &value
		a.EmailConfirmed = confirmed
	case ContactPhoneNumber:
		a.PhoneNumber = &value
		a.PhoneNumberConfirmed = confirmed
	default:
		return ErrUnsupportedContactType
	}
	return nil
}

// ConfirmContact marks the channel of c as confirmed.
func (a *Account) ConfirmContact(kind ContactType) error {
	switch kind {
	case ContactEmail:
		a.EmailConfirmed = true
	case ContactPhoneNumber:
		a.PhoneNumberConfirmed = true
	default:
		return ErrUnsupportedContactType
	}
	return nil
}

// Contacts lists the contacts the account holds, email first.
func (a *Account) Contacts() []Contact {
	out := make([]Contact, 0, 2)
	if a.Email != nil {
		out = append(out, Contact{Type: ContactEmail, Value: *a.Email})
	}
	if a.PhoneNumber != nil {
		out = append(out, Contact{Type: ContactPhoneNumber, Value: *a.PhoneNumber})
	}
	return out
}

// Role is a named permission group from the closed role catalog.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull,unique" json:"name"`
}

// AccountRole links accounts and roles.
type AccountRole struct {
	bun.BaseModel `bun:"table:account_roles,alias:acr"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
}

// RoleClaim is a one row slot used to grant a role at most once.
type RoleClaim struct {
	bun.BaseModel `bun:"table:role_claims,alias:rcl"`
	Slot          string    `bun:"slot,pk"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid"`
	ClaimedAt     time.Time `bun:"claimed_at,notnull"`
}

// SessionToken is one issued access/refresh pair. Only fingerprints are
// stored.
type SessionToken struct {
	bun.BaseModel         `bun:"table:session_tokens,alias:st"`
	ID                    uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID             uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id"`
	AccessTokenHash       string    `bun:"access_token_hash,notnull,unique" json:"-"`
	AccessTokenExpiresAt  time.Time `bun:"access_token_expires_at,notnull" json:"access_token_expires_at"`
	RefreshTokenHash      string    `bun:"refresh_token_hash,notnull,unique" json:"-"`
	RefreshTokenExpiresAt time.Time `bun:"refresh_token_expires_at,notnull" json:"refresh_token_expires_at"`
	CreatedAt             time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Expired reports whether the refresh side of the pair is past its expiry.
func (s *SessionToken) Expired(now time.Time) bool {
	return !now.Before(s.RefreshTokenExpiresAt)
}

// Credential holds a password hash for an account.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:crd"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid"`
	PasswordHash  string    `bun:"password_hash,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// ExternalLogin links an external provider identity to an account.
type ExternalLogin struct {
	bun.BaseModel `bun:"table:external_logins,alias:exl"`
	Provider      string    `bun:"provider,pk"`
	ProviderKey   string    `bun:"provider_key,pk"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid"`
	DisplayName   string    `bun:"display_name"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// UserProfile is the caller facing view of an account.
type UserProfile struct {
	ID                   string   `json:"id"`
	FirstName            string   `json:"first_name"`
	LastName             string   `json:"last_name,omitempty"`
	Username             string   `json:"username"`
	Email                string   `json:"email,omitempty"`
	EmailConfirmed       bool     `json:"email_confirmed"`
	PhoneNumber          string   `json:"phone_number,omitempty"`
	PhoneNumberConfirmed bool     `json:"phone_number_confirmed"`
	PasswordConfigured   bool     `json:"password_configured"`
	Roles                []string `json:"roles"`
}

// UserSession is returned by every successful sign-in and refresh.
type UserSession struct {
	TokenType             string       `json:"token_type"`
	AccessToken           string       `json:"access_token"`
	AccessTokenExpiresAt  time.Time    `json:"access_token_expires_at"`
	RefreshToken          string       `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time    `json:"refresh_token_expires_at"`
	Profile               *UserProfile `json:"profile"`
}

func newUserProfile(account *Account, roles []string) *UserProfile {
	p := &UserProfile{
		ID:                   account.ID.String(),
		FirstName:            account.FirstName,
		LastName:             account.LastName,
		Username:             account.Username,
		EmailConfirmed:       account.EmailConfirmed,
		PhoneNumberConfirmed: account.PhoneNumberConfirmed,
		PasswordConfigured:   account.PasswordConfigured,
		Roles:                roles,
	}
	if account.Email != nil {
		p.Email = *account.Email
	}
	if account.PhoneNumber != nil {
		p.PhoneNumber = *account.PhoneNumber
	}
	if p.Roles == nil {
		p.Roles = []string{}
	}
	return p
}
