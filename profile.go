package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Profile returns the account view of the caller.
func (s *Service) Profile(ctx context.Context, principal Principal) (*UserProfile, error) {
	var profile *UserProfile
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.principalAccount(ctx, tx, principal)
		if err != nil {
			return err
		}
		roles, err := s.repos.Roles().ListForAccountTx(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		profile = newUserProfile(account, roles)
		return nil
	})
	if err != nil {
		return nil, s.fail("profile", err)
	}
	return profile, nil
}

// ActiveSessions lists the unexpired sessions of the caller.
func (s *Service) ActiveSessions(ctx context.Context, principal Principal) ([]*SessionToken, error) {
	var records []*SessionToken
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.principalAccount(ctx, tx, principal)
		if err != nil {
			return err
		}
		records, err = s.sessions.SessionsTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, s.fail("active sessions", err)
	}
	return records, nil
}

// ExternalLogins lists the provider identities linked to the caller.
func (s *Service) ExternalLogins(ctx context.Context, principal Principal) ([]*ExternalLogin, error) {
	if !principal.Authenticated() {
		return nil, ErrUnauthenticated
	}
	var logins []*ExternalLogin
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.principalAccount(ctx, tx, principal)
		if err != nil {
			return err
		}
		logins, err = s.repos.ExternalLogins().ListForAccountTx(ctx, tx, account.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list external logins")
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("external logins", err)
	}
	return logins, nil
}
