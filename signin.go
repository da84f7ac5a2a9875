package identity

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SignIn checks a contact and password and opens a session.
func (s *Service) SignIn(ctx context.Context, form *SignInForm) (*UserSession, error) {
	if form == nil {
		return nil, goerrors.New("sign in: form must not be nil", goerrors.CategoryInternal)
	}

	var (
		account *Account
		session *UserSession
	)
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		contact := s.parseContact(form.Username)

		result, err := s.validator.Validate(ctx, form, func(ctx context.Context, errs FieldErrors) error {
			found, err := s.lookupContact(ctx, tx, errs, fieldUsername, contact)
			if err != nil || found == nil {
				return err
			}
			account = found

			ok, err := s.credentials.VerifyPassword(ctx, tx, account, form.Password)
			if err != nil {
				return err
			}
			if !ok {
				errs.TryAdd(fieldPassword, fmt.Sprintf("'%s' is incorrect.", Label(fieldPassword)))
				return nil
			}

			if s.requiresConfirmation(contact.Type) {
				if _, confirmed, err := account.ContactValue(contact.Type); err != nil {
					return err
				} else if !confirmed {
					errs.TryAdd(fieldUsername, fmt.Sprintf("'%s' is not confirmed.", contact.Type.Label()))
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if problem := result.Problem(); problem != nil {
			return problem
		}

		session, err = s.startSession(ctx, tx, account, !form.SingleSession)
		return err
	})
	if err != nil {
		if _, ok := AsValidationProblem(err); ok && account != nil {
			s.record(ctx, ActivityEventSignInFailure, account.ID.String(), nil)
		}
		return nil, s.fail("sign in", err)
	}

	s.record(ctx, ActivityEventSignIn, session.Profile.ID, map[string]any{
		"single_session": form.SingleSession,
	})
	return session, nil
}

// BeginExternalSignIn seals an identity asserted by an external provider
// into a short lived bridging token.
func (s *Service) BeginExternalSignIn(ctx context.Context, identity ExternalIdentity) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(identity.Provider) == "" || strings.TrimSpace(identity.ProviderKey) == "" {
		return "", goerrors.New("external identity requires provider and provider key", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	return s.bridge.Protect(identity)
}

// SignInWithToken completes an external sign-in from a bridging token. Any
// token failure is reported as a failed authentication with the provider.
func (s *Service) SignInWithToken(ctx context.Context, form *SignInWithTokenForm) (*UserSession, error) {
	if form == nil {
		return nil, goerrors.New("sign in with token: form must not be nil", goerrors.CategoryInternal)
	}

	result, err := s.validator.Validate(ctx, form)
	if err != nil {
		return nil, s.fail("sign in with token", err)
	}
	if problem := result.Problem(); problem != nil {
		return nil, problem
	}

	identity, err := s.bridge.Unprotect(form.Token)
	if err != nil {
		s.logger.Warn("bridging token rejected", "provider", form.Provider, "error", err)
		return nil, providerProblem(form.Provider)
	}
	if !strings.EqualFold(identity.Provider, strings.TrimSpace(form.Provider)) {
		s.logger.Warn("bridging token provider mismatch", "provider", form.Provider, "token_provider", identity.Provider)
		return nil, providerProblem(form.Provider)
	}

	return s.SignInWithProvider(ctx, *identity)
}

// SignInWithProvider signs in the account linked to identity. Unknown
// identities are linked to the account holding the asserted contact, or to
// a new account with a confirmed contact and no password.
func (s *Service) SignInWithProvider(ctx context.Context, identity ExternalIdentity) (*UserSession, error) {
	if strings.TrimSpace(identity.Provider) == "" || strings.TrimSpace(identity.ProviderKey) == "" {
		return nil, providerProblem(identity.Provider)
	}

	var (
		session *UserSession
		created bool
		admin   bool
	)
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.externalAccount(ctx, tx, identity)
		if err != nil {
			return err
		}

		if account == nil {
			contact, err := s.contacts.Parse(identity.Username)
			if err != nil {
				s.logger.Warn("external identity carries no usable contact", "provider", identity.Provider)
				return providerProblem(identity.Provider)
			}

			account, err = s.repos.Accounts().FindByContactTx(ctx, tx, contact)
			switch {
			case err == nil:
			case goerrors.Is(err, ErrAccountNotFound):
				account, admin, err = s.createExternalAccount(ctx, tx, identity, contact)
				if err != nil {
					return err
				}
				created = true
			default:
				return err
			}

			if err := s.linkExternalLogin(ctx, tx, account, identity); err != nil {
				return err
			}
		}

		session, err = s.startSession(ctx, tx, account, true)
		return err
	})
	if err != nil {
		return nil, s.fail("sign in with provider", err, "provider", identity.Provider)
	}

	if created {
		s.record(ctx, ActivityEventAccountCreated, session.Profile.ID, map[string]any{"provider": identity.Provider})
	}
	if admin {
		s.record(ctx, ActivityEventAdministratorGrant, session.Profile.ID, nil)
	}
	s.record(ctx, ActivityEventExternalSignIn, session.Profile.ID, map[string]any{"provider": identity.Provider})
	return session, nil
}

// RefreshToken rotates the session of the refresh token in the form.
func (s *Service) RefreshToken(ctx context.Context, form *RefreshTokenForm) (*UserSession, error) {
	if form == nil {
		return nil, goerrors.New("refresh token: form must not be nil", goerrors.CategoryInternal)
	}

	result, err := s.validator.Validate(ctx, form)
	if err != nil {
		return nil, s.fail("refresh token", err)
	}
	if problem := result.Problem(); problem != nil {
		return nil, problem
	}

	var session *UserSession
	err = s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		account, pair, err := s.sessions.RefreshTx(ctx, tx, form.RefreshToken)
		if err != nil {
			if goerrors.Is(err, ErrInvalidToken) {
				return NewFieldProblem(fieldRefresh, fmt.Sprintf("'%s' is invalid.", Label(fieldRefresh)))
			}
			return err
		}

		now := s.clock.now()
		if err := s.repos.Accounts().TouchTx(ctx, tx, account.ID, now); err != nil {
			return invariant(err, "failed to touch account", map[string]any{"account_id": account.ID.String()})
		}
		account.LastActiveAt = &now

		roles, err := s.repos.Roles().ListForAccountTx(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		session = newUserSession(pair, newUserProfile(account, roles))
		return nil
	})
	if err != nil {
		return nil, s.fail("refresh token", err)
	}

	s.record(ctx, ActivityEventSessionRefreshed, session.Profile.ID, nil)
	return session, nil
}

// SignOut ends the session of the refresh token in the form, or every
// session of the caller. Signing out twice is not an error.
func (s *Service) SignOut(ctx context.Context, principal Principal, form *SignOutForm) error {
	if form == nil {
		return goerrors.New("sign out: form must not be nil", goerrors.CategoryInternal)
	}

	var (
		account *Account
		removed int64
	)
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if account, err = s.principalAccount(ctx, tx, principal); err != nil {
			return err
		}

		result, err := s.validator.Validate(ctx, form)
		if err != nil {
			return err
		}
		if problem := result.Problem(); problem != nil {
			return problem
		}

		removed, err = s.sessions.SignOutTx(ctx, tx, account, form.RefreshToken, form.allowMultiple())
		if err != nil {
			return invariant(err, "failed to delete sessions", map[string]any{"account_id": account.ID.String()})
		}
		return nil
	})
	if err != nil {
		return s.fail("sign out", err)
	}

	s.record(ctx, ActivityEventSignOut, account.ID.String(), map[string]any{
		"all_sessions": !form.allowMultiple(),
		"removed":      removed,
	})
	return nil
}

// Authenticate resolves a raw access token to its caller.
func (s *Service) Authenticate(ctx context.Context, rawAccess string) (Principal, *SessionClaims, error) {
	claims, err := s.sessions.Authenticate(ctx, rawAccess)
	if err != nil {
		if IsInvalidToken(err) {
			return Principal{}, nil, ErrUnauthenticated
		}
		return Principal{}, nil, s.fail("authenticate", err)
	}
	return claims.Principal(), claims, nil
}

// startSession applies the multi session policy, issues a pair and builds
// the session returned to the caller.
func (s *Service) startSession(ctx context.Context, tx bun.IDB, account *Account, allowMultiple bool) (*UserSession, error) {
	if err := s.sessions.InvalidateAllTx(ctx, tx, account, allowMultiple); err != nil {
		return nil, err
	}

	roles, err := s.repos.Roles().ListForAccountTx(ctx, tx, account.ID)
	if err != nil {
		return nil, invariant(err, "failed to list roles", map[string]any{"account_id": account.ID.String()})
	}

	pair, err := s.sessions.IssueTx(ctx, tx, account, roles)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	if err := s.repos.Accounts().TouchTx(ctx, tx, account.ID, now); err != nil {
		return nil, invariant(err, "failed to touch account", map[string]any{"account_id": account.ID.String()})
	}
	account.LastActiveAt = &now

	return newUserSession(pair, newUserProfile(account, roles)), nil
}

// externalAccount returns the account already linked to identity, nil when
// there is none.
func (s *Service) externalAccount(ctx context.Context, tx bun.IDB, identity ExternalIdentity) (*Account, error) {
	login, err := s.repos.ExternalLogins().FindTx(ctx, tx, identity.Provider, identity.ProviderKey)
	if err != nil {
		if goerrors.Is(err, errExternalLoginNotFound) {
			return nil, nil
		}
		return nil, err
	}

	account, err := s.repos.Accounts().FindByIDTx(ctx, tx, login.AccountID.String())
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

func (s *Service) createExternalAccount(ctx context.Context, tx bun.IDB, identity ExternalIdentity, contact Contact) (*Account, bool, error) {
	stamp, err := newSecurityStamp()
	if err != nil {
		return nil, false, err
	}

	firstName := strings.TrimSpace(identity.FirstName)
	if firstName == "" {
		firstName = strings.TrimSpace(identity.DisplayName)
	}
	lastName := strings.TrimSpace(identity.LastName)

	username, err := s.uniqueUsername(ctx, tx, firstName, lastName)
	if err != nil {
		return nil, false, err
	}

	account := &Account{
		ID:            uuid.New(),
		Username:      username,
		FirstName:     firstName,
		LastName:      lastName,
		SecurityStamp: stamp,
		CreatedAt:     s.clock.now(),
	}
	if _, err := applyContactEvent(account, contact, ContactEventLinked); err != nil {
		return nil, false, err
	}

	if _, err := s.repos.Accounts().InsertTx(ctx, tx, account); err != nil {
		return nil, false, invariant(err, "failed to create external account", map[string]any{"provider": identity.Provider})
	}

	_, admin, err := s.assignRoles(ctx, tx, account)
	if err != nil {
		return nil, false, err
	}
	return account, admin, nil
}

// linkExternalLogin replaces any previous link of the provider key.
func (s *Service) linkExternalLogin(ctx context.Context, tx bun.IDB, account *Account, identity ExternalIdentity) error {
	logins := s.repos.ExternalLogins()
	meta := map[string]any{"provider": identity.Provider, "account_id": account.ID.String()}

	if err := logins.RemoveTx(ctx, tx, identity.Provider, identity.ProviderKey); err != nil {
		return invariant(err, "failed to remove external login", meta)
	}

	err := logins.AddTx(ctx, tx, &ExternalLogin{
		Provider:    identity.Provider,
		ProviderKey: identity.ProviderKey,
		AccountID:   account.ID,
		DisplayName: identity.DisplayName,
		CreatedAt:   s.clock.now(),
	})
	if err != nil {
		return invariant(err, "failed to add external login", meta)
	}
	return nil
}

func (s *Service) requiresConfirmation(kind ContactType) bool {
	switch kind {
	case ContactEmail:
		return s.requireConfirmedEmail
	case ContactPhoneNumber:
		return s.requireConfirmedPhone
	default:
		return false
	}
}

func newUserSession(pair *TokenPair, profile *UserProfile) *UserSession {
	return &UserSession{
		TokenType:             TokenTypeBearer,
		AccessToken:           pair.AccessToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshToken:          pair.RefreshToken,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		Profile:               profile,
	}
}

func providerProblem(provider string) *ValidationProblem {
	name := strings.TrimSpace(provider)
	if name == "" {
		name = "External provider"
	}
	errs := FieldErrors{}
	errs.Add(fieldToken, fmt.Sprintf("'%s' is not valid.", Label(fieldToken)))
	return &ValidationProblem{
		Title:  fmt.Sprintf("%s authentication failed.", name),
		Errors: errs,
	}
}
