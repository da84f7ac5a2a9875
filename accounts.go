package identity

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/uptrace/bun"
)

const maxUsernameAttempts = 100

// CreateAccount registers an account holding one unconfirmed contact and a
// password. The first account ever created also becomes Administrator.
func (s *Service) CreateAccount(ctx context.Context, form *CreateAccountForm) (*UserProfile, error) {
	if form == nil {
		return nil, goerrors.New("create account: form must not be nil", goerrors.CategoryInternal)
	}

	var (
		profile *UserProfile
		admin   bool
	)
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		contact := s.parseContact(form.Username)

		result, err := s.validator.Validate(ctx, form, func(ctx context.Context, errs FieldErrors) error {
			return s.contactTaken(ctx, tx, errs, fieldUsername, contact, nil)
		})
		if err != nil {
			return err
		}
		if problem := result.Problem(); problem != nil {
			return problem
		}

		stamp, err := newSecurityStamp()
		if err != nil {
			return err
		}

		firstName := strings.TrimSpace(form.FirstName)
		lastName := strings.TrimSpace(form.LastName)

		username, err := s.uniqueUsername(ctx, tx, firstName, lastName)
		if err != nil {
			return err
		}

		account := &Account{
			ID:                 uuid.New(),
			Username:           username,
			FirstName:          firstName,
			LastName:           lastName,
			PasswordConfigured: true,
			SecurityStamp:      stamp,
			CreatedAt:          s.clock.now(),
		}
		if _, err := applyContactEvent(account, contact, ContactEventRegistered); err != nil {
			return err
		}

		if _, err := s.repos.Accounts().InsertTx(ctx, tx, account); err != nil {
			if isUniqueViolation(err) {
				return takenProblem(fieldUsername, contact)
			}
			return invariant(err, "failed to create account", map[string]any{"contact": contact.Type.String()})
		}

		if err := s.credentials.AddPassword(ctx, tx, account, form.Password); err != nil {
			return invariant(err, "failed to add password", map[string]any{"account_id": account.ID.String()})
		}

		roles, granted, err := s.assignRoles(ctx, tx, account)
		if err != nil {
			return err
		}

		admin = granted
		profile = newUserProfile(account, roles)
		return nil
	})
	if err != nil {
		return nil, s.fail("create account", err)
	}

	s.record(ctx, ActivityEventAccountCreated, profile.ID, map[string]any{"username": profile.Username})
	if admin {
		s.logger.Info("first account granted administrator", "account_id", profile.ID)
		s.record(ctx, ActivityEventAdministratorGrant, profile.ID, nil)
	}
	return profile, nil
}

// SendConfirmAccountCode sends a confirmation code to the contact named by
// the form.
func (s *Service) SendConfirmAccountCode(ctx context.Context, form *SendConfirmAccountCodeForm) error {
	if form == nil {
		return goerrors.New("send confirm account code: form must not be nil", goerrors.CategoryInternal)
	}

	account, contact, err := s.accountForContact(ctx, form, form.Username)
	if err != nil {
		return s.fail("send confirm account code", err)
	}

	if err := s.sendCode(ctx, account, PurposeConfirmContact, contact, contact); err != nil {
		return s.fail("send confirm account code", err, "account_id", account.ID.String())
	}
	return nil
}

// ConfirmAccount marks the contact of the form as confirmed when the code
// matches.
func (s *Service) ConfirmAccount(ctx context.Context, form *ConfirmAccountForm) error {
	if form == nil {
		return goerrors.New("confirm account: form must not be nil", goerrors.CategoryInternal)
	}

	var account *Account
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		contact := s.parseContact(form.Username)

		result, err := s.validator.Validate(ctx, form, func(ctx context.Context, errs FieldErrors) error {
			found, err := s.lookupContact(ctx, tx, errs, fieldUsername, contact)
			if err != nil || found == nil {
				return err
			}
			account = found
			return s.checkCode(ctx, errs, account, PurposeConfirmContact, contact, form.Code)
		})
		if err != nil {
			return err
		}
		if problem := result.Problem(); problem != nil {
			return problem
		}

		if _, err := applyContactEvent(account, contact, ContactEventConfirmed); err != nil {
			return err
		}
		if _, err := s.repos.Accounts().SaveTx(ctx, tx, account); err != nil {
			return invariant(err, "failed to confirm account", map[string]any{"account_id": account.ID.String()})
		}
		return nil
	})
	if err != nil {
		return s.fail("confirm account", err)
	}

	s.record(ctx, ActivityEventAccountConfirmed, account.ID.String(), nil)
	return nil
}

// SendChangeAccountCode sends a code to the new contact the caller wants to
// switch to.
func (s *Service) SendChangeAccountCode(ctx context.Context, principal Principal, form *SendChangeAccountCodeForm) error {
	if form == nil {
		return goerrors.New("send change account code: form must not be nil", goerrors.CategoryInternal)
	}

	var (
		account *Account
		contact Contact
	)
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if account, err = s.principalAccount(ctx, tx, principal); err != nil {
			return err
		}
		contact = s.parseContact(form.NewUsername)

		result, err := s.validator.Validate(ctx, form, func(ctx context.Context, errs FieldErrors) error {
			return s.contactAvailable(ctx, tx, errs, account, contact)
		})
		if err != nil {
			return err
		}
		return result.Problem()
	})
	if err != nil {
		return s.fail("send change account code", err)
	}

	if err := s.sendCode(ctx, account, PurposeChangeContact, contact, contact); err != nil {
		return s.fail("send change account code", err, "account_id", account.ID.String())
	}
	return nil
}

// ChangeAccount replaces the contact of the caller with the new, verified
// value. Codes issued before the change stop working.
func (s *Service) ChangeAccount(ctx context.Context, principal Principal, form *ChangeAccountForm) error {
	if form == nil {
		return goerrors.New("change account: form must not be nil", goerrors.CategoryInternal)
	}

	var account *Account
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if account, err = s.principalAccount(ctx, tx, principal); err != nil {
			return err
		}
		contact := s.parseContact(form.NewUsername)

		result, err := s.validator.Validate(ctx, form, func(ctx context.Context, errs FieldErrors) error {
			if err := s.contactAvailable(ctx, tx, errs, account, contact); err != nil || !errs.Empty() {
				return err
			}
			return s.checkCode(ctx, errs, account, PurposeChangeContact, contact, form.Code)
		})
		if err != nil {
			return err
		}
		if problem := result.Problem(); problem != nil {
			return problem
		}

		if _, err := applyContactEvent(account, contact, ContactEventChanged); err != nil {
			return err
		}
		if account.SecurityStamp, err = newSecurityStamp(); err != nil {
			return err
		}
		if _, err := s.repos.Accounts().SaveTx(ctx, tx, account); err != nil {
			if isUniqueViolation(err) {
				return takenProblem(fieldNewUsername, contact)
			}
			return invariant(err, "failed to change account", map[string]any{"account_id": account.ID.String()})
		}
		return nil
	})
	if err != nil {
		return s.fail("change account", err)
	}

	s.record(ctx, ActivityEventContactChanged, account.ID.String(), nil)
	return nil
}

// accountForContact validates form and resolves the account holding raw.
func (s *Service) accountForContact(ctx context.Context, form Form, raw string) (*Account, Contact, error) {
	var account *Account
	contact := s.parseContact(raw)

	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		result, err := s.validator.Validate(ctx, form, func(ctx context.Context, errs FieldErrors) error {
			found, err := s.lookupContact(ctx, tx, errs, fieldUsername, contact)
			account = found
			return err
		})
		if err != nil {
			return err
		}
		return result.Problem()
	})
	if err != nil {
		return nil, Contact{}, err
	}
	return account, contact, nil
}

// lookupContact returns the account holding contact or records a
// "does not exist" error on field.
func (s *Service) lookupContact(ctx context.Context, tx bun.IDB, errs FieldErrors, field string, contact Contact) (*Account, error) {
	account, err := s.repos.Accounts().FindByContactTx(ctx, tx, contact)
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			errs.TryAdd(field, fmt.Sprintf("'%s' does not exist.", contact.Type.Label()))
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// contactTaken records an error on field when contact belongs to an account
// other than self. Unconfirmed contacts count as taken.
func (s *Service) contactTaken(ctx context.Context, tx bun.IDB, errs FieldErrors, field string, contact Contact, self *Account) error {
	holder, err := s.repos.Accounts().FindByContactTx(ctx, tx, contact)
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return err
	}
	if self != nil && holder.ID == self.ID {
		return nil
	}
	errs.TryAdd(field, fmt.Sprintf("'%s' is already taken.", contact.Type.Label()))
	return nil
}

func (s *Service) contactAvailable(ctx context.Context, tx bun.IDB, errs FieldErrors, account *Account, contact Contact) error {
	current, _, err := account.ContactValue(contact.Type)
	if err != nil {
		return err
	}
	if current == contact.Value {
		errs.TryAdd(fieldNewUsername, fmt.Sprintf("'%s' is already being used by you.", contact.Type.Label()))
		return nil
	}
	return s.contactTaken(ctx, tx, errs, fieldNewUsername, contact, account)
}

func (s *Service) checkCode(ctx context.Context, errs FieldErrors, account *Account, kind PurposeKind, target Contact, code string) error {
	ok, err := s.verifier.VerifyCode(ctx, account, kind, target, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !ok {
		errs.TryAdd(fieldCode, fmt.Sprintf("'%s' is not valid.", Label(fieldCode)))
	}
	return nil
}

// sendCode generates a code for (kind, target), renders it for the channel
// of recipient and hands it to the sender. Delivery failures are logged.
func (s *Service) sendCode(ctx context.Context, account *Account, kind PurposeKind, target, recipient Contact) error {
	code, err := s.verifier.GenerateCode(ctx, account, kind, target)
	if err != nil {
		return err
	}

	n, err := notificationFor(kind, recipient.Type)
	if err != nil {
		return err
	}

	channel, err := recipient.Channel()
	if err != nil {
		return err
	}

	body, err := s.renderer.Render(ctx, n.template, TemplateModel{
		Account: account,
		Contact: recipient,
		Code:    code,
	})
	if err != nil {
		return invariant(err, "failed to render notification", map[string]any{"template": n.template})
	}

	msg := Message{Subject: n.subject, Body: body, Recipients: []string{recipient.Value}}
	if err := s.sender.Send(ctx, channel, msg); err != nil {
		s.logger.Warn("message delivery failed",
			"channel", string(channel),
			"purpose", string(kind),
			"account_id", account.ID.String(),
			"error", err,
		)
	}

	s.record(ctx, ActivityEventVerificationCodeOut, account.ID.String(), map[string]any{
		"purpose": string(kind),
		"channel": string(channel),
	})
	return nil
}

// uniqueUsername derives a username slug from the account name, adding a
// numeric suffix until it is free.
func (s *Service) uniqueUsername(ctx context.Context, tx bun.IDB, firstName, lastName string) (string, error) {
	base := slug.Make(strings.TrimSpace(firstName + " " + lastName))
	if base == "" {
		base = "user"
	}

	candidate := base
	for i := 2; i < maxUsernameAttempts+2; i++ {
		exists, err := s.repos.Accounts().UsernameExistsTx(ctx, tx, candidate)
		if err != nil {
			return "", invariant(err, "failed to check username", nil)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}

	return fmt.Sprintf("%s-%s", base, strings.SplitN(uuid.NewString(), "-", 2)[0]), nil
}

// assignRoles makes sure the role catalog exists and grants the default
// roles to account. The first account also claims Administrator.
func (s *Service) assignRoles(ctx context.Context, tx bun.IDB, account *Account) ([]string, bool, error) {
	roles := s.repos.Roles()

	for _, name := range RoleCatalog() {
		exists, err := roles.ExistsTx(ctx, tx, name)
		if err != nil {
			return nil, false, invariant(err, "failed to look up role", map[string]any{"role": string(name)})
		}
		if exists {
			continue
		}
		if _, err := roles.CreateTx(ctx, tx, name); err != nil {
			return nil, false, invariant(err, "failed to create role", map[string]any{"role": string(name)})
		}
	}

	grant := []RoleName{RoleMember}
	admin := false

	count, err := s.repos.Accounts().CountTx(ctx, tx)
	if err != nil {
		return nil, false, invariant(err, "failed to count accounts", nil)
	}
	if count == 1 {
		admin, err = roles.ClaimSlotTx(ctx, tx, firstAdministratorSlot, account.ID, s.clock.now())
		if err != nil {
			return nil, false, invariant(err, "failed to claim administrator", nil)
		}
		if admin {
			grant = append(grant, RoleAdministrator)
		}
	}

	if err := roles.AddToRolesTx(ctx, tx, account.ID, grant...); err != nil {
		return nil, false, invariant(err, "failed to add account to roles", map[string]any{"account_id": account.ID.String()})
	}

	names, err := roles.ListForAccountTx(ctx, tx, account.ID)
	if err != nil {
		return nil, false, invariant(err, "failed to list roles", map[string]any{"account_id": account.ID.String()})
	}
	return names, admin, nil
}

func takenProblem(field string, contact Contact) *ValidationProblem {
	return NewFieldProblem(field, fmt.Sprintf("'%s' is already taken.", contact.Type.Label()))
}

// isUniqueViolation recognizes unique constraint failures. The repository
// maps pq and go-sqlite3 errors; the pure Go sqlite driver is matched on its
// message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if repository.IsDuplicatedKey(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
