package identity

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ChangePassword replaces the password of the caller. Accounts created
// through an external provider have no password yet and can set one
// without the old password.
func (s *Service) ChangePassword(ctx context.Context, principal Principal, form *ChangePasswordForm) error {
	if form == nil {
		return goerrors.New("change password: form must not be nil", goerrors.CategoryInternal)
	}

	var account *Account
	err := s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if account, err = s.principalAccount(ctx, tx, principal); err != nil {
			return err
		}

		result, err := s.validator.Validate(ctx, form, func(ctx context.Context, errs FieldErrors) error {
			if !account.PasswordConfigured {
				return nil
			}
			label := Label(fieldOldPassword)
			if form.OldPassword == "" {
				errs.TryAdd(fieldOldPassword, fmt.Sprintf("'%s' must not be empty.", label))
				return nil
			}
			ok, err := s.credentials.VerifyPassword(ctx, tx, account, form.OldPassword)
			if err != nil {
				return err
			}
			if !ok {
				errs.TryAdd(fieldOldPassword, fmt.Sprintf("'%s' is incorrect.", label))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if problem := result.Problem(); problem != nil {
			return problem
		}

		return s.replacePassword(ctx, tx, account, form.NewPassword)
	})
	if err != nil {
		return s.fail("change password", err)
	}

	s.record(ctx, ActivityEventPasswordChanged, account.ID.String(), nil)
	return nil
}

// SendResetPasswordCode sends a reset code to the contact named by the form.
func (s *Service) SendResetPasswordCode(ctx context.Context, form *SendResetPasswordCodeForm) error {
	if form == nil {
		return goerrors.New("send reset password code: form must not be nil", goerrors.CategoryInternal)
	}

	account, contact, err := s.accountForContact(ctx, form, form.Username)
	if err != nil {
		return s.fail("send reset password code", err)
	}

	if err := s.sendCode(ctx, account, PurposeResetPassword, contact, contact); err != nil {
		return s.fail("send reset password code", err, "account_id", account.ID.String())
	}
	return nil
}

// ResetPassword sets a new password after checking a reset code and drops
// every session of the account. Contact confirmation is left as is.
func (s *Service) ResetPassword(ctx context.Context, form *ResetPasswordForm) error {
	if form == nil {
		return goerrors.New("reset password: form must not be nil", goerrors.CategoryInternal)
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
			return s.checkCode(ctx, errs, account, PurposeResetPassword, contact, form.Code)
		})
		if err != nil {
			return err
		}
		if problem := result.Problem(); problem != nil {
			return problem
		}

		if err := s.replacePassword(ctx, tx, account, form.NewPassword); err != nil {
			return err
		}
		if err := s.sessions.InvalidateAllTx(ctx, tx, account, false); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return s.fail("reset password", err)
	}

	s.record(ctx, ActivityEventPasswordReset, account.ID.String(), nil)
	return nil
}

// replacePassword swaps the credential of account and rotates its security
// stamp so outstanding codes stop verifying.
func (s *Service) replacePassword(ctx context.Context, tx bun.IDB, account *Account, password string) error {
	meta := map[string]any{"account_id": account.ID.String()}

	if err := s.credentials.RemovePassword(ctx, tx, account); err != nil {
		return invariant(err, "failed to remove password", meta)
	}
	if err := s.credentials.AddPassword(ctx, tx, account, password); err != nil {
		return invariant(err, "failed to add password", meta)
	}

	stamp, err := newSecurityStamp()
	if err != nil {
		return err
	}
	account.PasswordConfigured = true
	account.SecurityStamp = stamp

	if _, err := s.repos.Accounts().SaveTx(ctx, tx, account); err != nil {
		return invariant(err, "failed to update account", meta)
	}
	return nil
}
