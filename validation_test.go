package identity_test

import (
	"context"
	"errors"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator() *identity.Validator {
	return identity.NewValidator(identity.ContactParser{Region: "US"})
}

func TestValidator_StructuralRules(t *testing.T) {
	ctx := context.Background()

	t.Run("empty field stops at the first rule", func(t *testing.T) {
		result, err := newValidator().Validate(ctx, &identity.SignInForm{})
		require.NoError(t, err)
		assert.False(t, result.Valid())
		assert.Equal(t, []string{"'Email or phone number' must not be empty."}, result.Errors["username"])
		assert.Equal(t, []string{"'Password' must not be empty."}, result.Errors["password"])
	})

	t.Run("invalid email uses the detected label", func(t *testing.T) {
		result, err := newValidator().Validate(ctx, &identity.SignInForm{Username: "jane@", Password: "x"})
		require.NoError(t, err)
		assert.Equal(t, []string{"'Email' is not valid."}, result.Errors["username"])
	})

	t.Run("unknown shape uses the generic label", func(t *testing.T) {
		result, err := newValidator().Validate(ctx, &identity.SignInForm{Username: "jane", Password: "x"})
		require.NoError(t, err)
		assert.Equal(t, []string{"'Email or phone number' is not valid."}, result.Errors["username"])
	})

	t.Run("password policy", func(t *testing.T) {
		tests := []struct {
			password string
			want     string
		}{
			{"Ab1!", "'Password' must be at least 8 characters."},
			{"Abcdefg!", "'Password' must have at least one digit ('0'-'9')."},
			{"Abcdefg1", "'Password' must have at least one non alphanumeric character."},
			{"abcdef1!", "'Password' must have at least one uppercase ('A'-'Z')."},
			{"ABCDEF1!", "'Password' must have at least one lowercase ('a'-'z')."},
		}
		for _, tt := range tests {
			result, err := newValidator().Validate(ctx, &identity.CreateAccountForm{
				FirstName: "Jane",
				Username:  "jane@example.com",
				Password:  tt.password,
			})
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, result.Errors["password"], tt.password)
		}
	})

	t.Run("confirm password must match", func(t *testing.T) {
		result, err := newValidator().Validate(ctx, &identity.ChangePasswordForm{
			NewPassword:     testPassword,
			ConfirmPassword: "Other123!",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"'Confirm password' must be equal to 'New password'."}, result.Errors["confirm_password"])
	})
}

func TestValidator_AsyncRules(t *testing.T) {
	ctx := context.Background()

	t.Run("skipped when structural rules fail", func(t *testing.T) {
		called := false
		result, err := newValidator().Validate(ctx, &identity.SignInForm{}, func(ctx context.Context, errs identity.FieldErrors) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.False(t, called)
		assert.False(t, result.Valid())
	})

	t.Run("add into the same map", func(t *testing.T) {
		form := &identity.SignInForm{Username: "jane@example.com", Password: "x"}
		result, err := newValidator().Validate(ctx, form,
			func(ctx context.Context, errs identity.FieldErrors) error {
				errs.TryAdd("username", "'Email' does not exist.")
				return nil
			},
			func(ctx context.Context, errs identity.FieldErrors) error {
				assert.False(t, errs.TryAdd("username", "second"))
				return nil
			},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"'Email' does not exist."}, result.Errors["username"])
	})

	t.Run("errors abort validation", func(t *testing.T) {
		boom := errors.New("store down")
		form := &identity.SignInForm{Username: "jane@example.com", Password: "x"}
		_, err := newValidator().Validate(ctx, form, func(ctx context.Context, errs identity.FieldErrors) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("nil form is a programming error", func(t *testing.T) {
		_, err := newValidator().Validate(ctx, nil)
		assert.Error(t, err)
	})
}

func TestValidationProblem_Title(t *testing.T) {
	single := identity.NewFieldProblem("code", "'Code' is not valid.")
	assert.Equal(t, "'Code' is not valid.", single.Title)
	assert.ErrorIs(t, single, identity.ErrValidation)

	errs := identity.FieldErrors{}
	errs.Add("code", "'Code' is not valid.")
	errs.Add("password", "'Password' is incorrect.")
	multi := identity.NewValidationProblem(errs)
	assert.Equal(t, identity.DefaultValidationTitle, multi.Title)

	problem, ok := identity.AsValidationProblem(multi)
	require.True(t, ok)
	assert.Len(t, problem.Errors, 2)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "New username", identity.Label("new_username"))
	assert.Equal(t, "First name", identity.Label("firstName"))
	assert.Equal(t, "Code", identity.Label("code"))
	assert.Equal(t, "", identity.Label(""))
}
