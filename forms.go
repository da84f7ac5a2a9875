package identity

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	labelUsername    = "Email or phone number"
	maxNameLength    = 256
	fieldUsername    = "username"
	fieldNewUsername = "new_username"
	fieldCode        = "code"
	fieldPassword    = "password"
	fieldOldPassword = "old_password"
	fieldRefresh     = "refresh_token"
	fieldToken       = "token"
)

// CreateAccountForm registers a new account with one contact.
type CreateAccountForm struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

func (f *CreateAccountForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.FirstName, r.NotEmpty(Label("first_name")), r.MaxLength(Label("first_name"), maxNameLength)),
		validation.Field(&f.LastName, r.MaxLength(Label("last_name"), maxNameLength)),
		validation.Field(&f.Username, r.NotEmpty(labelUsername), r.Contact(labelUsername)),
		validation.Field(&f.Password, r.NotEmpty(Label(fieldPassword)), r.Password(Label(fieldPassword))),
	}
}

// SendConfirmAccountCodeForm asks for a confirmation code on a contact.
type SendConfirmAccountCodeForm struct {
	Username string `json:"username"`
}

func (f *SendConfirmAccountCodeForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.Username, r.NotEmpty(labelUsername), r.Contact(labelUsername)),
	}
}

// ConfirmAccountForm confirms a contact with a code.
type ConfirmAccountForm struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

func (f *ConfirmAccountForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.Username, r.NotEmpty(labelUsername), r.Contact(labelUsername)),
		validation.Field(&f.Code, r.NotEmpty(Label(fieldCode))),
	}
}

// SendChangeAccountCodeForm asks for a code proving control of a new contact.
type SendChangeAccountCodeForm struct {
	NewUsername string `json:"new_username"`
}

func (f *SendChangeAccountCodeForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.NewUsername, r.NotEmpty(labelUsername), r.Contact(labelUsername)),
	}
}

// ChangeAccountForm swaps a contact for a new, verified value.
type ChangeAccountForm struct {
	NewUsername string `json:"new_username"`
	Code        string `json:"code"`
}

func (f *ChangeAccountForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.NewUsername, r.NotEmpty(labelUsername), r.Contact(labelUsername)),
		validation.Field(&f.Code, r.NotEmpty(Label(fieldCode))),
	}
}

// ChangePasswordForm replaces the password of the caller. OldPassword is
// only required when the account has a password configured.
type ChangePasswordForm struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (f *ChangePasswordForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.NewPassword, r.NotEmpty(Label("new_password")), r.Password(Label("new_password"))),
		validation.Field(&f.ConfirmPassword, r.EqualTo(Label("confirm_password"), Label("new_password"), f.NewPassword)),
	}
}

// SendResetPasswordCodeForm asks for a password reset code.
type SendResetPasswordCodeForm struct {
	Username string `json:"username"`
}

func (f *SendResetPasswordCodeForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.Username, r.NotEmpty(labelUsername), r.Contact(labelUsername)),
	}
}

// ResetPasswordForm sets a new password using a reset code.
type ResetPasswordForm struct {
	Username        string `json:"username"`
	Code            string `json:"code"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (f *ResetPasswordForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.Username, r.NotEmpty(labelUsername), r.Contact(labelUsername)),
		validation.Field(&f.Code, r.NotEmpty(Label(fieldCode))),
		validation.Field(&f.NewPassword, r.NotEmpty(Label("new_password")), r.Password(Label("new_password"))),
		validation.Field(&f.ConfirmPassword, r.EqualTo(Label("confirm_password"), Label("new_password"), f.NewPassword)),
	}
}

// SignInForm signs in with a contact and password. SingleSession drops
// every other session of the account.
type SignInForm struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	SingleSession bool   `json:"single_session"`
}

func (f *SignInForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.Username, r.NotEmpty(labelUsername), r.Contact(labelUsername)),
		validation.Field(&f.Password, r.NotEmpty(Label(fieldPassword))),
	}
}

// SignInWithTokenForm completes an external sign-in with a bridging token.
type SignInWithTokenForm struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

func (f *SignInWithTokenForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.Provider, r.NotEmpty(Label("provider"))),
		validation.Field(&f.Token, r.NotEmpty(Label(fieldToken))),
	}
}

// RefreshTokenForm rotates a session.
type RefreshTokenForm struct {
	RefreshToken string `json:"refresh_token"`
}

func (f *RefreshTokenForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.RefreshToken, r.NotEmpty(Label(fieldRefresh))),
	}
}

// SignOutForm ends the session of RefreshToken, or every session of the
// caller when AllowMultipleTokens is false. A nil AllowMultipleTokens means
// true.
type SignOutForm struct {
	RefreshToken        string `json:"refresh_token"`
	AllowMultipleTokens *bool  `json:"allow_multiple_tokens,omitempty"`
}

func (f *SignOutForm) ValidationRules(r Rules) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&f.RefreshToken, r.NotEmpty(Label(fieldRefresh))),
	}
}

func (f *SignOutForm) allowMultiple() bool {
	if f.AllowMultipleTokens == nil {
		return true
	}
	return *f.AllowMultipleTokens
}
