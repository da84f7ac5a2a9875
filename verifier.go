package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// PurposeKind names the intent a verification code is issued for.
type PurposeKind string

const (
	PurposeConfirmContact PurposeKind = "ConfirmContact"
	PurposeChangeContact  PurposeKind = "ChangeContact"
	PurposeResetPassword  PurposeKind = "ResetPassword"
)

// Purpose renders the purpose string handed to the token provider. Contact
// purposes bind the target type and value, the reset purpose binds only the
// account.
func Purpose(kind PurposeKind, target Contact) (string, error) {
	switch kind {
	case PurposeConfirmContact, PurposeChangeContact:
		switch target.Type {
		case ContactEmail, ContactPhoneNumber:
			return string(kind) + ":" + target.Type.String() + ":" + target.Value, nil
		default:
			return "", ErrUnsupportedContactType
		}
	case PurposeResetPassword:
		return string(kind), nil
	default:
		return "", goerrors.New("unknown verification purpose", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"purpose": string(kind)})
	}
}

// ContactVerifier issues and checks purpose scoped one-time codes.
type ContactVerifier struct {
	provider TokenProvider
}

// NewContactVerifier returns a verifier on top of provider.
func NewContactVerifier(provider TokenProvider) *ContactVerifier {
	return &ContactVerifier{provider: provider}
}

// GenerateCode returns the code for (account, kind, target).
func (v *ContactVerifier) GenerateCode(ctx context.Context, account *Account, kind PurposeKind, target Contact) (string, error) {
	if account == nil {
		return "", goerrors.New("generate code: account must not be nil", goerrors.CategoryInternal)
	}
	purpose, err := Purpose(kind, target)
	if err != nil {
		return "", err
	}
	return v.provider.GenerateCode(ctx, account, purpose)
}

// VerifyCode checks code against (account, kind, target). It has no side
// effects and can be repeated within the validity window.
func (v *ContactVerifier) VerifyCode(ctx context.Context, account *Account, kind PurposeKind, target Contact, code string) (bool, error) {
	if account == nil {
		return false, goerrors.New("verify code: account must not be nil", goerrors.CategoryInternal)
	}
	purpose, err := Purpose(kind, target)
	if err != nil {
		return false, err
	}
	return v.provider.VerifyCode(ctx, account, purpose, code)
}
