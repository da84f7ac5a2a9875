package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation         = "VALIDATION_FAILED"
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeInvalidBridgeToken = "INVALID_BRIDGE_TOKEN"
	TextCodeUnsupportedContact = "UNSUPPORTED_CONTACT_TYPE"
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeImmutableClaim     = "IMMUTABLE_CLAIM_MUTATION"
	TextCodeInvalidTransition  = "INVALID_CONTACT_TRANSITION"
	TextCodeInvariant          = "INVARIANT_VIOLATION"
)

// ErrValidation is the category error every *ValidationProblem unwraps to.
var ErrValidation = goerrors.New("one or more validation errors occurred", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrUnauthenticated is returned when an operation needs a caller that
// cannot be resolved to an account.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken covers unknown, expired and already consumed tokens alike.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidBridgeToken is the only failure Unprotect ever reports.
var ErrInvalidBridgeToken = goerrors.New("invalid bridging token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidBridgeToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnsupportedContactType marks a contact that is neither an email nor a
// phone number.
var ErrUnsupportedContactType = goerrors.New("unsupported contact type", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnsupportedContact).
	WithCode(goerrors.CodeBadRequest)

var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrImmutableClaimMutation is returned when a claims decorator touches a
// registered claim.
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode(TextCodeImmutableClaim)

// ErrInvalidTransition is returned when a contact channel cannot move to the
// requested state.
var ErrInvalidTransition = goerrors.New("invalid contact state transition", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// IsUnauthenticated reports whether err is ErrUnauthenticated.
func IsUnauthenticated(err error) bool {
	return goerrors.Is(err, ErrUnauthenticated)
}

// IsInvalidToken reports whether err signals an invalid session or bridging token.
func IsInvalidToken(err error) bool {
	return goerrors.Is(err, ErrInvalidToken) || goerrors.Is(err, ErrInvalidBridgeToken)
}

func invariant(err error, msg string, metadata map[string]any) error {
	wrapped := goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeInvariant).
		WithCode(goerrors.CodeInternal)
	if len(metadata) > 0 {
		wrapped = wrapped.WithMetadata(metadata)
	}
	return wrapped
}
