package identity

import "context"

// ClaimsDecorator can add extension claims (Metadata) before an access token
// is signed. Registered claims, uid, sid and roles must stay untouched.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, account *Account, claims *SessionClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, account *Account, claims *SessionClaims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, account *Account, claims *SessionClaims) error {
	if f == nil {
		return nil
	}
	return f(ctx, account, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, *Account, *SessionClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}

// decorateClaims runs d and rejects any change to protected claims.
func decorateClaims(ctx context.Context, d ClaimsDecorator, account *Account, claims *SessionClaims) error {
	snap := captureImmutableClaims(claims)
	if err := d.Decorate(ctx, account, claims); err != nil {
		return err
	}
	return snap.validate(claims)
}
