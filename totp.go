package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultCodePeriod = 3 * time.Minute
	DefaultCodeSkew   = 1
)

// TOTPTokenProvider derives TOTP codes from the account security stamp.
// Codes are never stored.
type TOTPTokenProvider struct {
	period time.Duration
	skew   uint
	digits otp.Digits
	clock  Clock
}

// TOTPOption customizes a TOTPTokenProvider.
type TOTPOption func(*TOTPTokenProvider)

// WithCodePeriod sets the time step of generated codes.
func WithCodePeriod(period time.Duration) TOTPOption {
	return func(p *TOTPTokenProvider) {
		if period >= time.Second {
			p.period = period
		}
	}
}

// WithCodeSkew sets how many periods before and after now are accepted.
func WithCodeSkew(skew uint) TOTPOption {
	return func(p *TOTPTokenProvider) {
		p.skew = skew
	}
}

// WithCodeClock injects a clock, useful for tests.
func WithCodeClock(clock Clock) TOTPOption {
	return func(p *TOTPTokenProvider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewTOTPTokenProvider returns a six digit SHA1 provider.
func NewTOTPTokenProvider(opts ...TOTPOption) *TOTPTokenProvider {
	p := &TOTPTokenProvider{
		period: DefaultCodePeriod,
		skew:   DefaultCodeSkew,
		digits: otp.DigitsSix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *TOTPTokenProvider) GenerateCode(ctx context.Context, account *Account, purpose string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	secret, err := p.secret(account, purpose)
	if err != nil {
		return "", err
	}
	code, err := totp.GenerateCodeCustom(secret, p.clock.now(), p.opts())
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}
	return code, nil
}

func (p *TOTPTokenProvider) VerifyCode(ctx context.Context, account *Account, purpose, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	code = strings.TrimSpace(code)
	if len(code) != p.digits.Length() || !isDigits(code) {
		return false, nil
	}
	secret, err := p.secret(account, purpose)
	if err != nil {
		return false, err
	}
	ok, err := totp.ValidateCustom(code, secret, p.clock.now(), p.opts())
	if err != nil {
		if goerrors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to validate verification code")
	}
	return ok, nil
}

func (p *TOTPTokenProvider) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(p.period / time.Second),
		Skew:      p.skew,
		Digits:    p.digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// secret keys the TOTP generator with HMAC(stamp, purpose|account id), so a
// new security stamp revokes every outstanding code.
func (p *TOTPTokenProvider) secret(account *Account, purpose string) (string, error) {
	if account == nil {
		return "", goerrors.New("token provider: account must not be nil", goerrors.CategoryInternal)
	}
	if account.SecurityStamp == "" {
		return "", goerrors.New("token provider: account has no security stamp", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"account_id": account.ID.String()})
	}
	mac := hmac.New(sha256.New, []byte(account.SecurityStamp))
	mac.Write([]byte(purpose))
	mac.Write([]byte("|"))
	mac.Write([]byte(account.ID.String()))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(mac.Sum(nil)), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
