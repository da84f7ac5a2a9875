package identity

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultIssuer          = "identity"
	minSecretLength        = 32
)

// Config holds the service options. Secrets are raw strings of at least 32
// bytes.
type Config struct {
	SigningKey                  string        `env:"IDENTITY_SIGNING_KEY" json:"-"`
	Issuer                      string        `env:"IDENTITY_ISSUER" envDefault:"identity" json:"issuer"`
	Audience                    []string      `env:"IDENTITY_AUDIENCE" envSeparator:"," json:"audience,omitempty"`
	AccessTokenTTL              time.Duration `env:"IDENTITY_ACCESS_TOKEN_TTL" envDefault:"15m" json:"access_token_ttl"`
	RefreshTokenTTL             time.Duration `env:"IDENTITY_REFRESH_TOKEN_TTL" envDefault:"720h" json:"refresh_token_ttl"`
	BridgeSecret                string        `env:"IDENTITY_BRIDGE_SECRET" json:"-"`
	BridgeTTL                   time.Duration `env:"IDENTITY_BRIDGE_TTL" envDefault:"5m" json:"bridge_ttl"`
	CodePeriod                  time.Duration `env:"IDENTITY_CODE_PERIOD" envDefault:"3m" json:"code_period"`
	CodeSkew                    uint          `env:"IDENTITY_CODE_SKEW" envDefault:"1" json:"code_skew"`
	PhoneRegion                 string        `env:"IDENTITY_PHONE_REGION" envDefault:"US" json:"phone_region"`
	RequireConfirmedEmail       bool          `env:"IDENTITY_REQUIRE_CONFIRMED_EMAIL" json:"require_confirmed_email"`
	RequireConfirmedPhoneNumber bool          `env:"IDENTITY_REQUIRE_CONFIRMED_PHONE_NUMBER" json:"require_confirmed_phone_number"`
	BcryptCost                  int           `env:"IDENTITY_BCRYPT_COST" json:"bcrypt_cost,omitempty"`
}

// DefaultConfig returns a config with every non secret field set.
func DefaultConfig() Config {
	return Config{
		Issuer:          DefaultIssuer,
		AccessTokenTTL:  DefaultAccessTokenTTL,
		RefreshTokenTTL: DefaultRefreshTokenTTL,
		BridgeTTL:       DefaultBridgeTTL,
		CodePeriod:      DefaultCodePeriod,
		CodeSkew:        DefaultCodeSkew,
		PhoneRegion:     DefaultPhoneRegion,
	}
}

// LoadConfigFromEnv reads IDENTITY_* variables on top of DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(minSecretLength, 0)),
		validation.Field(&c.BridgeSecret, validation.Required, validation.Length(minSecretLength, 0)),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.AccessTokenTTL, validation.Required, validation.By(atLeast(time.Minute))),
		validation.Field(&c.RefreshTokenTTL, validation.Required, validation.By(atLeast(c.AccessTokenTTL))),
		validation.Field(&c.BridgeTTL, validation.Required),
		validation.Field(&c.CodePeriod, validation.Required, validation.By(atLeast(time.Second))),
		validation.Field(&c.PhoneRegion, validation.Required, validation.Length(2, 2)),
		validation.Field(&c.BcryptCost, validation.Min(0), validation.Max(31)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid identity config")
	}
	if c.SigningKey == c.BridgeSecret {
		return goerrors.New("signing key and bridge secret must differ", goerrors.CategoryValidation)
	}
	return nil
}

func atLeast(min time.Duration) validation.RuleFunc {
	return func(value interface{}) error {
		d, _ := value.(time.Duration)
		if d < min {
			return fmt.Errorf("must be at least %s", min)
		}
		return nil
	}
}
