package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// BridgePurpose is the key separation label of the bridging token.
	BridgePurpose = "identity.bridge.v1"
	// DefaultBridgeTTL bounds the external sign-in redirect round trip.
	DefaultBridgeTTL = 5 * time.Minute
	minMasterKeyLen  = 32
)

var tokenEncoding = base64.RawURLEncoding.Strict()

// AEADProtector encrypts with XChaCha20-Poly1305 under a key derived from a
// master secret and a purpose label. Tokens from another purpose never open.
type AEADProtector struct {
	purpose []byte
	key     []byte
}

// NewAEADProtector derives the purpose key from masterKey with HKDF-SHA256.
func NewAEADProtector(masterKey []byte, purpose string) (*AEADProtector, error) {
	if len(masterKey) < minMasterKeyLen {
		return nil, goerrors.New("protector: master key must be at least 32 bytes", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"length": len(masterKey)})
	}
	if purpose == "" {
		return nil, goerrors.New("protector: purpose must not be empty", goerrors.CategoryValidation)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(purpose)), key); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "protector: key derivation failed")
	}

	return &AEADProtector{purpose: []byte(purpose), key: key}, nil
}

func (p *AEADProtector) Protect(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(p.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "protector: cipher init failed")
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "protector: nonce generation failed")
	}
	sealed := aead.Seal(nonce, nonce, plaintext, p.purpose)
	return tokenEncoding.EncodeToString(sealed), nil
}

// Unprotect opens a token. Every failure is ErrInvalidBridgeToken.
func (p *AEADProtector) Unprotect(token string) ([]byte, error) {
	if token == "" || strings.ContainsAny(token, "\r\n") {
		return nil, ErrInvalidBridgeToken
	}
	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidBridgeToken
	}
	aead, err := chacha20poly1305.NewX(p.key)
	if err != nil {
		return nil, ErrInvalidBridgeToken
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidBridgeToken
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, p.purpose)
	if err != nil {
		return nil, ErrInvalidBridgeToken
	}
	return plaintext, nil
}

// ExternalIdentity carries external provider claims across the sign-in
// redirect.
type ExternalIdentity struct {
	Provider    string `json:"provider"`
	ProviderKey string `json:"provider_key"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type bridgePayload struct {
	ExternalIdentity
	IssuedAt  int64 `json:"iat"`
	ExpiresAt int64 `json:"exp"`
}

// BridgeCodec protects external identities with a bounded lifetime.
type BridgeCodec struct {
	protector Protector
	ttl       time.Duration
	clock     Clock
}

// BridgeOption customizes a BridgeCodec.
type BridgeOption func(*BridgeCodec)

func WithBridgeTTL(ttl time.Duration) BridgeOption {
	return func(c *BridgeCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithBridgeClock(clock Clock) BridgeOption {
	return func(c *BridgeCodec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewBridgeCodec wraps protector.
func NewBridgeCodec(protector Protector, opts ...BridgeOption) *BridgeCodec {
	c := &BridgeCodec{protector: protector, ttl: DefaultBridgeTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NewBridgeCodecFromSecret derives the bridge key from masterKey.
func NewBridgeCodecFromSecret(masterKey []byte, opts ...BridgeOption) (*BridgeCodec, error) {
	protector, err := NewAEADProtector(masterKey, BridgePurpose)
	if err != nil {
		return nil, err
	}
	return NewBridgeCodec(protector, opts...), nil
}

// Protect serializes and encrypts identity.
func (c *BridgeCodec) Protect(identity ExternalIdentity) (string, error) {
	now := c.clock.now()
	payload, err := json.Marshal(bridgePayload{
		ExternalIdentity: identity,
		IssuedAt:         now.Unix(),
		ExpiresAt:        now.Add(c.ttl).Unix(),
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "bridge: failed to encode payload")
	}
	return c.protector.Protect(payload)
}

// Unprotect decrypts token. Tampered, truncated, foreign and stale tokens
// all return ErrInvalidBridgeToken.
func (c *BridgeCodec) Unprotect(token string) (*ExternalIdentity, error) {
	plaintext, err := c.protector.Unprotect(token)
	if err != nil {
		return nil, ErrInvalidBridgeToken
	}

	var payload bridgePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, ErrInvalidBridgeToken
	}

	if payload.ExpiresAt == 0 || c.clock.now().Unix() >= payload.ExpiresAt {
		return nil, ErrInvalidBridgeToken
	}

	if payload.Provider == "" || payload.ProviderKey == "" {
		return nil, ErrInvalidBridgeToken
	}

	identity := payload.ExternalIdentity
	return &identity, nil
}
