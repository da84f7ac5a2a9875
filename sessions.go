package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// TokenTypeBearer is the token type of every issued access token.
	TokenTypeBearer   = "Bearer"
	refreshTokenBytes = 32
)

// TokenPair is a freshly issued session. Raw tokens are only ever returned
// here, the store keeps fingerprints.
type TokenPair struct {
	SessionID             string
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// SessionManager issues, rotates and invalidates session pairs.
type SessionManager struct {
	repos      RepositoryManager
	tokens     *TokenService
	decorator  ClaimsDecorator
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
	logger     Logger
}

// SessionOption customizes a SessionManager.
type SessionOption func(*SessionManager)

func WithSessionTTL(access, refresh time.Duration) SessionOption {
	return func(m *SessionManager) {
		if access > 0 {
			m.accessTTL = access
		}
		if refresh > 0 {
			m.refreshTTL = refresh
		}
	}
}

func WithSessionClock(clock Clock) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithSessionLogger(logger Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionClaimsDecorator sets the decorator run before signing.
func WithSessionClaimsDecorator(d ClaimsDecorator) SessionOption {
	return func(m *SessionManager) {
		m.decorator = normalizeClaimsDecorator(d)
	}
}

// NewSessionManager returns a manager signing with tokens.
func NewSessionManager(repos RepositoryManager, tokens *TokenService, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		repos:      repos,
		tokens:     tokens,
		decorator:  noopClaimsDecorator{},
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Fingerprint is the stored, irreversible form of a raw token.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IssueTx mints a new pair for account and stores its fingerprints.
func (m *SessionManager) IssueTx(ctx context.Context, tx bun.IDB, account *Account, roles []string) (*TokenPair, error) {
	if account == nil || account.ID == uuid.Nil {
		return nil, goerrors.New("issue session: account must not be empty", goerrors.CategoryInternal)
	}

	now := m.clock.now()

	refresh, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshHash := Fingerprint(refresh)

	sessionID, err := hashid.NewUUID(refreshHash)
	if err != nil {
		sessionID = uuid.New()
	}

	claims := m.tokens.NewClaims(account, sessionID.String(), roles, now, m.accessTTL)
	if err := decorateClaims(ctx, m.decorator, account, claims); err != nil {
		return nil, err
	}

	access, err := m.tokens.SignClaims(claims)
	if err != nil {
		return nil, err
	}

	record := &SessionToken{
		ID:                    sessionID,
		AccountID:             account.ID,
		AccessTokenHash:       Fingerprint(access),
		AccessTokenExpiresAt:  claims.Expires().UTC(),
		RefreshTokenHash:      refreshHash,
		RefreshTokenExpiresAt: now.Add(m.refreshTTL),
		CreatedAt:             now,
	}

	if err := m.repos.SessionTokens().CreateTx(ctx, tx, record); err != nil {
		return nil, invariant(err, "failed to store session token", map[string]any{
			"account_id": account.ID.String(),
		})
	}

	return &TokenPair{
		SessionID:             sessionID.String(),
		AccessToken:           access,
		AccessTokenExpiresAt:  record.AccessTokenExpiresAt,
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: record.RefreshTokenExpiresAt,
	}, nil
}

// InvalidateAllTx prepares account for a new session. With allowMultiple
// false every pair is deleted, otherwise existing pairs stay and only
// expired ones are purged.
func (m *SessionManager) InvalidateAllTx(ctx context.Context, tx bun.IDB, account *Account, allowMultiple bool) error {
	repo := m.repos.SessionTokens()

	if !allowMultiple {
		if _, err := repo.DeleteAllTx(ctx, tx, account.ID); err != nil {
			return invariant(err, "failed to delete sessions", map[string]any{"account_id": account.ID.String()})
		}
		return nil
	}

	records, err := repo.ListTx(ctx, tx, account.ID)
	if err != nil {
		return invariant(err, "failed to list sessions", map[string]any{"account_id": account.ID.String()})
	}

	now := m.clock.now()
	var expired []uuid.UUID
	for _, r := range records {
		if r.Expired(now) {
			expired = append(expired, r.ID)
		}
	}

	if _, err := repo.DeleteByIDsTx(ctx, tx, expired...); err != nil {
		return invariant(err, "failed to purge expired sessions", map[string]any{"account_id": account.ID.String()})
	}
	return nil
}

// ConsumeTx looks up the pair of rawRefresh and deletes it. Unknown,
// expired and concurrently consumed tokens all yield ErrInvalidToken.
func (m *SessionManager) ConsumeTx(ctx context.Context, tx bun.IDB, rawRefresh string) (*SessionToken, error) {
	if rawRefresh == "" {
		return nil, ErrInvalidToken
	}

	repo := m.repos.SessionTokens()
	hash := Fingerprint(rawRefresh)

	record, err := repo.GetByRefreshHashTx(ctx, tx, hash)
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if record.Expired(m.clock.now()) {
		return nil, ErrInvalidToken
	}

	n, err := repo.DeleteByRefreshHashTx(ctx, tx, record.AccountID, hash)
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, ErrInvalidToken
	}

	return record, nil
}

// Refresh rotates the pair of rawRefresh inside its own transaction.
func (m *SessionManager) Refresh(ctx context.Context, rawRefresh string) (*Account, *TokenPair, error) {
	var (
		account *Account
		pair    *TokenPair
	)
	err := m.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, pair, err = m.RefreshTx(ctx, tx, rawRefresh)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// RefreshTx consumes rawRefresh and issues a replacement pair.
func (m *SessionManager) RefreshTx(ctx context.Context, tx bun.IDB, rawRefresh string) (*Account, *TokenPair, error) {
	consumed, err := m.ConsumeTx(ctx, tx, rawRefresh)
	if err != nil {
		return nil, nil, err
	}

	account, err := m.repos.Accounts().FindByIDTx(ctx, tx, consumed.AccountID.String())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}

	roles, err := m.repos.Roles().ListForAccountTx(ctx, tx, account.ID)
	if err != nil {
		return nil, nil, err
	}

	pair, err := m.IssueTx(ctx, tx, account, roles)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// SignOutTx deletes every pair of account when allowMultiple is false,
// otherwise only the pair of rawRefresh. Unknown tokens are ignored.
func (m *SessionManager) SignOutTx(ctx context.Context, tx bun.IDB, account *Account, rawRefresh string, allowMultiple bool) (int64, error) {
	repo := m.repos.SessionTokens()
	if !allowMultiple {
		return repo.DeleteAllTx(ctx, tx, account.ID)
	}
	return repo.DeleteByRefreshHashTx(ctx, tx, account.ID, Fingerprint(rawRefresh))
}

// Authenticate validates a raw access token and checks its pair was not
// revoked.
func (m *SessionManager) Authenticate(ctx context.Context, rawAccess string) (*SessionClaims, error) {
	claims, err := m.tokens.Validate(rawAccess)
	if err != nil {
		return nil, err
	}

	record, err := m.repos.SessionTokens().GetByAccessHash(ctx, Fingerprint(rawAccess))
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if record.AccountID.String() != claims.UserID() || record.ID.String() != claims.SessionID {
		m.logger.Warn("access token does not match its session", "session_id", claims.SessionID)
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// SessionsTx lists the active pairs of account.
func (m *SessionManager) SessionsTx(ctx context.Context, tx bun.IDB, account *Account) ([]*SessionToken, error) {
	records, err := m.repos.SessionTokens().ListTx(ctx, tx, account.ID)
	if err != nil {
		return nil, err
	}
	now := m.clock.now()
	active := records[:0]
	for _, r := range records {
		if !r.Expired(now) {
			active = append(active, r)
		}
	}
	return active, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
