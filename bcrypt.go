package identity

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCredentialStore is the default CredentialStore. Hashes live in the
// credentials table.
type BcryptCredentialStore struct {
	repo  Credentials
	cost  int
	clock Clock
}

// BcryptOption customizes a BcryptCredentialStore.
type BcryptOption func(*BcryptCredentialStore)

// WithBcryptCost overrides the hashing cost.
func WithBcryptCost(cost int) BcryptOption {
	return func(s *BcryptCredentialStore) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

func WithBcryptClock(clock Clock) BcryptOption {
	return func(s *BcryptCredentialStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewBcryptCredentialStore returns a store on top of repo.
func NewBcryptCredentialStore(repo Credentials, opts ...BcryptOption) *BcryptCredentialStore {
	s := &BcryptCredentialStore{repo: repo, cost: passwordHashCost()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *BcryptCredentialStore) VerifyPassword(ctx context.Context, tx bun.IDB, account *Account, password string) (bool, error) {
	record, err := s.repo.GetTx(ctx, tx, account.ID)
	if err != nil {
		return false, err
	}
	if record == nil || password == "" {
		return false, nil
	}
	if err := ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
	}
	return true, nil
}

func (s *BcryptCredentialStore) RemovePassword(ctx context.Context, tx bun.IDB, account *Account) error {
	return s.repo.DeleteTx(ctx, tx, account.ID)
}

// AddPassword fails when the account already has a password.
func (s *BcryptCredentialStore) AddPassword(ctx context.Context, tx bun.IDB, account *Account, password string) error {
	existing, err := s.repo.GetTx(ctx, tx, account.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return goerrors.New("account already has a password", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{"account_id": account.ID.String()})
	}

	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return err
	}

	return s.repo.InsertTx(ctx, tx, &Credential{
		AccountID:    account.ID,
		PasswordHash: hash,
		UpdatedAt:    s.clock.now(),
	})
}

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return hashPassword(password, passwordHashCost())
}

func hashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
