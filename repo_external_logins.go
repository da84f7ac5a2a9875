package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var errExternalLoginNotFound = errors.New("external login not found")

// ExternalLogins links provider identities to accounts.
type ExternalLogins interface {
	FindTx(ctx context.Context, tx bun.IDB, provider, providerKey string) (*ExternalLogin, error)
	ListForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*ExternalLogin, error)
	RemoveTx(ctx context.Context, tx bun.IDB, provider, providerKey string) error
	AddTx(ctx context.Context, tx bun.IDB, login *ExternalLogin) error
}

type externalLogins struct {
	db *bun.DB
}

func NewExternalLoginsRepository(db *bun.DB) ExternalLogins {
	return &externalLogins{db: db}
}

func (r *externalLogins) FindTx(ctx context.Context, tx bun.IDB, provider, providerKey string) (*ExternalLogin, error) {
	var model ExternalLogin
	err := tx.NewSelect().
		Model(&model).
		Where("provider = ? AND provider_key = ?", provider, providerKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errExternalLoginNotFound
		}
		return nil, err
	}
	return &model, nil
}

func (r *externalLogins) ListForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*ExternalLogin, error) {
	var models []*ExternalLogin
	err := tx.NewSelect().
		Model(&models).
		Where("account_id = ?", accountID).
		Order("provider").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return models, nil
}

func (r *externalLogins) RemoveTx(ctx context.Context, tx bun.IDB, provider, providerKey string) error {
	_, err := tx.NewDelete().
		Model((*ExternalLogin)(nil)).
		Where("provider = ? AND provider_key = ?", provider, providerKey).
		Exec(ctx)
	return err
}

func (r *externalLogins) AddTx(ctx context.Context, tx bun.IDB, login *ExternalLogin) error {
	_, err := tx.NewInsert().Model(login).Exec(ctx)
	return err
}
