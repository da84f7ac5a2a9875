package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Credentials stores password hashes, one row per account.
type Credentials interface {
	GetTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Credential, error)
	InsertTx(ctx context.Context, tx bun.IDB, credential *Credential) error
	DeleteTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error
}

type credentials struct {
	db *bun.DB
}

func NewCredentialsRepository(db *bun.DB) Credentials {
	return &credentials{db: db}
}

// GetTx returns nil, nil when the account has no password.
func (c *credentials) GetTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Credential, error) {
	record := &Credential{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", accountID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (c *credentials) InsertTx(ctx context.Context, tx bun.IDB, credential *Credential) error {
	_, err := tx.NewInsert().Model(credential).Exec(ctx)
	return err
}

func (c *credentials) DeleteTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Credential)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	return err
}
