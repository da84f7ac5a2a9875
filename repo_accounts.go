package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the account repository. Lookups by contact expect normalized
// values.
type Accounts interface {
	repository.Repository[*Account]

	FindByIDTx(ctx context.Context, tx bun.IDB, id string) (*Account, error)
	FindByContactTx(ctx context.Context, tx bun.IDB, contact Contact) (*Account, error)
	UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
	InsertTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	SaveTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	TouchTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) FindByIDTx(ctx context.Context, tx bun.IDB, id string) (*Account, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrAccountNotFound
	}

	record := &Account{}
	err = tx.NewSelect().Model(record).Where("?TableAlias.id = ?", parsed).Limit(1).Scan(ctx)
	return accountOrNotFound(record, err)
}

func (a *accounts) FindByContactTx(ctx context.Context, tx bun.IDB, contact Contact) (*Account, error) {
	var column string
	switch contact.Type {
	case ContactEmail:
		column = "email"
	case ContactPhoneNumber:
		column = "phone_number"
	default:
		return nil, ErrUnsupportedContactType
	}

	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), contact.Value).
		Limit(1).
		Scan(ctx)
	return accountOrNotFound(record, err)
}

func (a *accounts) UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.username = ?", username).
		Exists(ctx)
}

func (a *accounts) InsertTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, account)
}

func (a *accounts) SaveTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	return a.Repository.UpdateTx(ctx, tx, account, repository.UpdateByID(account.ID.String()))
}

func (a *accounts) TouchTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("last_active_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func accountOrNotFound(record *Account, err error) (*Account, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return record, nil
}
