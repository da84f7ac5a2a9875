package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var errSessionNotFound = errors.New("session token not found")

// SessionTokens stores issued session pairs by fingerprint.
type SessionTokens interface {
	CreateTx(ctx context.Context, tx bun.IDB, token *SessionToken) error
	GetByRefreshHashTx(ctx context.Context, tx bun.IDB, hash string) (*SessionToken, error)
	GetByAccessHash(ctx context.Context, hash string) (*SessionToken, error)
	ListTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*SessionToken, error)
	// DeleteByRefreshHashTx deletes the pair of hash owned by accountID and
	// returns the number of rows removed. A nil accountID matches any owner.
	DeleteByRefreshHashTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, hash string) (int64, error)
	DeleteByIDsTx(ctx context.Context, tx bun.IDB, ids ...uuid.UUID) (int64, error)
	DeleteAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int64, error)
}

type sessionTokens struct {
	db *bun.DB
}

func NewSessionTokensRepository(db *bun.DB) SessionTokens {
	return &sessionTokens{db: db}
}

func (s *sessionTokens) CreateTx(ctx context.Context, tx bun.IDB, token *SessionToken) error {
	_, err := tx.NewInsert().Model(token).Exec(ctx)
	return err
}

func (s *sessionTokens) GetByRefreshHashTx(ctx context.Context, tx bun.IDB, hash string) (*SessionToken, error) {
	return s.getBy(ctx, tx, "refresh_token_hash", hash)
}

func (s *sessionTokens) GetByAccessHash(ctx context.Context, hash string) (*SessionToken, error) {
	return s.getBy(ctx, s.db, "access_token_hash", hash)
}

func (s *sessionTokens) getBy(ctx context.Context, tx bun.IDB, column, hash string) (*SessionToken, error) {
	record := &SessionToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), hash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errSessionNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *sessionTokens) ListTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*SessionToken, error) {
	var records []*SessionToken
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

func (s *sessionTokens) DeleteByRefreshHashTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, hash string) (int64, error) {
	q := tx.NewDelete().
		Model((*SessionToken)(nil)).
		Where("refresh_token_hash = ?", hash)
	if accountID != uuid.Nil {
		q = q.Where("account_id = ?", accountID)
	}
	return rowsAffected(q.Exec(ctx))
}

func (s *sessionTokens) DeleteByIDsTx(ctx context.Context, tx bun.IDB, ids ...uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return rowsAffected(tx.NewDelete().
		Model((*SessionToken)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx))
}

func (s *sessionTokens) DeleteAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int64, error) {
	return rowsAffected(tx.NewDelete().
		Model((*SessionToken)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx))
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
