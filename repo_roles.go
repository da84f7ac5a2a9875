package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles manages the role catalog, memberships and one-time role claims.
type Roles interface {
	ExistsTx(ctx context.Context, tx bun.IDB, name RoleName) (bool, error)
	// CreateTx inserts name unless a concurrent writer already did.
	CreateTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error)
	AddToRolesTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, names ...RoleName) error
	ListForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]string, error)
	// ClaimSlotTx takes slot for accountID. It reports false when the slot
	// was already taken.
	ClaimSlotTx(ctx context.Context, tx bun.IDB, slot string, accountID uuid.UUID, at time.Time) (bool, error)
}

type roles struct {
	db *bun.DB
}

func NewRolesRepository(db *bun.DB) Roles {
	return &roles{db: db}
}

func (r *roles) ExistsTx(ctx context.Context, tx bun.IDB, name RoleName) (bool, error) {
	return tx.NewSelect().
		Model((*Role)(nil)).
		Where("?TableAlias.name = ?", string(name)).
		Exists(ctx)
}

func (r *roles) CreateTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error) {
	role := &Role{ID: uuid.New(), Name: string(name)}
	_, err := tx.NewInsert().
		Model(role).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (r *roles) AddToRolesTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, names ...RoleName) error {
	if len(names) == 0 {
		return nil
	}

	wanted := make([]string, 0, len(names))
	for _, n := range names {
		wanted = append(wanted, string(n))
	}

	var found []Role
	if err := tx.NewSelect().
		Model(&found).
		Where("?TableAlias.name IN (?)", bun.In(wanted)).
		Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if len(found) != len(wanted) {
		return errors.New("add to roles: unknown role requested")
	}

	links := make([]AccountRole, 0, len(found))
	for _, role := range found {
		links = append(links, AccountRole{AccountID: accountID, RoleID: role.ID})
	}

	_, err := tx.NewInsert().
		Model(&links).
		On("CONFLICT (account_id, role_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (r *roles) ListForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]string, error) {
	var names []string
	err := tx.NewSelect().
		Model((*Role)(nil)).
		Column("rl.name").
		Join("JOIN account_roles AS acr ON acr.role_id = rl.id").
		Where("acr.account_id = ?", accountID).
		OrderExpr("rl.name ASC").
		Scan(ctx, &names)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return names, nil
}

func (r *roles) ClaimSlotTx(ctx context.Context, tx bun.IDB, slot string, accountID uuid.UUID, at time.Time) (bool, error) {
	claim := &RoleClaim{Slot: slot, AccountID: accountID, ClaimedAt: at}
	res, err := tx.NewInsert().
		Model(claim).
		On("CONFLICT (slot) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
