package identity_test

import (
	"context"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := identity.HashPassword(tt.password)

			if tt.wantErr {
				assert.ErrorIs(t, err, identity.ErrNoEmptyString)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)

			err = identity.ComparePasswordAndHash(tt.password, hash)
			assert.NoError(t, err)
		})
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	password := "testPassword123!"
	raw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	hash := string(raw)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  bool
	}{
		{
			name:     "Matching password",
			password: password,
			hash:     hash,
			wantErr:  false,
		},
		{
			name:     "Wrong password",
			password: "wrongPassword",
			hash:     hash,
			wantErr:  true,
		},
		{
			name:     "Invalid hash",
			password: password,
			hash:     "invalidhash",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := identity.ComparePasswordAndHash(tt.password, tt.hash)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.hash == hash {
					assert.Equal(t, bcrypt.ErrMismatchedHashAndPassword, err)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBcryptCredentialStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repos := identity.NewRepositoryManager(db)
	store := identity.NewBcryptCredentialStore(repos.Credentials(), identity.WithBcryptCost(bcrypt.MinCost))

	account := &identity.Account{ID: uuid.New(), Username: "jane", FirstName: "Jane", SecurityStamp: "STAMP", CreatedAt: time.Now()}
	_, err := repos.Accounts().InsertTx(ctx, db, account)
	require.NoError(t, err)

	ok, err := store.VerifyPassword(ctx, db, account, testPassword)
	require.NoError(t, err)
	assert.False(t, ok, "no password configured")

	require.NoError(t, store.AddPassword(ctx, db, account, testPassword))
	assert.Error(t, store.AddPassword(ctx, db, account, "Other123!"), "one password per account")

	ok, err = store.VerifyPassword(ctx, db, account, testPassword)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.VerifyPassword(ctx, db, account, "Wrong123!")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.VerifyPassword(ctx, db, account, "")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.RemovePassword(ctx, db, account))
	ok, err = store.VerifyPassword(ctx, db, account, testPassword)
	require.NoError(t, err)
	assert.False(t, ok)
}
