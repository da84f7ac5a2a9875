package identity_test

import (
	"context"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")

		session, err := h.service.SignIn(ctx, &identity.SignInForm{Username: "JANE@example.com", Password: testPassword})
		require.NoError(t, err)
		assert.Equal(t, profile.ID, session.Profile.ID)
		assert.WithinDuration(t, h.clock.Now().Add(identity.DefaultAccessTokenTTL), session.AccessTokenExpiresAt, 0)
		assert.Contains(t, h.sink.types(), identity.ActivityEventSignIn)
	})

	t.Run("wrong password", func(t *testing.T) {
		h := newHarness(t)
		h.createAccount(t, "Jane", "jane@example.com")

		_, err := h.service.SignIn(ctx, &identity.SignInForm{Username: "jane@example.com", Password: "Wrong123!"})
		requireProblem(t, err, "password", "'Password' is incorrect.")
		assert.Contains(t, h.sink.types(), identity.ActivityEventSignInFailure)
	})

	t.Run("unknown contact", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.service.SignIn(ctx, &identity.SignInForm{Username: "+16502530000", Password: testPassword})
		requireProblem(t, err, "username", "'Phone number' does not exist.")
	})

	t.Run("confirmation required", func(t *testing.T) {
		h := newHarness(t, func(cfg *identity.Config) {
			cfg.RequireConfirmedEmail = true
		})
		h.createAccount(t, "Jane", "jane@example.com")

		_, err := h.service.SignIn(ctx, &identity.SignInForm{Username: "jane@example.com", Password: testPassword})
		requireProblem(t, err, "username", "'Email' is not confirmed.")

		require.NoError(t, h.service.SendConfirmAccountCode(ctx, &identity.SendConfirmAccountCodeForm{Username: "jane@example.com"}))
		require.NoError(t, h.service.ConfirmAccount(ctx, &identity.ConfirmAccountForm{
			Username: "jane@example.com",
			Code:     h.sender.lastCode(t),
		}))

		h.signIn(t, "jane@example.com", false)
	})

	t.Run("confirmation is checked after the password", func(t *testing.T) {
		h := newHarness(t, func(cfg *identity.Config) {
			cfg.RequireConfirmedEmail = true
		})
		h.createAccount(t, "Jane", "jane@example.com")

		_, err := h.service.SignIn(ctx, &identity.SignInForm{Username: "jane@example.com", Password: "Wrong123!"})
		problem := requireProblem(t, err, "password", "'Password' is incorrect.")
		assert.NotContains(t, problem.Errors, "username")
	})
}

func TestService_SignInWithToken(t *testing.T) {
	ctx := context.Background()

	t.Run("bridging token signs in", func(t *testing.T) {
		h := newHarness(t)
		token, err := h.service.BeginExternalSignIn(ctx, sampleIdentity())
		require.NoError(t, err)

		session, err := h.service.SignInWithToken(ctx, &identity.SignInWithTokenForm{Provider: "google", Token: token})
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", session.Profile.Email)
		assert.True(t, session.Profile.EmailConfirmed)
		assert.False(t, session.Profile.PasswordConfigured)
		assert.Equal(t, "jane-doe", session.Profile.Username)
	})

	t.Run("tampered token", func(t *testing.T) {
		h := newHarness(t)
		token, err := h.service.BeginExternalSignIn(ctx, sampleIdentity())
		require.NoError(t, err)

		tampered := []byte(token)
		if tampered[10] == 'A' {
			tampered[10] = 'B'
		} else {
			tampered[10] = 'A'
		}

		_, err = h.service.SignInWithToken(ctx, &identity.SignInWithTokenForm{Provider: "Google", Token: string(tampered)})
		problem := requireProblem(t, err, "token", "'Token' is not valid.")
		assert.Equal(t, "Google authentication failed.", problem.Title)
	})

	t.Run("provider mismatch", func(t *testing.T) {
		h := newHarness(t)
		token, err := h.service.BeginExternalSignIn(ctx, sampleIdentity())
		require.NoError(t, err)

		_, err = h.service.SignInWithToken(ctx, &identity.SignInWithTokenForm{Provider: "GitHub", Token: token})
		problem := requireProblem(t, err, "token", "'Token' is not valid.")
		assert.Equal(t, "GitHub authentication failed.", problem.Title)
	})

	t.Run("expired token", func(t *testing.T) {
		h := newHarness(t)
		token, err := h.service.BeginExternalSignIn(ctx, sampleIdentity())
		require.NoError(t, err)

		h.clock.Advance(identity.DefaultBridgeTTL)
		_, err = h.service.SignInWithToken(ctx, &identity.SignInWithTokenForm{Provider: "Google", Token: token})
		requireProblem(t, err, "token", "'Token' is not valid.")
	})

	t.Run("begin requires provider key", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.service.BeginExternalSignIn(ctx, identity.ExternalIdentity{Provider: "Google"})
		assert.Error(t, err)
	})
}

func TestService_SignInWithProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("links to the account holding the contact", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")

		session, err := h.service.SignInWithProvider(ctx, sampleIdentity())
		require.NoError(t, err)
		assert.Equal(t, profile.ID, session.Profile.ID)
		assert.True(t, session.Profile.PasswordConfigured)

		logins, err := h.service.ExternalLogins(ctx, principal(profile))
		require.NoError(t, err)
		require.Len(t, logins, 1)
		assert.Equal(t, "Google", logins[0].Provider)
		assert.Equal(t, "108234", logins[0].ProviderKey)
	})

	t.Run("linked identity wins over the contact", func(t *testing.T) {
		h := newHarness(t)
		first, err := h.service.SignInWithProvider(ctx, sampleIdentity())
		require.NoError(t, err)

		moved := sampleIdentity()
		moved.Username = "jane.other@example.com"
		second, err := h.service.SignInWithProvider(ctx, moved)
		require.NoError(t, err)
		assert.Equal(t, first.Profile.ID, second.Profile.ID)
		assert.Equal(t, "jane@example.com", second.Profile.Email)
	})

	t.Run("new account", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.service.SignInWithProvider(ctx, sampleIdentity())
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Administrator", "Member"}, session.Profile.Roles)

		assert.Equal(t, []identity.ActivityEventType{
			identity.ActivityEventAccountCreated,
			identity.ActivityEventAdministratorGrant,
			identity.ActivityEventExternalSignIn,
		}, h.sink.types())
	})

	t.Run("external sessions are kept alongside others", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")
		h.signIn(t, "jane@example.com", false)

		_, err := h.service.SignInWithProvider(ctx, sampleIdentity())
		require.NoError(t, err)

		sessions, err := h.service.ActiveSessions(ctx, principal(profile))
		require.NoError(t, err)
		assert.Len(t, sessions, 2)
	})

	t.Run("no usable contact", func(t *testing.T) {
		h := newHarness(t)
		id := sampleIdentity()
		id.Username = "not a contact"

		_, err := h.service.SignInWithProvider(ctx, id)
		problem := requireProblem(t, err, "token", "'Token' is not valid.")
		assert.Equal(t, "Google authentication failed.", problem.Title)
	})
}

func TestService_Profile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	profile := h.createAccount(t, "Jane", "jane@example.com")
	session := h.signIn(t, "jane@example.com", false)

	p, _, err := h.service.Authenticate(ctx, session.AccessToken)
	require.NoError(t, err)

	got, err := h.service.Profile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, got.ID)
	assert.Equal(t, "Jane", got.FirstName)
	assert.Equal(t, "Tester", got.LastName)

	_, err = h.service.Profile(ctx, identity.Principal{})
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	_, err = h.service.ExternalLogins(ctx, identity.Principal{})
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}
