package identity_test

import (
	"context"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("first account is administrator", func(t *testing.T) {
		h := newHarness(t)

		first := h.createAccount(t, "Jane", "Jane@Example.com")
		assert.Equal(t, "jane-tester", first.Username)
		assert.Equal(t, "jane@example.com", first.Email)
		assert.False(t, first.EmailConfirmed)
		assert.True(t, first.PasswordConfigured)
		assert.ElementsMatch(t, []string{"Administrator", "Member"}, first.Roles)

		second := h.createAccount(t, "John", "john@example.com")
		assert.Equal(t, []string{"Member"}, second.Roles)

		assert.Equal(t, []identity.ActivityEventType{
			identity.ActivityEventAccountCreated,
			identity.ActivityEventAdministratorGrant,
			identity.ActivityEventAccountCreated,
		}, h.sink.types())
	})

	t.Run("duplicate contact", func(t *testing.T) {
		h := newHarness(t)
		h.createAccount(t, "Jane", "jane@example.com")

		_, err := h.service.CreateAccount(ctx, &identity.CreateAccountForm{
			FirstName: "Other",
			Username:  "JANE@example.com",
			Password:  testPassword,
		})
		requireProblem(t, err, "username", "'Email' is already taken.")
	})

	t.Run("username slug collisions get a suffix", func(t *testing.T) {
		h := newHarness(t)
		a := h.createAccount(t, "Jane", "jane@example.com")
		b := h.createAccount(t, "Jane", "jane.two@example.com")
		c := h.createAccount(t, "Jane", "jane.three@example.com")

		assert.Equal(t, "jane-tester", a.Username)
		assert.Equal(t, "jane-tester-2", b.Username)
		assert.Equal(t, "jane-tester-3", c.Username)
	})

	t.Run("phone number", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "(650) 253-0000")
		assert.Equal(t, "+16502530000", profile.PhoneNumber)
		assert.Empty(t, profile.Email)

		err := h.service.SendConfirmAccountCode(ctx, &identity.SendConfirmAccountCodeForm{Username: "+1 650 253 0000"})
		require.NoError(t, err)

		sent := h.sender.last(t)
		assert.Equal(t, identity.ChannelSMS, sent.channel)
		assert.Equal(t, []string{"+16502530000"}, sent.msg.Recipients)
	})

	t.Run("structural problems", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.service.CreateAccount(ctx, &identity.CreateAccountForm{Username: "jane@example.com", Password: "short"})
		problem := requireProblem(t, err, "first_name", "'First name' must not be empty.")
		assert.Contains(t, problem.Errors, "password")
		assert.Empty(t, h.sink.types())
	})
}

func TestService_ConfirmAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	profile := h.createAccount(t, "Jane", "jane@example.com")

	err := h.service.SendConfirmAccountCode(ctx, &identity.SendConfirmAccountCodeForm{Username: "jane@example.com"})
	require.NoError(t, err)

	sent := h.sender.last(t)
	assert.Equal(t, identity.ChannelEmail, sent.channel)
	assert.Equal(t, "Confirm Your Email Address", sent.msg.Subject)
	assert.Contains(t, sent.msg.Body, "Hi Jane,")
	code := h.sender.lastCode(t)

	t.Run("unknown contact", func(t *testing.T) {
		err := h.service.ConfirmAccount(ctx, &identity.ConfirmAccountForm{Username: "nobody@example.com", Code: code})
		requireProblem(t, err, "username", "'Email' does not exist.")
	})

	t.Run("wrong code", func(t *testing.T) {
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		err := h.service.ConfirmAccount(ctx, &identity.ConfirmAccountForm{Username: "jane@example.com", Code: wrong})
		requireProblem(t, err, "code", "'Code' is not valid.")
	})

	t.Run("valid code", func(t *testing.T) {
		err := h.service.ConfirmAccount(ctx, &identity.ConfirmAccountForm{Username: "jane@example.com", Code: code})
		require.NoError(t, err)

		got, err := h.service.Profile(ctx, principal(profile))
		require.NoError(t, err)
		assert.True(t, got.EmailConfirmed)
		assert.Contains(t, h.sink.types(), identity.ActivityEventAccountConfirmed)
	})

	t.Run("send to unknown contact", func(t *testing.T) {
		before := h.sender.count()
		err := h.service.SendConfirmAccountCode(ctx, &identity.SendConfirmAccountCodeForm{Username: "nobody@example.com"})
		requireProblem(t, err, "username", "'Email' does not exist.")
		assert.Equal(t, before, h.sender.count())
	})
}

func TestService_ChangeAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")
		p := principal(profile)

		err := h.service.SendChangeAccountCode(ctx, p, &identity.SendChangeAccountCodeForm{NewUsername: "jane.doe@example.com"})
		require.NoError(t, err)

		sent := h.sender.last(t)
		assert.Equal(t, []string{"jane.doe@example.com"}, sent.msg.Recipients)
		code := h.sender.lastCode(t)

		err = h.service.ChangeAccount(ctx, p, &identity.ChangeAccountForm{NewUsername: "jane.doe@example.com", Code: code})
		require.NoError(t, err)

		got, err := h.service.Profile(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "jane.doe@example.com", got.Email)
		assert.True(t, got.EmailConfirmed)

		session := h.signIn(t, "jane.doe@example.com", false)
		assert.Equal(t, profile.ID, session.Profile.ID)

		_, err = h.service.SignIn(ctx, &identity.SignInForm{Username: "jane@example.com", Password: testPassword})
		requireProblem(t, err, "username", "'Email' does not exist.")
	})

	t.Run("code is bound to the new contact", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")
		p := principal(profile)

		require.NoError(t, h.service.SendChangeAccountCode(ctx, p, &identity.SendChangeAccountCodeForm{NewUsername: "first@example.com"}))
		code := h.sender.lastCode(t)

		err := h.service.ChangeAccount(ctx, p, &identity.ChangeAccountForm{NewUsername: "second@example.com", Code: code})
		requireProblem(t, err, "code", "'Code' is not valid.")
	})

	t.Run("stamp rotates after a change", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")
		p := principal(profile)

		require.NoError(t, h.service.SendChangeAccountCode(ctx, p, &identity.SendChangeAccountCodeForm{NewUsername: "a@example.com"}))
		first := h.sender.lastCode(t)
		require.NoError(t, h.service.SendChangeAccountCode(ctx, p, &identity.SendChangeAccountCodeForm{NewUsername: "b@example.com"}))
		second := h.sender.lastCode(t)

		require.NoError(t, h.service.ChangeAccount(ctx, p, &identity.ChangeAccountForm{NewUsername: "a@example.com", Code: first}))

		err := h.service.ChangeAccount(ctx, p, &identity.ChangeAccountForm{NewUsername: "b@example.com", Code: second})
		requireProblem(t, err, "code", "'Code' is not valid.")
	})

	t.Run("already used by you", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")

		before := h.sender.count()
		err := h.service.SendChangeAccountCode(ctx, principal(profile), &identity.SendChangeAccountCodeForm{NewUsername: "JANE@example.com"})
		requireProblem(t, err, "new_username", "'Email' is already being used by you.")
		assert.Equal(t, before, h.sender.count())
	})

	t.Run("taken by another account", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")
		h.createAccount(t, "John", "john@example.com")

		err := h.service.SendChangeAccountCode(ctx, principal(profile), &identity.SendChangeAccountCodeForm{NewUsername: "john@example.com"})
		requireProblem(t, err, "new_username", "'Email' is already taken.")
	})

	t.Run("add a phone number", func(t *testing.T) {
		h := newHarness(t)
		profile := h.createAccount(t, "Jane", "jane@example.com")
		p := principal(profile)

		require.NoError(t, h.service.SendChangeAccountCode(ctx, p, &identity.SendChangeAccountCodeForm{NewUsername: "+16502530000"}))
		sent := h.sender.last(t)
		assert.Equal(t, identity.ChannelSMS, sent.channel)

		require.NoError(t, h.service.ChangeAccount(ctx, p, &identity.ChangeAccountForm{NewUsername: "+16502530000", Code: h.sender.lastCode(t)}))

		got, err := h.service.Profile(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", got.Email)
		assert.Equal(t, "+16502530000", got.PhoneNumber)
		assert.True(t, got.PhoneNumberConfirmed)
		assert.False(t, got.EmailConfirmed)
	})

	t.Run("requires a principal", func(t *testing.T) {
		h := newHarness(t)
		err := h.service.SendChangeAccountCode(ctx, identity.Principal{}, &identity.SendChangeAccountCodeForm{NewUsername: "a@example.com"})
		assert.ErrorIs(t, err, identity.ErrUnauthenticated)
	})
}
