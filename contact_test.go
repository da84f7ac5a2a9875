package identity_test

import (
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectContactType(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want identity.ContactType
	}{
		{name: "email", raw: "jane@example.com", want: identity.ContactEmail},
		{name: "phone with prefix", raw: "+1 650-253-0000", want: identity.ContactPhoneNumber},
		{name: "national phone", raw: "(650) 253-0000", want: identity.ContactPhoneNumber},
		{name: "plain word", raw: "jane", want: identity.ContactUnknown},
		{name: "blank", raw: "   ", want: identity.ContactUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identity.DetectContactType(tt.raw))
		})
	}
}

func TestContactParser_Parse(t *testing.T) {
	t.Run("lower cases emails", func(t *testing.T) {
		c, err := identity.ParseContact("  Jane.Doe@Example.COM ")
		require.NoError(t, err)
		assert.Equal(t, identity.ContactEmail, c.Type)
		assert.Equal(t, "jane.doe@example.com", c.Value)
	})

	t.Run("formats phone numbers as E.164", func(t *testing.T) {
		c, err := identity.ContactParser{Region: "US"}.Parse("(650) 253-0000")
		require.NoError(t, err)
		assert.Equal(t, identity.ContactPhoneNumber, c.Type)
		assert.Equal(t, "+16502530000", c.Value)
	})

	t.Run("same number in two formats normalizes once", func(t *testing.T) {
		a, err := identity.ParseContact("+1 650 253 0000")
		require.NoError(t, err)
		b, err := identity.ParseContact("650.253.0000")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := identity.ParseContact("jane@")
		assert.Error(t, err)
	})

	t.Run("rejects invalid phone number", func(t *testing.T) {
		_, err := identity.ParseContact("+1 000")
		assert.Error(t, err)
	})

	t.Run("rejects unknown shapes", func(t *testing.T) {
		_, err := identity.ParseContact("jane")
		assert.ErrorIs(t, err, identity.ErrUnsupportedContactType)
	})
}

func TestContact_Channel(t *testing.T) {
	ch, err := identity.Contact{Type: identity.ContactEmail, Value: "a@example.com"}.Channel()
	require.NoError(t, err)
	assert.Equal(t, identity.ChannelEmail, ch)

	ch, err = identity.Contact{Type: identity.ContactPhoneNumber, Value: "+16502530000"}.Channel()
	require.NoError(t, err)
	assert.Equal(t, identity.ChannelSMS, ch)

	_, err = identity.Contact{}.Channel()
	assert.ErrorIs(t, err, identity.ErrUnsupportedContactType)
}

func TestContactType_Label(t *testing.T) {
	assert.Equal(t, "Email", identity.ContactEmail.Label())
	assert.Equal(t, "Phone number", identity.ContactPhoneNumber.Label())
	assert.Equal(t, "Email or phone number", identity.ContactUnknown.Label())
	assert.Equal(t, "PhoneNumber", identity.ContactPhoneNumber.String())
}
