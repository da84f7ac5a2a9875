package identity_test

import (
	"context"
	"testing"
	"testing/fstest"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, name string, model identity.TemplateModel) (string, error) {
	args := m.Called(ctx, name, model)
	return args.String(0), args.Error(1)
}

func TestTemplateSet_Render(t *testing.T) {
	ctx := context.Background()
	set := identity.NewTemplateSet()
	model := identity.TemplateModel{
		Account: &identity.Account{ID: uuid.New(), FirstName: "Jane"},
		Contact: identity.Contact{Type: identity.ContactEmail, Value: "jane@example.com"},
		Code:    "123456",
	}

	tests := []struct {
		name     string
		contains []string
	}{
		{"email/confirm_account", []string{"Hi Jane,", "123456", "jane@example.com"}},
		{"email/change_account", []string{"Hi Jane,", "123456"}},
		{"email/reset_password", []string{"123456", "reset your password"}},
		{"text/confirm_account", []string{"123456 is your confirmation code."}},
		{"text/change_account", []string{"123456"}},
		{"text/reset_password", []string{"123456 is your password reset code."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := set.Render(ctx, tt.name, model)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}

	t.Run("unknown template", func(t *testing.T) {
		_, err := set.Render(ctx, "email/missing", model)
		assert.Error(t, err)
	})
}

func TestTemplateSetFS(t *testing.T) {
	set := identity.NewTemplateSetFS(fstest.MapFS{
		"text/confirm_account.txt": {Data: []byte("Code for {{ username }}: {{ code }}")},
	})

	out, err := set.Render(context.Background(), "text/confirm_account", identity.TemplateModel{
		Account: &identity.Account{Username: "jane-tester"},
		Code:    "654321",
	})
	require.NoError(t, err)
	assert.Equal(t, "Code for jane-tester: 654321", out)
}

func TestService_CustomRenderer(t *testing.T) {
	ctx := context.Background()
	renderer := &MockRenderer{}
	renderer.On("Render", mock.Anything, "email/confirm_account", mock.MatchedBy(func(m identity.TemplateModel) bool {
		return m.Contact.Value == "jane@example.com" && len(m.Code) == 6
	})).Return("rendered 000000", nil).Once()

	h := newHarnessWith(t, identity.WithTemplateRenderer(renderer))
	h.createAccount(t, "Jane", "jane@example.com")

	err := h.service.SendConfirmAccountCode(ctx, &identity.SendConfirmAccountCodeForm{Username: "jane@example.com"})
	require.NoError(t, err)

	renderer.AssertExpectations(t)
	assert.Equal(t, "rendered 000000", h.sender.last(t).msg.Body)
	assert.Contains(t, h.sink.types(), identity.ActivityEventVerificationCodeOut)
}

func TestService_SendFailureIsNotAnError(t *testing.T) {
	ctx := context.Background()
	sender := identity.MessageSenderFunc(func(ctx context.Context, channel identity.Channel, msg identity.Message) error {
		return assert.AnError
	})

	h := newHarnessWith(t, identity.WithMessageSender(sender))
	h.createAccount(t, "Jane", "jane@example.com")

	err := h.service.SendConfirmAccountCode(ctx, &identity.SendConfirmAccountCodeForm{Username: "jane@example.com"})
	assert.NoError(t, err)
}
