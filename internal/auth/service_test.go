package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/auth"
)

func newService(adminKey string) *auth.Service {
	return auth.NewService(auth.ServiceConfig{
		Signer:   newSigner(testKey, nil),
		AdminKey: adminKey,
	})
}

func TestService_DeviceToken(t *testing.T) {
	svc := newService("")

	tok, err := svc.IssueDeviceToken("dev_abc")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Greater(t, tok.ExpiresIn, int64(0))

	p, err := svc.ValidateAccessToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "dev_abc", p.Subject)
	assert.False(t, p.IsAdmin())
	assert.True(t, p.CanAccessDevice("dev_abc"))
	assert.False(t, p.CanAccessDevice("dev_other"))
}

func TestService_AdminToken(t *testing.T) {
	svc := newService("s3cret")

	_, err := svc.IssueAdminToken("wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidAdminKey)

	tok, err := svc.IssueAdminToken("s3cret")
	require.NoError(t, err)

	p, err := svc.ValidateAccessToken(tok.AccessToken)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
	assert.True(t, p.CanAccessDevice("dev_any"))
}

func TestService_AdminDisabled(t *testing.T) {
	_, err := newService("").IssueAdminToken("")
	assert.ErrorIs(t, err, auth.ErrAdminDisabled)
}

func TestService_RefreshToken(t *testing.T) {
	svc := newService("")

	tok, err := svc.IssueDeviceToken("dev_abc")
	require.NoError(t, err)

	fresh, err := svc.RefreshToken(tok.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, tok.AccessToken, fresh.AccessToken)

	p, err := svc.ValidateAccessToken(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "dev_abc", p.Subject)

	_, err = svc.RefreshToken("garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}
