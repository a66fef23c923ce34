package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/auth"
)

const (
	testIssuer   = "https://api.bbagrid.example"
	testAudience = "bbagrid-api"
	testKey      = "test-secret-key-for-testing-only"
)

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newSigner(key string, c *clock) *auth.Signer {
	cfg := auth.SignerConfig{SigningKey: key, Issuer: testIssuer, Audience: testAudience}
	if c != nil {
		cfg.Now = c.Now
	}
	return auth.NewSigner(cfg)
}

func TestSigner_IssueAndParse(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	s := newSigner(testKey, c)

	token, exp, err := s.Issue("dev_test123", auth.RoleDevice)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(auth.DefaultDeviceTTL), exp)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "dev_test123", claims.Subject)
	assert.Equal(t, auth.RoleDevice, claims.Role)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	_, adminExp, err := s.Issue("admin", auth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(auth.DefaultAdminTTL), adminExp)
}

func TestSigner_TokenIDsAreUnique(t *testing.T) {
	s := newSigner(testKey, nil)

	a, _, err := s.Issue("dev_1", auth.RoleDevice)
	require.NoError(t, err)
	b, _, err := s.Issue("dev_1", auth.RoleDevice)
	require.NoError(t, err)

	ca, err := s.Parse(a)
	require.NoError(t, err)
	cb, err := s.Parse(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestSigner_IssueRejects(t *testing.T) {
	s := newSigner(testKey, nil)

	_, _, err := s.Issue("dev_1", auth.Role("root"))
	assert.Error(t, err)

	_, _, err = s.Issue("", auth.RoleDevice)
	assert.Error(t, err)
}

func TestSigner_ParseRejects(t *testing.T) {
	s := newSigner(testKey, nil)
	valid, _, err := s.Issue("dev_1", auth.RoleDevice)
	require.NoError(t, err)

	forge := func(method jwt.SigningMethod, key interface{}, claims auth.Claims) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	now := time.Now()
	base := jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "dev_1",
		Audience:  jwt.ClaimStrings{testAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	noExp := base
	noExp.ExpiresAt = nil
	noSubject := base
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not.a.valid.jwt"},
		{"garbage segments", "xxx.yyy.zzz"},
		{"other key", mustIssue(t, newSigner("another-key", nil))},
		{"other issuer", mustIssue(t, auth.NewSigner(auth.SignerConfig{SigningKey: testKey, Issuer: "elsewhere", Audience: testAudience}))},
		{"other audience", mustIssue(t, auth.NewSigner(auth.SignerConfig{SigningKey: testKey, Issuer: testIssuer, Audience: "elsewhere"}))},
		{"alg none", forge(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, auth.Claims{RegisteredClaims: base, Role: auth.RoleAdmin})},
		{"hs512", forge(jwt.SigningMethodHS512, []byte(testKey), auth.Claims{RegisteredClaims: base, Role: auth.RoleAdmin})},
		{"no expiry", forge(jwt.SigningMethodHS256, []byte(testKey), auth.Claims{RegisteredClaims: noExp, Role: auth.RoleDevice})},
		{"unknown role", forge(jwt.SigningMethodHS256, []byte(testKey), auth.Claims{RegisteredClaims: base, Role: "root"})},
		{"no subject", forge(jwt.SigningMethodHS256, []byte(testKey), auth.Claims{RegisteredClaims: noSubject, Role: auth.RoleDevice})},
		{"tampered", valid[:len(valid)-2] + "xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Parse(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func mustIssue(t *testing.T, s *auth.Signer) string {
	t.Helper()
	tok, _, err := s.Issue("dev_1", auth.RoleDevice)
	require.NoError(t, err)
	return tok
}

func TestSigner_Expiry(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	s := auth.NewSigner(auth.SignerConfig{
		SigningKey: testKey,
		Issuer:     testIssuer,
		Audience:   testAudience,
		DeviceTTL:  time.Hour,
		Leeway:     30 * time.Second,
		Now:        c.Now,
	})

	token, _, err := s.Issue("dev_1", auth.RoleDevice)
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour + 20*time.Second)
	_, err = s.Parse(token)
	assert.NoError(t, err, "within leeway")

	c.t = c.t.Add(time.Minute)
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestSigner_IssuedInTheFuture(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	s := newSigner(testKey, c)

	token, _, err := s.Issue("dev_1", auth.RoleDevice)
	require.NoError(t, err)

	c.t = c.t.Add(-time.Hour)
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}
