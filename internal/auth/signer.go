package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Tokens are HS256 JWTs. A device token's subject is the device ID and
// it only reaches that device's resources; it is long-lived because
// trackers run unattended, and may be refreshed while still valid. Admin
// tokens are short-lived and obtained with the admin key.

const (
	DefaultDeviceTTL = 30 * 24 * time.Hour
	DefaultAdminTTL  = time.Hour

	// adminSubject is the subject of every admin token.
	adminSubject = "admin"
)

var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
)

// Role is the kind of principal a token was issued to.
type Role string

const (
	RoleDevice Role = "device"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleDevice || r == RoleAdmin
}

// Claims are the claims of a bbagrid access token.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// SignerConfig configures a Signer.
type SignerConfig struct {
	SigningKey string
	Issuer     string
	Audience   string

	// DeviceTTL and AdminTTL default to DefaultDeviceTTL and DefaultAdminTTL.
	DeviceTTL time.Duration
	AdminTTL  time.Duration

	// Leeway tolerates clock skew between the API and trackers when
	// checking exp and nbf.
	Leeway time.Duration

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Signer issues and parses access tokens.
type Signer struct {
	key    []byte
	issuer string
	aud    string
	ttl    map[Role]time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewSigner(cfg SignerConfig) *Signer {
	if cfg.DeviceTTL <= 0 {
		cfg.DeviceTTL = DefaultDeviceTTL
	}
	if cfg.AdminTTL <= 0 {
		cfg.AdminTTL = DefaultAdminTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Signer{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		aud:    cfg.Audience,
		ttl:    map[Role]time.Duration{RoleDevice: cfg.DeviceTTL, RoleAdmin: cfg.AdminTTL},
		now:    cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(cfg.Now),
		),
	}
}

// Issue signs a token for subject in role and returns it with its expiry.
func (s *Signer) Issue(subject string, role Role) (string, time.Time, error) {
	ttl, ok := s.ttl[role]
	if !ok {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}
	if subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}

	now := s.now().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.aud},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies token and returns its claims. Expired tokens yield
// ErrAccessTokenExpired, every other failure ErrInvalidAccessToken.
func (s *Signer) Parse(token string) (*Claims, error) {
	var claims Claims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	case !claims.Role.Valid():
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidAccessToken, claims.Role)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}
	return &claims, nil
}
