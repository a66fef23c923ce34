package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// Predefined service errors.
var (
	ErrInvalidAdminKey = errors.New("invalid admin key")
	ErrAdminDisabled   = errors.New("admin access is not configured")
)

// Service provides authentication operations.
type Service struct {
	signer   *Signer
	adminKey []byte
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	Signer *Signer

	// AdminKey is exchanged for admin tokens. Empty disables admin tokens.
	AdminKey string
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		signer:   cfg.Signer,
		adminKey: []byte(cfg.AdminKey),
	}
}

// IssueDeviceToken returns a token scoped to deviceID.
func (s *Service) IssueDeviceToken(deviceID string) (*Token, error) {
	return s.issue(deviceID, RoleDevice)
}

// IssueAdminToken exchanges the admin key for an admin token.
func (s *Service) IssueAdminToken(key string) (*Token, error) {
	if len(s.adminKey) == 0 {
		return nil, ErrAdminDisabled
	}
	if subtle.ConstantTimeCompare([]byte(key), s.adminKey) != 1 {
		return nil, ErrInvalidAdminKey
	}
	return s.issue(adminSubject, RoleAdmin)
}

// RefreshToken validates tokenString and issues a fresh token for the same
// principal.
func (s *Service) RefreshToken(tokenString string) (*Token, error) {
	p, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return s.issue(p.Subject, p.Role)
}

// ValidateAccessToken validates an access token and returns its principal.
func (s *Service) ValidateAccessToken(tokenString string) (*Principal, error) {
	claims, err := s.signer.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	return &Principal{Subject: claims.Subject, Role: claims.Role}, nil
}

func (s *Service) issue(subject string, role Role) (*Token, error) {
	accessToken, expiresAt, err := s.signer.Issue(subject, role)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	return &Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiresAt.Sub(s.signer.now()).Seconds()),
		ExpiresAt:   expiresAt,
	}, nil
}
