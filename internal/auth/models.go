// Package auth issues and validates device and admin access tokens.
package auth

import "time"

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject string
	Role    Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccessDevice reports whether the principal may act on deviceID. Admins
// may act on any device, devices only on themselves.
func (p Principal) CanAccessDevice(deviceID string) bool {
	return p.IsAdmin() || (p.Role == RoleDevice && p.Subject == deviceID)
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
