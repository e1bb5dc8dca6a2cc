package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role is a coarse platform role carried in access tokens.
type Role string

const (
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

// JWTClaims represents the JWT payload for wallet sessions.
type JWTClaims struct {
	Account string `json:"account"`
	Role    Role   `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the session carries the admin role.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Session is the response for a successful wallet connect.
type Session struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Account     string `json:"account"`
	Role        Role   `json:"role"`
}

// NonceChallenge is the message a wallet must sign to connect.
type NonceChallenge struct {
	Account   string `json:"account"`
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expires_in"`
}
