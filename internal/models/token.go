package models

import "github.com/golang-jwt/jwt/v5"

// AdminClaims are the claims carried by bearer tokens on the admin API
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenStats summarizes the revocation store state
type TokenStats struct {
	Available         bool `json:"available"`
	RevokedTokens     int  `json:"revoked_tokens"`
	RevokedPrincipals int  `json:"revoked_principals"`
}
