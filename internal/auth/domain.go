// Package auth authenticates users and guards the API with bearer tokens.
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials indicates login failure.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User represents an account able to sign in.
type User struct {
	ID           int64
	CompanyID    int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID    int64  `json:"userId"`
	CompanyID int64  `json:"companyId"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
