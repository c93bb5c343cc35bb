// Package token mints and verifies the opaque identity credential carried by
// turn requests. The front end receives one credential per unlocked report
// and presents it on every chat call; it resolves to an account id here,
// before any balance operation.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/heartlink/heartlink/internal/domain"
)

// Issuer mints and resolves HS256 result credentials.
// It implements domain.Identity.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// New creates an Issuer. ttl bounds how long a minted credential stays valid.
func New(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Mint creates a credential for the given account.
func (i *Issuer) Mint(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("mint credential: %w", err)
	}
	return signed, nil
}

// Resolve validates the credential and returns the account id.
func (i *Issuer) Resolve(credential string) (string, error) {
	parsed, err := jwt.ParseWithClaims(credential, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return i.secret, nil
		})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrCredentialExpired
		}
		return "", domain.ErrCredentialInvalid
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.ErrCredentialInvalid
	}
	return claims.Subject, nil
}
