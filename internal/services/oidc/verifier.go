// Package oidc verifies identity-provider access tokens against the provider's published keys.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/benvon/todo-digest/internal/models"
)

// ErrMissingSubject is returned for tokens that do not name a user
var ErrMissingSubject = errors.New("token missing subject claim")

// Verifier verifies JWT tokens issued by one identity provider
type Verifier struct {
	jwks    *JWKSManager
	issuer  string
	jwksURL string
}

// NewVerifier creates a verifier for tokens from issuer, signed by keys published at jwksURL
func NewVerifier(jwks *JWKSManager, issuer, jwksURL string) *Verifier {
	return &Verifier{jwks: jwks, issuer: issuer, jwksURL: jwksURL}
}

// Verify checks the token's signature, expiry and issuer, then extracts its claims
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	keys, err := v.jwks.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	if token.Subject() == "" {
		return nil, ErrMissingSubject
	}

	claims := &models.JWTClaims{
		Sub:   token.Subject(),
		Iss:   token.Issuer(),
		Email: stringClaim(token, "email"),
		Name:  stringClaim(token, "name"),
	}
	if exp := token.Expiration(); !exp.IsZero() {
		claims.Exp = exp.Unix()
	}
	return claims, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
