package credential

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks tokens produced by an Issuer using only its public key.
type Verifier struct {
	key *rsa.PublicKey
	now func() time.Time
}

// NewVerifier returns a Verifier for tokens signed by the private half of key.
func NewVerifier(key *rsa.PublicKey) *Verifier {
	return &Verifier{key: key, now: time.Now}
}

// Verify checks the signature (RS256 only) and expiry of token and returns its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
