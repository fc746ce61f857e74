package credential

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// StatusValid is the status label carried by tokens for accepted stamps.
const StatusValid = "valid"

// nonceSize is the number of random bytes in a token nonce.
const nonceSize = 16

// Claims is the payload of an issued token.
type Claims struct {
	StampID string `json:"stamp_id"`
	Status  string `json:"status"`
	// Nonce makes every token unique. Replay tracking is left to the consumer.
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

type signingKey struct {
	private *rsa.PrivateKey
	kid     string
}

// Issuer signs tokens with an RSA key using RS256.
//
// The key is read without locking; Rotate replaces it atomically so a
// concurrent Issue sees either the old or the new key, never a mix.
type Issuer struct {
	key atomic.Pointer[signingKey]
	now func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer holding key.
func NewIssuer(key *rsa.PrivateKey, opts ...Option) (*Issuer, error) {
	i := &Issuer{now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	if err := i.Rotate(key); err != nil {
		return nil, err
	}
	return i, nil
}

// Rotate atomically replaces the signing key.
func (i *Issuer) Rotate(key *rsa.PrivateKey) error {
	if key == nil {
		return errors.New("signing key is nil")
	}
	kid, err := KeyID(&key.PublicKey)
	if err != nil {
		return err
	}
	i.key.Store(&signingKey{private: key, kid: kid})
	return nil
}

// Issue returns a signed token for stampID with the given status that
// expires after ttl. Each call carries a fresh random nonce.
func (i *Issuer) Issue(stampID, status string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("invalid token ttl %s", ttl)
	}

	nonce, err := newNonce()
	if err != nil {
		return "", err
	}

	sk := i.key.Load()
	now := i.now()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		StampID: stampID,
		Status:  status,
		Nonce:   nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	token.Header["kid"] = sk.kid

	signed, err := token.SignedString(sk.private)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// PublicKey returns the public half of the current signing key.
func (i *Issuer) PublicKey() *rsa.PublicKey {
	return &i.key.Load().private.PublicKey
}

// KeyID returns the kid of the current signing key.
func (i *Issuer) KeyID() string {
	return i.key.Load().kid
}

// PublicKeyPEM returns the current public key in PEM form for distribution
// to parties that verify tokens.
func (i *Issuer) PublicKeyPEM() (string, error) {
	b, err := EncodePublicKeyPEM(i.PublicKey())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// JWKS returns the current public key as a JWK set.
func (i *Issuer) JWKS() (jwk.Set, error) {
	sk := i.key.Load()

	key, err := publicJWK(&sk.private.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, sk.kid); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to add key to set: %w", err)
	}
	return set, nil
}

// KeyID derives the RFC 7638 thumbprint of pub, base64url encoded.
func KeyID(pub *rsa.PublicKey) (string, error) {
	key, err := jwk.Import(pub)
	if err != nil {
		return "", fmt.Errorf("failed to create JWK from RSA public key: %w", err)
	}
	thumb, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumb), nil
}

func publicJWK(pub *rsa.PublicKey) (jwk.Key, error) {
	key, err := jwk.Import(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK from RSA public key: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}
	return key, nil
}

func newNonce() (string, error) {
	b := make([]byte, nonceSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
