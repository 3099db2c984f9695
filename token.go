package samlsp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trustgrid/samlsp/internal/core/domain"
)

// SessionState is the serialized form of one browser session: a pending
// login, an established session, or both momentarily during handoff.
type SessionState struct {
	Login *domain.LoginDetails `json:"login,omitempty"`
	Auth  *domain.AuthDetails  `json:"auth,omitempty"`
}

// SessionTokenCodec turns session state into opaque browser tokens and
// back. Tokens are signed (RS256) then encrypted (AES-GCM); the secret
// length selects AES-128, AES-192, or AES-256.
//
// Decode collapses every failure mode into ErrInvalidToken. Whether a
// token failed decryption, signature checking, or deserialization is
// never distinguishable to a caller or an attacker.
type SessionTokenCodec struct {
	signKey *rsa.PrivateKey
	secret  []byte
	issuer  string
	now     func() time.Time
}

// NewSessionTokenCodec creates a codec. The secret must be 16, 24, or
// 32 bytes.
func NewSessionTokenCodec(signKey *rsa.PrivateKey, secret []byte, issuer string) (*SessionTokenCodec, error) {
	switch len(secret) {
	case 16, 24, 32:
	default:
		return nil, domain.ConfigError("token secret must be 16, 24, or 32 bytes", fmt.Errorf("got %d bytes", len(secret)))
	}
	return &SessionTokenCodec{
		signKey: signKey,
		secret:  secret,
		issuer:  issuer,
		now:     time.Now,
	}, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	State SessionState `json:"state"`
}

// Encode serializes, signs, and encrypts state. The expiry bounds the
// token itself, independent of principal expiry inside it.
func (c *SessionTokenCodec) Encode(state SessionState, expiry time.Time) (string, error) {
	now := c.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		State: state,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	block, err := aes.NewCipher(c.secret)
	if err != nil {
		return "", fmt.Errorf("init token cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init token cipher: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate token nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(signed), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode decrypts and verifies a token. Any failure returns
// ErrInvalidToken.
func (c *SessionTokenCodec) Decode(token string) (SessionState, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return SessionState{}, domain.ErrInvalidToken
	}

	block, err := aes.NewCipher(c.secret)
	if err != nil {
		return SessionState{}, domain.ErrInvalidToken
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return SessionState{}, domain.ErrInvalidToken
	}
	if len(sealed) < gcm.NonceSize() {
		return SessionState{}, domain.ErrInvalidToken
	}

	signed, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return SessionState{}, domain.ErrInvalidToken
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(string(signed), &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return &c.signKey.PublicKey, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		return SessionState{}, domain.ErrInvalidToken
	}

	return claims.State, nil
}
