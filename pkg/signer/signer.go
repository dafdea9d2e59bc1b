package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by Verify for any failure: bad signature,
// expired, wrong audience, or malformed claims. Callers never see which.
var ErrInvalidToken = errors.New("signer: invalid token")

const audience = "ws"

// Claims is the capability token's claim set: sub, sid, aud, jti, iat,
// exp.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Signer holds one RSA keypair for the lifetime of the process. It
// mints RS256 tokens and publishes the public half as a JWKS document.
// Key rotation is out of scope; kid is stable for the process lifetime.
type Signer struct {
	privateKey *rsa.PrivateKey
	kid        string
}

// New builds a Signer from an RSA private key already in memory.
func New(key *rsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: key,
		kid:        fingerprint(&key.PublicKey),
	}
}

// LoadOrGenerate reads an RSA private key from PEM. If pemData is empty,
// a fresh 2048-bit key is generated — this is the startup path when
// SIGNING_KEY_PEM is not configured.
func LoadOrGenerate(pemData string) (*Signer, error) {
	if pemData == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("signer: generate key: %w", err)
		}
		return New(key), nil
	}
	key, err := decodePrivateKey([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("signer: decode key: %w", err)
	}
	return New(key), nil
}

// KID returns the stable key identifier published in tokens and JWKS.
func (s *Signer) KID() string { return s.kid }

// Issue mints a signed token bound to sessionID and ownerID, valid for
// ttl, with a freshly generated jti. It returns the compact token, the
// jti (for the caller to persist in the Durable Store), and the
// expiry time.
func (s *Signer) Issue(sessionID, ownerID string, ttl time.Duration) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signer: generate jti: %w", err)
	}

	now := time.Now().UTC()
	expiresAt = now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   ownerID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid

	token, err = t.SignedString(s.privateKey)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signer: sign: %w", err)
	}
	return token, jti, expiresAt, nil
}

// Verify parses and validates a token: signature, expiry, and audience.
// It does not consult the Durable Store — jti consumption is the
// caller's responsibility (pkg/storage.Store.ConsumeToken).
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return &s.privateKey.PublicKey, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !hasAudience(claims.Audience, audience) {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// fingerprint derives a stable kid from the public key's modulus, the
// way a JWKS document would key multiple published keys.
func fingerprint(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

func decodePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := generic.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PEM block is not an RSA private key")
	}
	return key, nil
}

// EncodePrivateKeyPEM renders the signer's private key as PKCS1 PEM, the
// same encoding shape used for TLS private keys, adapted here for a
// bare signing key with no certificate.
func (s *Signer) EncodePrivateKeyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(s.privateKey),
	})
}

// SavePrivateKeyPEM writes the signer's private key to path with 0600
// permissions, mirroring certs.go's SaveCertToFile convention.
func (s *Signer) SavePrivateKeyPEM(path string) error {
	return os.WriteFile(path, s.EncodePrivateKeyPEM(), 0600)
}
