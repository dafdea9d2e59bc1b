package gateway

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arakoodev/cliscale/pkg/apierror"
	"github.com/arakoodev/cliscale/pkg/signer"
)

// wsAudience is the audience claim every capability token must carry.
// Kept as a Gateway-local constant since signer.Signer does not export
// its own audience string.
const wsAudience = "ws"

// verifyToken parses tokenString, resolves the verification key from the
// fetched JWKS document by kid, and checks signature, expiry, audience,
// and that the sid claim matches wantSessionID. It never consults the
// Durable Store — jti consumption is the caller's job.
func verifyToken(ctx context.Context, jwks *JWKSClient, tokenString, wantSessionID string) (*signer.Claims, error) {
	doc, err := jwks.Get(ctx)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeTransient, "fetch verification key", err)
	}

	claims := &signer.Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := findKey(doc, kid)
		if err != nil {
			return nil, err
		}
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("gateway: unexpected signing method %v", t.Header["alg"])
		}
		return jwkToRSAPublicKey(key)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apierror.Wrap(apierror.CodeUnauthorized, "expired", err)
		}
		return nil, apierror.Wrap(apierror.CodeUnauthorized, "invalid token", err)
	}

	if !hasWSAudience(claims.Audience) {
		return nil, apierror.New(apierror.CodeUnauthorized, "wrong audience")
	}
	if claims.SessionID != wantSessionID {
		return nil, apierror.New(apierror.CodeUnauthorized, "session id mismatch")
	}
	if claims.ID == "" {
		return nil, apierror.New(apierror.CodeUnauthorized, "missing jti")
	}
	return claims, nil
}

func findKey(doc *signer.JWKSDocument, kid string) (*signer.JWK, error) {
	for i := range doc.Keys {
		if doc.Keys[i].Kid == kid {
			return &doc.Keys[i], nil
		}
	}
	return nil, fmt.Errorf("gateway: no jwks key for kid %q", kid)
}

// jwkToRSAPublicKey reconstructs an rsa.PublicKey from a JWK's base64url
// modulus and exponent, the verification-side mirror of
// signer.Signer.JWKS's encoding.
func jwkToRSAPublicKey(jwk *signer.JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("gateway: decode jwk n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("gateway: decode jwk e: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func hasWSAudience(aud jwt.ClaimStrings) bool {
	for _, a := range aud {
		if a == wsAudience {
			return true
		}
	}
	return false
}
