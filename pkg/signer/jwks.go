package signer

import "encoding/base64"

// JWK is one key entry in a JWKS document (RFC 7517), restricted to the
// fields an RSA public verification key needs.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSDocument is the document served at /.well-known/jwks.json.
type JWKSDocument struct {
	Keys []JWK `json:"keys"`
}

// JWKS builds the published key set document for the current signing
// key. There is exactly one key; key rotation is out of scope.
func (s *Signer) JWKS() JWKSDocument {
	pub := s.privateKey.PublicKey
	return JWKSDocument{
		Keys: []JWK{
			{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: s.kid,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(bigEndianBytes(pub.E)),
			},
		},
	}
}

// bigEndianBytes encodes a small positive int (the RSA public exponent,
// conventionally 65537) as minimal big-endian bytes for JWKS's "e" field.
func bigEndianBytes(v int) []byte {
	if v == 0 {
		return []byte{0}
	}
	var b []byte
	for v > 0 {
		b = append([]byte{byte(v & 0xff)}, b...)
		v >>= 8
	}
	return b
}
