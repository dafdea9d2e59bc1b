/*
Package signer issues and verifies the RS256 capability tokens that
authorize a single WebSocket attach.

A Signer owns one RSA keypair, loaded from PEM at startup or, when no
PEM is configured, freshly generated at each startup. Tokens carry a jti (the one-time token ID consumed by the
Durable Store), the session ID they authorize, and standard exp/iat
claims. The public half of the key is published as a JWKS document so
the Gateway — which never sees the private key — can verify tokens
issued by the Controller.
*/
package signer
