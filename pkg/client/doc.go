/*
Package client is a small HTTP client for the Session Controller's API,
used by the WebSocket Gateway to fetch the controller's JWKS document.
It also exposes CreateSession and GetSession.

It is a plain net/http + encoding/json wrapper, not a generated
client — the Controller's surface is small enough that hand-written
request/response structs are clearer than a codegen step.
*/
package client
