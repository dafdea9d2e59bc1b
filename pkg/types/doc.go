/*
Package types defines the core data structures shared across cliscale.

It holds the Session and TokenRecord records described by the Durable
Store (sessions and jti), the WorkerSpec handed to the Orchestrator
Driver, and the SessionStatus enum that describes the session
lifecycle. These types are the only thing the Session Controller and the
WebSocket Gateway agree on at compile time — every other coupling between
the two planes goes through the Store or the JWKS endpoint, never a Go
call across process boundaries.

All types here are JSON-serializable, since the storage layer persists
them as JSON documents inside BoltDB buckets.
*/
package types
