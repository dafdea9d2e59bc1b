/*
Package storage provides the BoltDB-backed durable state for cliscale.

The Durable Store holds two kinds of record: Session, keyed by session
ID, and TokenRecord, keyed by the jti of the capability token that
admits a single WebSocket attach. Both buckets are pruned on the same
background cycle once their ExpiresAt has passed.

# Architecture

BoltStore wraps a single BoltDB (bbolt) file with three buckets:

	sessions  (Session ID   -> json.Marshal(Session))
	jti       (Token ID     -> json.Marshal(TokenRecord))
	meta      (fixed keys   -> signing key fingerprint, etc.)

BoltDB gives single-writer ACID transactions with no external service to
run; the whole durability story fits in one file per process, which
matches the Session Controller's deployment model of a stateless
replica set fronting one file (or one file per replica, depending on
how session affinity is handled upstream).

# Consumption is atomic

ConsumeToken performs its get and delete inside one bolt.Update
transaction. This is the mechanism that makes a capability token
single-use: once consumed, the jti is gone from the bucket, and a
second attach attempt with the same token sees ErrNotFound regardless
of how close together the two attempts race.

# Pruning

PruneExpired walks both buckets inside one write transaction and
deletes every record whose ExpiresAt has passed, returning the counts
removed for metrics and logging. It is driven by a ticker elsewhere in
the module, not by this package.

# See Also

  - pkg/types for the Session and TokenRecord definitions
  - pkg/reconciler for the pruner loop that calls PruneExpired
  - pkg/gateway for the ConsumeToken call on attach
*/
package storage
