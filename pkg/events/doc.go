/*
Package events is an in-memory pub/sub broker for session lifecycle
notifications: session.created, session.ready, token.issued,
token.consumed, token.replayed, session.expired, proxy.attached,
proxy.closed.

Publish is non-blocking and best-effort — a full broker queue or
subscriber buffer drops the event rather than stalling the publisher. Nothing depends on
delivery for correctness; subscribers exist for metrics and log
shaping, not business logic.
*/
package events
