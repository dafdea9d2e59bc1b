/*
Package controller implements the Session Controller: admission and rate
limiting on POST /api/sessions, durable session/token bookkeeping, worker
submission via the Orchestrator Driver, and the JWKS document the Gateway
verifies capability tokens against.

Service holds the collaborators (Store, Signer, Orchestrator Driver, rate
limiter, event broker, endpoint resolver) as per-process immutable handles
built once at startup. Handlers in pkg/httpapi are thin adapters over this
package's methods.
*/
package controller
