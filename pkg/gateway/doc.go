/*
Package gateway implements the WebSocket Gateway: it terminates browser
WebSocket connections, verifies capability tokens against the
Controller's published key set, atomically consumes the one-shot token
id, reads the resolved worker endpoint from the shared Durable Store,
and relays bytes between the caller and the worker's terminal server.

The Gateway never talks to the Controller on the hot path beyond
fetching (and caching) its JWKS document — the Store is the only
coupling between the two planes.
*/
package gateway
