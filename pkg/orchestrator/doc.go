/*
Package orchestrator is the Orchestrator Driver: it submits one worker
container per session to containerd, resolves the worker's terminal
endpoint once networking comes up, and best-effort tears the container
down when a session ends or its active deadline passes.

Each session gets its own containerd namespace ("session-<id>") —
isolation here is per-job, not per-cluster.
*/
package orchestrator
