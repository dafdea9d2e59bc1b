/*
Package health provides checkers used to probe a worker endpoint after
the gateway resolves it and before it proxies to it.

Checker is a small interface (HTTP or TCP) with a Check(ctx) Result.
Status applies hysteresis — several consecutive failures before a
worker is considered unreachable. The gateway's attach path runs a
single TCP probe without Status, so one failed probe fails that attach.
*/
package health
