/*
Package metrics defines the Prometheus metrics and health/readiness
state exposed by both the controller and gateway.

All metrics are registered at package init via prometheus.MustRegister
and served by Handler() at /metrics. Health and readiness state is a
small in-memory registry (RegisterComponent/GetHealth/GetReadiness);
SetCriticalComponents lets each binary declare which components gate a
"ready" verdict, since the controller and gateway depend on different
things.
*/
package metrics
