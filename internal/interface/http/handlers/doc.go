// Package handlers holds the probes behind /health and /ready.
//
// A CompositeHealthChecker runs every registered check concurrently, each
// under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
// A failed check marks the service unhealthy and not ready. Optional
// dependencies (Redis) register with AddOptionalCheck: their failure is
// reported but leaves the service ready, since every request path can
// proceed without them.
package handlers
