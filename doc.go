// Package goEnroll provides a two-factor enrollment engine: TOTP secret
// provisioning, Redis-backed pending enrollment records, single-use backup
// codes, and code confirmation with attempt caps and replay protection.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goEnroll is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (EnrollmentBundle, MetricsSnapshot, etc.). The client-side setup flow lives in the
// flow subpackage and reaches the engine only through its backend contract;
// transport adapters live in httpapi and client.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports goEnroll (no import cycles).
//
// # Performance contract
//
// ConfirmEnrollment and VerifyCode are the hot paths. Each is allowed one
// limiter round-trip plus one record round-trip to Redis per call; TOTP
// verification itself is allocation-light and never touches the network.
package goEnroll
