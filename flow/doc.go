// Package flow implements the client-side two-factor setup state machine.
//
// A Flow walks a user through three screens: setup (secret and backup codes
// shown), verify (first authenticator code entered), and complete. The flow
// owns the screen state and the single in-flight request rule; all server
// interaction goes through the Backend contract, so the same machine drives
// the bundled HTTP client or any custom transport.
//
// # Architecture boundaries
//
// flow knows nothing about HTTP, Redis, or the enrollment engine. It depends
// only on the Backend interface and classifies backend failures into the
// three sentinels ErrTransientBackend, ErrInvalidCode, and ErrValidation.
//
// # What this package must NOT do
//
//   - Persist anything. A Flow is a single session in memory; abandoning it
//     loses nothing the server cannot expire on its own.
//   - Retry on its own. Transient failures are reported to the caller, who
//     decides whether to resubmit.
package flow
