// Package httpapi exposes the enrollment engine over HTTP.
//
// Three endpoints cover the setup flow: POST /2fa/enroll issues a secret,
// POST /2fa/enable confirms the first code, POST /2fa/cancel discards a
// pending enrollment. Requests authenticate with a bearer token validated by
// the jwt subpackage; the user ID always comes from the token, never from the
// request body. Error responses are a single JSON object {"detail": "..."}.
package httpapi
