// Package client is the HTTP implementation of the flow.Backend contract.
//
// A Client talks to the httpapi endpoints with a bearer token and keeps the
// server's enrollment ID internally, so the flow package never handles server
// identifiers. Responses with a {"detail": "..."} body surface that detail in
// the wrapped error message.
package client
