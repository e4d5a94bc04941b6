// Package jwt issues and validates the bearer tokens the httpapi surface
// authenticates with. It is a thin wrapper over github.com/golang-jwt/jwt/v5
// supporting HS256 for single-service deployments and Ed25519 for split
// issuer/verifier topologies.
package jwt
