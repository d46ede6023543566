// Package jwt authenticates API callers with HS256 bearer tokens built on
// github.com/golang-jwt/jwt/v5.
//
// The token subject is the user id that scopes checkout idempotency and
// order ownership. Middleware verifies the token and stores its Claims in
// the request context; handlers read the caller with UserID.
package jwt
