// Package auth guards the mutating HTTP endpoints of coa-mirror.
//
// # JWT Tokens
//
// Operators authenticate with HS256 JWTs signed with auth.jwt_secret from the
// configuration. The "sub" claim names the operator and is recorded in logs.
// Secrets shorter than MinSecretLength are rejected.
//
//	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
//	token, err := verifier.Generate("ops", 24*time.Hour)
//
// The coa-mirror token command mints tokens from the configured secret.
//
// # HTTP Middleware
//
// RequireBearer wraps a handler and rejects requests whose Authorization
// header does not carry a valid token:
//
//	mux.Handle("POST /api/sync", auth.RequireBearer(verifier)(syncHandler))
//
// With a nil verifier the middleware is a pass-through, which is how the
// server runs when no jwt_secret is configured.
//
// # Context
//
// The verified subject is available to handlers through SubjectFromContext.
package auth
