// Package middleware provides HTTP middleware for authentication,
// rate limiting, and request identification.
//
// # Middleware Ordering
//
// Ordering matters. RequestIDMiddleware should run outermost so every
// log line carries the request ID, AuthMiddleware must run before any
// rate limiter that keys on the authenticated user, and permission
// checks in handlers assume AuthMiddleware already ran.
//
// Typical chain (outer to inner):
//
//	router.Use(middleware.RequestIDMiddleware)
//	router.Use(authMW.Handler)       // sets *auth.AuthContext
//	router.Use(rateLimitMW.Handler)  // keys on user ID when present
package middleware
