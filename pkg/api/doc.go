// Package api implements the HTTP API: communities, membership, posts,
// in-app notifications, notification preferences, push subscriptions,
// and API token management.
//
// # Request flow
//
// Every request passes through request ID assignment, panic recovery,
// structured request logging, metrics, and optional bearer-token
// authentication before reaching a handler. Handlers that act on behalf
// of a user reject anonymous requests with 401.
//
// Community-scoped operations are authorized through PermissionGuard,
// which resolves the caller's role set (cached) and evaluates the
// community permission chain: app admins always pass, org admins pass
// for their own org's communities, everyone else needs an explicit
// community role.
//
// # Notification dispatch
//
// Creating a post returns 201 immediately; notification fan-out runs in
// a detached background goroutine and can neither block nor fail the
// create.
package api
