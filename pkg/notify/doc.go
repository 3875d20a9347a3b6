// Package notify implements community notification fan-out: resolving
// the recipient set for a new post, persisting in-app notifications, and
// delivering web push messages best-effort. Delivery never blocks or
// fails the action that triggered it; failures are logged and the
// process moves on.
package notify
