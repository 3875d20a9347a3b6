// Package rbac implements the platform's permission model as a pure,
// I/O-free lookup layer.
//
// Permissions are organized by context (app, org, community). Each role
// within a context maps to a static set of actions, with ActionAll ("*")
// as a distinguished wildcard meaning "every action in this context".
// The table is configuration compiled into the binary; it never changes
// at runtime.
//
// The one piece of conditional logic is CheckCommunityPermission, which
// evaluates a strict precedence chain: app admins are allowed everywhere,
// org admins act as community admins for communities their own org owns,
// and everyone else falls back to their explicit community role unioned
// with their org-context permissions. Unknown roles and malformed input
// resolve to "denied" - the resolver never errors.
package rbac
