package rbac

import "sort"

// HasPermission reports whether a role is granted an action in a
// context. Unknown contexts and roles resolve to false; absence of
// permission is the only failure mode.
func HasPermission(ctx Context, role Role, action Action) bool {
	if action == "" || action == ActionAll {
		// ActionAll is a table sentinel, not a checkable action.
		return false
	}

	roles, ok := compiled[ctx]
	if !ok {
		return false
	}
	actions, ok := roles[role]
	if !ok {
		return false
	}

	if _, ok := actions[ActionAll]; ok {
		return true
	}
	_, ok = actions[action]
	return ok
}

// AllPermissions returns the union of permissions across roles in a
// context, sorted for determinism. A wildcard role yields the full
// action set for that context. Adding roles never shrinks the result.
func AllPermissions(ctx Context, roles ...Role) []Action {
	table, ok := compiled[ctx]
	if !ok {
		return nil
	}

	union := make(map[Action]struct{})
	for _, role := range roles {
		actions, ok := table[role]
		if !ok {
			continue
		}
		if _, wildcard := actions[ActionAll]; wildcard {
			for _, a := range contextActions[ctx] {
				union[a] = struct{}{}
			}
			continue
		}
		for a := range actions {
			union[a] = struct{}{}
		}
	}

	out := make([]Action, 0, len(union))
	for a := range union {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckCommunityPermission decides whether a role set permits an action
// in a community, evaluating a strict precedence chain:
//
//  1. App admins are allowed unconditionally.
//  2. Org admins are treated as the community's admin, but only when
//     the community belongs to their own org (or its owning org is
//     unspecified). The guard prevents privilege leakage into another
//     organization's community when both orgs share a user.
//  3. Otherwise permission is the union of the user's explicit
//     community role and their org-context permissions.
//  4. No explicit role and no override: denied.
//
// Malformed input (zero community ID, empty action) is denied.
func CheckCommunityPermission(rs RoleSet, communityID int64, action Action, communityOrgID *int64) bool {
	if communityID <= 0 || action == "" || action == ActionAll {
		return false
	}

	if rs.AppRole == AppRoleAdmin {
		return true
	}

	if rs.OrgRole == OrgRoleAdmin && (communityOrgID == nil || *communityOrgID == rs.OrgID) {
		return HasPermission(ContextCommunity, CommunityRoleAdmin, action)
	}

	role, ok := rs.CommunityRoleFor(communityID)
	if !ok {
		// No explicit role and no override.
		return false
	}

	// Effective permission is the union of the explicit community role
	// and the user's org-context permissions.
	if HasPermission(ContextCommunity, role, action) {
		return true
	}
	return HasPermission(ContextOrg, rs.OrgRole, action)
}
