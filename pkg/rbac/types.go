package rbac

// Context represents the scope a permission applies in
type Context string

const (
	ContextApp       Context = "app"
	ContextOrg       Context = "org"
	ContextCommunity Context = "community"
)

// Role represents a named role within a context
type Role string

// App-level roles. AppRoleAdmin is the platform super-user flag.
const (
	AppRoleAdmin Role = "admin"
	AppRoleUser  Role = "user"
)

// Org-level roles. A user belongs to exactly one organization.
const (
	OrgRoleAdmin  Role = "admin"
	OrgRoleMember Role = "member"
)

// Community-level roles.
const (
	CommunityRoleAdmin     Role = "admin"
	CommunityRoleModerator Role = "moderator"
	CommunityRoleMember    Role = "member"
)

// Action represents an operation a role may be granted
type Action string

// ActionAll is the wildcard sentinel: a role holding it has every
// action in its context.
const ActionAll Action = "*"

// Community-context actions.
const (
	ActionViewPosts       Action = "post:view"
	ActionCreatePost      Action = "post:create"
	ActionEditPost        Action = "post:edit"
	ActionDeletePost      Action = "post:delete"
	ActionPinPost         Action = "post:pin"
	ActionModerateContent Action = "content:moderate"
	ActionManageMembers   Action = "member:manage"
	ActionEditCommunity   Action = "community:edit"
	ActionDeleteCommunity Action = "community:delete"
	ActionAssignBadges    Action = "badge:assign"
)

// Org-context actions.
const (
	ActionViewOrg         Action = "org:view"
	ActionEditOrg         Action = "org:edit"
	ActionCreateCommunity Action = "community:create"
	ActionManageOrgUsers  Action = "org_user:manage"
)

// App-context actions.
const (
	ActionViewPlatform   Action = "platform:view"
	ActionManagePlatform Action = "platform:manage"
	ActionManageOrgs     Action = "org:manage"
)

// CommunityRole is one row of a user's per-community role assignments.
// OrgID is the organization owning that community (nil for orgless
// communities).
type CommunityRole struct {
	CommunityID int64  `json:"community_id"`
	Role        Role   `json:"role"`
	OrgID       *int64 `json:"org_id,omitempty"`
}

// RoleSet is the complete role assignment of one user, the read-only
// input to the resolver. A user holds at most one org role and at most
// one role per community.
type RoleSet struct {
	AppRole        Role            `json:"app_role"`
	OrgRole        Role            `json:"org_role"`
	OrgID          int64           `json:"org_id"`
	CommunityRoles []CommunityRole `json:"community_roles,omitempty"`
}

// CommunityRoleFor returns the user's explicit role for a community, or
// false if no assignment exists.
func (rs RoleSet) CommunityRoleFor(communityID int64) (Role, bool) {
	for _, cr := range rs.CommunityRoles {
		if cr.CommunityID == communityID {
			return cr.Role, true
		}
	}
	return "", false
}

// permissionTable is the static (context, role) -> actions mapping.
// Adding a permission means adding an action to the appropriate set;
// this table is the stable contract the rest of the platform depends on.
var permissionTable = map[Context]map[Role][]Action{
	ContextApp: {
		AppRoleAdmin: {ActionAll},
		AppRoleUser:  {ActionViewPlatform},
	},
	ContextOrg: {
		OrgRoleAdmin:  {ActionAll},
		OrgRoleMember: {ActionViewOrg},
	},
	ContextCommunity: {
		CommunityRoleAdmin: {ActionAll},
		CommunityRoleModerator: {
			ActionViewPosts,
			ActionCreatePost,
			ActionEditPost,
			ActionDeletePost,
			ActionPinPost,
			ActionModerateContent,
		},
		CommunityRoleMember: {
			ActionViewPosts,
			ActionCreatePost,
		},
	},
}

// contextActions is the full action universe per context, used to expand
// the wildcard. Built once at init from the table plus the declared
// action constants not granted to any non-wildcard role.
var contextActions = map[Context][]Action{
	ContextApp: {
		ActionViewPlatform,
		ActionManagePlatform,
		ActionManageOrgs,
	},
	ContextOrg: {
		ActionViewOrg,
		ActionEditOrg,
		ActionCreateCommunity,
		ActionManageOrgUsers,
	},
	ContextCommunity: {
		ActionViewPosts,
		ActionCreatePost,
		ActionEditPost,
		ActionDeletePost,
		ActionPinPost,
		ActionModerateContent,
		ActionManageMembers,
		ActionEditCommunity,
		ActionDeleteCommunity,
		ActionAssignBadges,
	},
}

// compiled is the table above as sets for O(1) membership checks.
// The wildcard stays a distinguished entry rather than being expanded,
// so HasPermission can report it directly.
var compiled = func() map[Context]map[Role]map[Action]struct{} {
	out := make(map[Context]map[Role]map[Action]struct{}, len(permissionTable))
	for ctx, roles := range permissionTable {
		out[ctx] = make(map[Role]map[Action]struct{}, len(roles))
		for role, actions := range roles {
			set := make(map[Action]struct{}, len(actions))
			for _, a := range actions {
				set[a] = struct{}{}
			}
			out[ctx][role] = set
		}
	}
	return out
}()

// ContextActions returns every action defined for a context. The result
// is a copy; callers may mutate it freely.
func ContextActions(ctx Context) []Action {
	actions, ok := contextActions[ctx]
	if !ok {
		return nil
	}
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}
