package auth

import (
	"time"

	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

// User represents a platform account. AppRole is the application-wide
// role, OrgRole the role within the user's organization. A user with
// both set to admin is a super admin.
type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	AppRole   rbac.Role  `json:"app_role"`
	OrgRole   rbac.Role  `json:"org_role"`
	OrgID     *int64     `json:"org_id,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// IsSuperAdmin reports whether the user holds both the app admin and org
// admin roles. Both gates must pass.
func (u *User) IsSuperAdmin() bool {
	return u.AppRole == rbac.AppRoleAdmin && u.OrgRole == rbac.OrgRoleAdmin
}

// RoleSet builds the permission-resolver input for this user with the
// given community memberships.
func (u *User) RoleSet(communityRoles []rbac.CommunityRole) rbac.RoleSet {
	rs := rbac.RoleSet{
		AppRole:        u.AppRole,
		OrgRole:        u.OrgRole,
		CommunityRoles: communityRoles,
	}
	if u.OrgID != nil {
		rs.OrgID = *u.OrgID
	}
	return rs
}

// APIToken represents a stored API token. The plaintext token is never
// persisted.
type APIToken struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	TokenHash  string     `json:"-"`
	Name       string     `json:"name"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Expired reports whether the token is past its expiry.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// AuthContext holds the authenticated user for a request.
type AuthContext struct {
	User  *User
	Token *APIToken
}
