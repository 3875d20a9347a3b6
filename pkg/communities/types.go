package communities

import (
	"time"

	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

// Organization represents a tenant organization.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Community represents a community, optionally owned by an organization.
type Community struct {
	ID        int64     `json:"id"`
	OrgID     *int64    `json:"org_id,omitempty"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership types and statuses. Only active members receive
// notifications; followers do not.
const (
	MembershipTypeMember   = "member"
	MembershipTypeFollower = "follower"

	MembershipStatusActive  = "active"
	MembershipStatusPending = "pending"
	MembershipStatusBanned  = "banned"
)

// Membership ties a user to a community with a role.
type Membership struct {
	CommunityID    int64     `json:"community_id"`
	UserID         int64     `json:"user_id"`
	Role           rbac.Role `json:"role"`
	MembershipType string    `json:"membership_type"`
	Status         string    `json:"status"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Post is a post in a community. Creating one triggers notification
// dispatch.
type Post struct {
	ID          int64      `json:"id"`
	CommunityID int64      `json:"community_id"`
	AuthorID    int64      `json:"author_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}
