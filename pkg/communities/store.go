package communities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DBProvider supplies write and read connections. Satisfied by
// postgres.ConnectionManager.
type DBProvider interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

// Store is the Postgres-backed community store. Writes go to the
// primary; membership fan-out reads use a replica.
type Store struct {
	cm DBProvider
}

// NewStore creates a community store.
func NewStore(cm DBProvider) *Store {
	return &Store{cm: cm}
}

// CreateCommunity inserts a community and fills in its generated fields.
func (s *Store) CreateCommunity(ctx context.Context, c *Community) error {
	err := s.cm.Primary().QueryRowContext(ctx, `
		INSERT INTO communities (org_id, name, slug, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		c.OrgID, c.Name, c.Slug, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create community: %w", err)
	}
	return nil
}

// GetCommunity fetches a community by ID.
func (s *Store) GetCommunity(ctx context.Context, id int64) (*Community, error) {
	var c Community
	err := s.cm.Replica().QueryRowContext(ctx, `
		SELECT id, org_id, name, slug, created_by, created_at
		FROM communities WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.OrgID, &c.Name, &c.Slug, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community: %w", err)
	}
	return &c, nil
}

// ListCommunities lists communities, optionally scoped to an org.
func (s *Store) ListCommunities(ctx context.Context, orgID *int64) ([]*Community, error) {
	query := `
		SELECT id, org_id, name, slug, created_by, created_at
		FROM communities`
	args := []interface{}{}
	if orgID != nil {
		query += ` WHERE org_id = $1`
		args = append(args, *orgID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.cm.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	defer rows.Close()

	var out []*Community
	for rows.Next() {
		var c Community
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.Slug, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan community: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetOrganization fetches an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	var o Organization
	err := s.cm.Replica().QueryRowContext(ctx, `
		SELECT id, name, slug, is_active, created_at
		FROM organizations WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.Name, &o.Slug, &o.IsActive, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &o, nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	var (
		u       auth.User
		appRole string
		orgRole string
	)
	err := s.cm.Replica().QueryRowContext(ctx, `
		SELECT id, email, name, app_role, org_role, org_id, is_active, created_at
		FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &appRole, &orgRole, &u.OrgID, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.AppRole = rbac.Role(appRole)
	u.OrgRole = rbac.Role(orgRole)
	return &u, nil
}

// AddMember upserts a membership row.
func (s *Store) AddMember(ctx context.Context, m *Membership) error {
	_, err := s.cm.Primary().ExecContext(ctx, `
		INSERT INTO community_members (community_id, user_id, role, membership_type, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (community_id, user_id)
		DO UPDATE SET role = $3, membership_type = $4, status = $5`,
		m.CommunityID, m.UserID, string(m.Role), m.MembershipType, m.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row.
func (s *Store) RemoveMember(ctx context.Context, communityID, userID int64) error {
	res, err := s.cm.Primary().ExecContext(ctx,
		`DELETE FROM community_members WHERE community_id = $1 AND user_id = $2`,
		communityID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read remove result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMembership fetches one membership row.
func (s *Store) GetMembership(ctx context.Context, communityID, userID int64) (*Membership, error) {
	var (
		m    Membership
		role string
	)
	err := s.cm.Replica().QueryRowContext(ctx, `
		SELECT community_id, user_id, role, membership_type, status, joined_at
		FROM community_members
		WHERE community_id = $1 AND user_id = $2`,
		communityID, userID,
	).Scan(&m.CommunityID, &m.UserID, &role, &m.MembershipType, &m.Status, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = rbac.Role(role)
	return &m, nil
}

// ListUserCommunityRoles returns the permission-resolver inputs for every
// active membership the user holds, with each community's owning org.
func (s *Store) ListUserCommunityRoles(ctx context.Context, userID int64) ([]rbac.CommunityRole, error) {
	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT cm.community_id, cm.role, c.org_id
		FROM community_members cm
		JOIN communities c ON c.id = cm.community_id
		WHERE cm.user_id = $1 AND cm.status = $2`,
		userID, MembershipStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list community roles: %w", err)
	}
	defer rows.Close()

	var out []rbac.CommunityRole
	for rows.Next() {
		var (
			cr   rbac.CommunityRole
			role string
		)
		if err := rows.Scan(&cr.CommunityID, &role, &cr.OrgID); err != nil {
			return nil, fmt.Errorf("failed to scan community role: %w", err)
		}
		cr.Role = rbac.Role(role)
		out = append(out, cr)
	}
	return out, rows.Err()
}

// ActiveMemberIDs returns users who are full, active members of the
// community. Followers and non-active statuses are excluded.
func (s *Store) ActiveMemberIDs(ctx context.Context, communityID int64) ([]int64, error) {
	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT user_id FROM community_members
		WHERE community_id = $1 AND membership_type = $2 AND status = $3`,
		communityID, MembershipTypeMember, MembershipStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active members: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// OrgAdminIDs returns active users holding the org admin role in the
// given organization.
func (s *Store) OrgAdminIDs(ctx context.Context, orgID int64) ([]int64, error) {
	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT id FROM users
		WHERE org_id = $1 AND org_role = $2 AND is_active`,
		orgID, string(rbac.OrgRoleAdmin),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query org admins: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// SuperAdminIDs returns active users holding both the app admin and org
// admin roles. Both conditions gate inclusion.
func (s *Store) SuperAdminIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT id FROM users
		WHERE app_role = $1 AND org_role = $2 AND is_active`,
		string(rbac.AppRoleAdmin), string(rbac.OrgRoleAdmin),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query super admins: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CreatePost inserts a post and fills in its generated fields.
func (s *Store) CreatePost(ctx context.Context, p *Post) error {
	err := s.cm.Primary().QueryRowContext(ctx, `
		INSERT INTO posts (community_id, author_id, title, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		p.CommunityID, p.AuthorID, p.Title, p.Body,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// GetPost fetches a post by ID, excluding soft-deleted posts.
func (s *Store) GetPost(ctx context.Context, id int64) (*Post, error) {
	var p Post
	err := s.cm.Replica().QueryRowContext(ctx, `
		SELECT id, community_id, author_id, title, body, created_at, deleted_at
		FROM posts WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&p.ID, &p.CommunityID, &p.AuthorID, &p.Title, &p.Body, &p.CreatedAt, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

// ListPosts lists a community's posts, newest first.
func (s *Store) ListPosts(ctx context.Context, communityID int64, limit, offset int) ([]*Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT id, community_id, author_id, title, body, created_at, deleted_at
		FROM posts
		WHERE community_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		communityID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var out []*Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.CommunityID, &p.AuthorID, &p.Title, &p.Body, &p.CreatedAt, &p.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
