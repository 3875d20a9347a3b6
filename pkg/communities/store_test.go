package communities

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

// singleDB serves one connection as both primary and replica.
type singleDB struct{ db *sql.DB }

func (s singleDB) Primary() *sql.DB { return s.db }
func (s singleDB) Replica() *sql.DB { return s.db }

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(singleDB{db}), mock
}

func TestCreateCommunity(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()
	orgID := int64(3)

	mock.ExpectQuery("INSERT INTO communities").
		WithArgs(&orgID, "Gophers", "gophers", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	c := &Community{OrgID: &orgID, Name: "Gophers", Slug: "gophers", CreatedBy: 7}
	require.NoError(t, store.CreateCommunity(context.Background(), c))
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, now, c.CreatedAt)
}

func TestGetCommunityNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id, org_id, name, slug").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetCommunity(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveMemberIDsFiltersTypeAndStatus(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT user_id FROM community_members").
		WithArgs(int64(5), MembershipTypeMember, MembershipStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))

	ids, err := store.ActiveMemberIDs(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestOrgAdminIDs(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id FROM users").
		WithArgs(int64(3), "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))

	ids, err := store.OrgAdminIDs(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)
}

func TestSuperAdminIDsRequiresBothRoles(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id FROM users").
		WithArgs("admin", "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	ids, err := store.SuperAdminIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ids)
}

func TestGetMembership(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT community_id, user_id, role").
		WithArgs(int64(5), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"community_id", "user_id", "role", "membership_type", "status", "joined_at",
		}).AddRow(int64(5), int64(7), "moderator", MembershipTypeMember, MembershipStatusActive, now))

	m, err := store.GetMembership(context.Background(), 5, 7)
	require.NoError(t, err)
	assert.Equal(t, rbac.CommunityRoleModerator, m.Role)
	assert.Equal(t, MembershipStatusActive, m.Status)
}

func TestListUserCommunityRoles(t *testing.T) {
	store, mock := newTestStore(t)
	orgID := int64(3)

	mock.ExpectQuery("SELECT cm.community_id, cm.role, c.org_id").
		WithArgs(int64(7), MembershipStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"community_id", "role", "org_id"}).
			AddRow(int64(5), "admin", orgID).
			AddRow(int64(6), "member", nil))

	roles, err := store.ListUserCommunityRoles(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, rbac.CommunityRoleAdmin, roles[0].Role)
	require.NotNil(t, roles[0].OrgID)
	assert.Equal(t, orgID, *roles[0].OrgID)
	assert.Nil(t, roles[1].OrgID)
}

func TestRemoveMemberNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM community_members").
		WithArgs(int64(5), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RemoveMember(context.Background(), 5, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePost(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO posts").
		WithArgs(int64(5), int64(7), "Hello", "First post").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(100), now))

	p := &Post{CommunityID: 5, AuthorID: 7, Title: "Hello", Body: "First post"}
	require.NoError(t, store.CreatePost(context.Background(), p))
	assert.Equal(t, int64(100), p.ID)
}

func TestGetUserMapsRoles(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT id, email, name, app_role").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "name", "app_role", "org_role", "org_id", "is_active", "created_at",
		}).AddRow(int64(7), "a@example.com", "Alice", "admin", "admin", nil, true, now))

	u, err := store.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, u.IsSuperAdmin())
}
