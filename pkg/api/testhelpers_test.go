package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/contextkeys"
	"github.com/xceleratortech/communitiesx/pkg/observability"
	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

// singleDB routes both primary and replica traffic to one mock database.
type singleDB struct {
	db *sql.DB
}

func (s singleDB) Primary() *sql.DB { return s.db }
func (s singleDB) Replica() *sql.DB { return s.db }

func setupMockDB(t *testing.T) (singleDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return singleDB{db: db}, mock
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

// fakeRoleSource serves community roles from a map and counts loads.
type fakeRoleSource struct {
	roles map[int64][]rbac.CommunityRole
	err   error
	loads int
}

func (f *fakeRoleSource) ListUserCommunityRoles(ctx context.Context, userID int64) ([]rbac.CommunityRole, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.roles[userID], nil
}

func testUser(id int64) *auth.User {
	return &auth.User{
		ID:       id,
		Email:    "user@example.com",
		Name:     "Test User",
		AppRole:  rbac.AppRoleUser,
		OrgRole:  rbac.OrgRoleMember,
		IsActive: true,
	}
}

// authedRequest attaches an auth context the way the auth middleware
// would.
func authedRequest(r *http.Request, user *auth.User) *http.Request {
	ctx := contextkeys.WithAuth(r.Context(), &auth.AuthContext{
		User:  user,
		Token: &auth.APIToken{ID: 1, UserID: user.ID, CreatedAt: time.Now()},
	})
	return r.WithContext(ctx)
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest))
}

func int64Ptr(v int64) *int64 { return &v }
