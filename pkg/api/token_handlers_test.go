package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xceleratortech/communitiesx/pkg/auth"
)

// memTokenStore keeps tokens in memory for handler tests.
type memTokenStore struct {
	tokens map[int64]*auth.APIToken
	nextID int64
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[int64]*auth.APIToken)}
}

func (s *memTokenStore) InsertToken(ctx context.Context, token *auth.APIToken) error {
	s.nextID++
	token.ID = s.nextID
	s.tokens[token.ID] = token
	return nil
}

func (s *memTokenStore) LookupToken(ctx context.Context, tokenHash string) (*auth.APIToken, *auth.User, error) {
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			return t, testUser(t.UserID), nil
		}
	}
	return nil, nil, auth.ErrTokenNotFound
}

func (s *memTokenStore) RevokeToken(ctx context.Context, tokenID, userID int64) error {
	t, ok := s.tokens[tokenID]
	if !ok || t.UserID != userID {
		return auth.ErrTokenNotFound
	}
	delete(s.tokens, tokenID)
	return nil
}

func (s *memTokenStore) ListUserTokens(ctx context.Context, userID int64) ([]*auth.APIToken, error) {
	var out []*auth.APIToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTokenStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *memTokenStore) TouchToken(ctx context.Context, tokenID int64, usedAt time.Time) error {
	return nil
}

func newTokenFixture(t *testing.T) (*memTokenStore, *mux.Router) {
	t.Helper()
	store := newMemTokenStore()
	h := NewTokenHandlers(auth.NewTokenManager(store, time.Hour))
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return store, router
}

func TestCreateToken(t *testing.T) {
	_, router := newTokenFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/tokens", strings.NewReader(`{"name":"ci"}`))
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Token string `json:"token"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, "ci", resp.Name)
	assert.True(t, strings.HasPrefix(resp.Token, "cmx_"), "plaintext token should carry the prefix")
}

func TestCreateToken_RequiresName(t *testing.T) {
	_, router := newTokenFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/tokens", strings.NewReader(`{}`))
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateToken_RequiresAuth(t *testing.T) {
	_, router := newTokenFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/tokens", strings.NewReader(`{"name":"ci"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListTokens(t *testing.T) {
	store, router := newTokenFixture(t)
	store.InsertToken(context.Background(), &auth.APIToken{UserID: 7, Name: "ci", TokenHash: "h1"})
	store.InsertToken(context.Background(), &auth.APIToken{UserID: 8, Name: "other", TokenHash: "h2"})

	req := httptest.NewRequest("GET", "/api/v1/tokens", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
}

func TestRevokeToken(t *testing.T) {
	store, router := newTokenFixture(t)
	store.InsertToken(context.Background(), &auth.APIToken{UserID: 7, Name: "ci", TokenHash: "h1"})

	req := httptest.NewRequest("DELETE", "/api/v1/tokens/1", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.tokens)
}

func TestRevokeToken_OtherUsersTokenIs404(t *testing.T) {
	store, router := newTokenFixture(t)
	store.InsertToken(context.Background(), &auth.APIToken{UserID: 8, Name: "other", TokenHash: "h1"})

	req := httptest.NewRequest("DELETE", "/api/v1/tokens/1", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, store.tokens, 1)
}
