package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xceleratortech/communitiesx/pkg/notify"
)

func newNotificationFixture(t *testing.T) (*NotificationHandlers, sqlmock.Sqlmock, *mux.Router) {
	t.Helper()
	provider, mock := setupMockDB(t)
	h := NewNotificationHandlers(notify.NewPostgresStore(provider), testLogger())
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return h, mock, router
}

func TestNotificationHandlers_RegisterRoutes(t *testing.T) {
	_, _, router := newNotificationFixture(t)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/notifications"},
		{"GET", "/api/v1/notifications/unread-count"},
		{"POST", "/api/v1/notifications/read-all"},
		{"POST", "/api/v1/notifications/42/read"},
		{"GET", "/api/v1/communities/5/notification-preference"},
		{"PUT", "/api/v1/communities/5/notification-preference"},
		{"POST", "/api/v1/push/subscriptions"},
		{"DELETE", "/api/v1/push/subscriptions"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			assert.True(t, router.Match(req, &match), "route %s %s should be registered", tt.method, tt.path)
		})
	}
}

func TestListNotifications_RequiresAuth(t *testing.T) {
	_, _, router := newNotificationFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/notifications", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListNotifications(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "title", "body", "payload", "is_read", "created_at", "read_at"}).
		AddRow(int64(1), int64(7), "New post in Gophers", `"Hello" by Alice`, []byte(`{}`), false, time.Now(), nil)
	mock.ExpectQuery("SELECT id, user_id, title, body, payload, is_read, created_at, read_at").
		WithArgs(int64(7), 25, 0).
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/api/v1/notifications?limit=25", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Notifications []notify.Notification `json:"notifications"`
		Count         int                   `json:"count"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "New post in Gophers", resp.Notifications[0].Title)
}

func TestUnreadCount(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	req := httptest.NewRequest("GET", "/api/v1/notifications/unread-count", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]int64
	decodeBody(t, w, &resp)
	assert.Equal(t, int64(3), resp["unread"])
}

func TestMarkRead_NotFound(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectExec("UPDATE notifications").
		WithArgs(int64(42), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest("POST", "/api/v1/notifications/42/read", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkRead_Succeeds(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectExec("UPDATE notifications").
		WithArgs(int64(42), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("POST", "/api/v1/notifications/42/read", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMarkAllRead(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectExec("UPDATE notifications").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	req := httptest.NewRequest("POST", "/api/v1/notifications/read-all", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]int64
	decodeBody(t, w, &resp)
	assert.Equal(t, int64(4), resp["updated"])
}

func TestGetPreference_AbsentRowReadsEnabled(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectQuery("SELECT enabled, updated_at FROM notification_preferences").
		WithArgs(int64(7), int64(5)).
		WillReturnError(errNoRows())

	req := httptest.NewRequest("GET", "/api/v1/communities/5/notification-preference", nil)
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var pref notify.NotificationPreference
	decodeBody(t, w, &pref)
	assert.True(t, pref.Enabled)
}

func TestSetPreference_RequiresEnabledField(t *testing.T) {
	_, _, router := newNotificationFixture(t)

	req := httptest.NewRequest("PUT", "/api/v1/communities/5/notification-preference", strings.NewReader(`{}`))
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "enabled is required")
}

func TestSetPreference_OptOut(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectExec("INSERT INTO notification_preferences").
		WithArgs(int64(7), int64(5), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("PUT", "/api/v1/communities/5/notification-preference", strings.NewReader(`{"enabled":false}`))
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribe_ValidatesKeys(t *testing.T) {
	_, _, router := newNotificationFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/push/subscriptions",
		strings.NewReader(`{"endpoint":"https://push.example.com/abc","keys":{"p256dh":"pk"}}`))
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "keys.auth")
}

func TestSubscribe_Succeeds(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectQuery("INSERT INTO push_subscriptions").
		WithArgs(int64(7), "https://push.example.com/abc", "pk", "secret").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "last_used_at"}).
			AddRow(int64(100), time.Now(), time.Now()))

	req := httptest.NewRequest("POST", "/api/v1/push/subscriptions",
		strings.NewReader(`{"endpoint":"https://push.example.com/abc","keys":{"p256dh":"pk","auth":"secret"}}`))
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub notify.PushSubscription
	decodeBody(t, w, &sub)
	assert.Equal(t, int64(100), sub.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsubscribe_NotFound(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectExec("DELETE FROM push_subscriptions").
		WithArgs(int64(7), "https://push.example.com/gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest("DELETE", "/api/v1/push/subscriptions",
		strings.NewReader(`{"endpoint":"https://push.example.com/gone"}`))
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnsubscribe_Succeeds(t *testing.T) {
	_, mock, router := newNotificationFixture(t)

	mock.ExpectExec("DELETE FROM push_subscriptions").
		WithArgs(int64(7), "https://push.example.com/abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("DELETE", "/api/v1/push/subscriptions",
		strings.NewReader(`{"endpoint":"https://push.example.com/abc"}`))
	req = authedRequest(req, testUser(7))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
