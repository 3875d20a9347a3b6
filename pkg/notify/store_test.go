package notify

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type singleDB struct{ db *sql.DB }

func (s singleDB) Primary() *sql.DB { return s.db }
func (s singleDB) Replica() *sql.DB { return s.db }

func newSQLStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(singleDB{db}), mock
}

func TestDisabledUserIDsBatchQuery(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery("SELECT user_id FROM notification_preferences").
		WithArgs(int64(5), pq.Array([]int64{1, 2, 3})).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(2)))

	ids, err := store.DisabledUserIDs(context.Background(), 5, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestDisabledUserIDsEmptyInputSkipsQuery(t *testing.T) {
	store, mock := newSQLStore(t)

	ids, err := store.DisabledUserIDs(context.Background(), 5, nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPreferenceAbsentRowMeansEnabled(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery("SELECT enabled, updated_at FROM notification_preferences").
		WithArgs(int64(7), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"enabled"}))

	pref, err := store.GetPreference(context.Background(), 7, 5)
	require.NoError(t, err)
	assert.True(t, pref.Enabled)
}

func TestSetPreferenceUpsert(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec("INSERT INTO notification_preferences").
		WithArgs(int64(7), int64(5), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetPreference(context.Background(), 7, 5, false))
}

func TestInsertNotificationsBulk(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec(`INSERT INTO notifications \(user_id, title, body, payload\) VALUES \(\$1, \$2, \$3, \$4\), \(\$5, \$6, \$7, \$8\)`).
		WithArgs(
			int64(1), "T", "B", []byte(`{}`),
			int64(2), "T", "B", []byte(`{}`),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.InsertNotifications(context.Background(), []*Notification{
		{UserID: 1, Title: "T", Body: "B", Payload: []byte(`{}`)},
		{UserID: 2, Title: "T", Body: "B", Payload: []byte(`{}`)},
	})
	require.NoError(t, err)
}

func TestInsertNotificationsEmptyNoop(t *testing.T) {
	store, mock := newSQLStore(t)

	require.NoError(t, store.InsertNotifications(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionsForUsers(t *testing.T) {
	store, mock := newSQLStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT id, user_id, endpoint").
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "endpoint", "p256dh", "auth", "created_at", "last_used_at",
		}).AddRow(int64(100), int64(1), "https://push/a", "k", "a", now, now))

	subs, err := store.SubscriptionsForUsers(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push/a", subs[0].Endpoint)
}

func TestUpsertSubscription(t *testing.T) {
	store, mock := newSQLStore(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO push_subscriptions").
		WithArgs(int64(7), "https://push/a", "k", "a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "last_used_at"}).
			AddRow(int64(100), now, now))

	sub := &PushSubscription{UserID: 7, Endpoint: "https://push/a", P256dh: "k", Auth: "a"}
	require.NoError(t, store.UpsertSubscription(context.Background(), sub))
	assert.Equal(t, int64(100), sub.ID)
}

func TestDeleteSubscriptionByEndpointNotFound(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec("DELETE FROM push_subscriptions").
		WithArgs(int64(7), "https://push/missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteSubscriptionByEndpoint(context.Background(), 7, "https://push/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkReadNotFound(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec("UPDATE notifications SET is_read").
		WithArgs(int64(50), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkRead(context.Background(), 7, 50)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnreadCount(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	count, err := store.UnreadCount(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestRetentionPruning(t *testing.T) {
	store, mock := newSQLStore(t)
	cutoff := time.Now().Add(-90 * 24 * time.Hour)

	mock.ExpectExec("DELETE FROM notifications WHERE is_read").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := store.DeleteReadNotificationsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	mock.ExpectExec("DELETE FROM push_subscriptions WHERE last_used_at").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err = store.DeleteStaleSubscriptions(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
