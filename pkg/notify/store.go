package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DBProvider supplies write and read connections. Satisfied by
// postgres.ConnectionManager.
type DBProvider interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

// PostgresStore persists notifications, push subscriptions, and
// notification preferences.
type PostgresStore struct {
	cm DBProvider
}

// NewPostgresStore creates the notification store.
func NewPostgresStore(cm DBProvider) *PostgresStore {
	return &PostgresStore{cm: cm}
}

// DisabledUserIDs returns, from the candidate set, the users who have
// explicitly disabled notifications for the community. One query for the
// whole batch.
func (s *PostgresStore) DisabledUserIDs(ctx context.Context, communityID int64, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT user_id FROM notification_preferences
		WHERE community_id = $1 AND user_id = ANY($2) AND NOT enabled`,
		communityID, pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPreference returns the user's preference for a community. An absent
// row reads as enabled.
func (s *PostgresStore) GetPreference(ctx context.Context, userID, communityID int64) (*NotificationPreference, error) {
	pref := NotificationPreference{UserID: userID, CommunityID: communityID, Enabled: true}
	err := s.cm.Replica().QueryRowContext(ctx, `
		SELECT enabled, updated_at FROM notification_preferences
		WHERE user_id = $1 AND community_id = $2`,
		userID, communityID,
	).Scan(&pref.Enabled, &pref.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &pref, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	return &pref, nil
}

// SetPreference upserts the user's preference for a community.
func (s *PostgresStore) SetPreference(ctx context.Context, userID, communityID int64, enabled bool) error {
	_, err := s.cm.Primary().ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, community_id, enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, community_id)
		DO UPDATE SET enabled = $3, updated_at = NOW()`,
		userID, communityID, enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

// SubscriptionsForUsers fetches every push subscription belonging to the
// given users, in one query.
func (s *PostgresStore) SubscriptionsForUsers(ctx context.Context, userIDs []int64) ([]*PushSubscription, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, created_at, last_used_at
		FROM push_subscriptions
		WHERE user_id = ANY($1)`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*PushSubscription
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt, &sub.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// UpsertSubscription stores a subscription, keyed by endpoint. Replaying
// the same endpoint re-homes it to the requesting user.
func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *PushSubscription) error {
	err := s.cm.Primary().QueryRowContext(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint)
		DO UPDATE SET user_id = $1, p256dh = $3, auth = $4, last_used_at = NOW()
		RETURNING id, created_at, last_used_at`,
		sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// DeleteSubscriptionByID removes a single subscription row.
func (s *PostgresStore) DeleteSubscriptionByID(ctx context.Context, id int64) error {
	_, err := s.cm.Primary().ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// DeleteSubscriptionByEndpoint removes a user's subscription by endpoint.
func (s *PostgresStore) DeleteSubscriptionByEndpoint(ctx context.Context, userID int64, endpoint string) error {
	res, err := s.cm.Primary().ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertNotifications bulk-inserts notification rows in one statement.
func (s *PostgresStore) InsertNotifications(ctx context.Context, notifs []*Notification) error {
	if len(notifs) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`INSERT INTO notifications (user_id, title, body, payload) VALUES `)
	for i, n := range notifs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, n.UserID, n.Title, n.Body, []byte(n.Payload))
	}

	if _, err := s.cm.Primary().ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]*Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.cm.Replica().QueryContext(ctx, `
		SELECT id, user_id, title, body, payload, is_read, created_at, read_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Payload, &n.IsRead, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// UnreadCount returns the user's unread notification count.
func (s *PostgresStore) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.cm.Replica().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the user's notifications read.
func (s *PostgresStore) MarkRead(ctx context.Context, userID, notificationID int64) error {
	res, err := s.cm.Primary().ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT is_read`,
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read mark result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read and
// returns the count.
func (s *PostgresStore) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.cm.Primary().ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND NOT is_read`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", err)
	}
	return res.RowsAffected()
}

// DeleteReadNotificationsBefore prunes read notifications older than the
// cutoff. Used by the retention sweeper.
func (s *PostgresStore) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.cm.Primary().ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return res.RowsAffected()
}

// DeleteStaleSubscriptions prunes subscriptions unused since the cutoff.
func (s *PostgresStore) DeleteStaleSubscriptions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.cm.Primary().ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE last_used_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// TouchSubscriptions bumps last_used_at for subscriptions that were just
// delivered to, so the retention sweeper keeps them.
func (s *PostgresStore) TouchSubscriptions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.cm.Primary().ExecContext(ctx,
		`UPDATE push_subscriptions SET last_used_at = NOW() WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to touch subscriptions: %w", err)
	}
	return nil
}
