package notify

import (
	"encoding/json"
	"time"
)

// Notification is a persisted in-app notification row.
type Notification struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Payload   json.RawMessage `json:"payload"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
}

// PushSubscription is a browser push subscription. A user may hold one
// per device. Rows are deleted when the push provider reports the
// subscription gone (HTTP 410).
type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dh     string    `json:"p256dh"`
	Auth       string    `json:"auth"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// NotificationPreference is a per-user, per-community opt-out. An absent
// row means notifications are enabled.
type NotificationPreference struct {
	UserID      int64     `json:"user_id"`
	CommunityID int64     `json:"community_id"`
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Event is the dispatch trigger: a post was created.
type Event struct {
	PostID      int64
	CommunityID int64
	AuthorID    int64
	Title       string
}

// notificationPayload is the JSON stored with each in-app notification.
type notificationPayload struct {
	PostID        int64  `json:"postId"`
	CommunityID   int64  `json:"communityId"`
	AuthorName    string `json:"authorName"`
	CommunityName string `json:"communityName"`
}
