package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xceleratortech/communitiesx/pkg/httputil"
	"github.com/xceleratortech/communitiesx/pkg/notify"
	"github.com/xceleratortech/communitiesx/pkg/observability"
)

// NotificationHandlers provides HTTP handlers for in-app notifications,
// notification preferences, and push subscriptions.
type NotificationHandlers struct {
	store  *notify.PostgresStore
	logger *observability.Logger
}

// NewNotificationHandlers creates new notification handlers
func NewNotificationHandlers(store *notify.PostgresStore, logger *observability.Logger) *NotificationHandlers {
	return &NotificationHandlers{store: store, logger: logger}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/notifications", h.listNotifications).Methods("GET")
	router.HandleFunc("/api/v1/notifications/unread-count", h.unreadCount).Methods("GET")
	router.HandleFunc("/api/v1/notifications/read-all", h.markAllRead).Methods("POST")
	router.HandleFunc("/api/v1/notifications/{id}/read", h.markRead).Methods("POST")

	router.HandleFunc("/api/v1/communities/{id}/notification-preference", h.getPreference).Methods("GET")
	router.HandleFunc("/api/v1/communities/{id}/notification-preference", h.setPreference).Methods("PUT")

	router.HandleFunc("/api/v1/push/subscriptions", h.subscribe).Methods("POST")
	router.HandleFunc("/api/v1/push/subscriptions", h.unsubscribe).Methods("DELETE")
}

// listNotifications handles GET /api/v1/notifications
func (h *NotificationHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit, offset, ok := httputil.ParsePagination(w, r, 50)
	if !ok {
		return
	}

	notifications, err := h.store.ListNotifications(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("list notifications failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// unreadCount handles GET /api/v1/notifications/unread-count
func (h *NotificationHandlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	count, err := h.store.UnreadCount(r.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).Error("unread count failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]int64{"unread": count})
}

// markRead handles POST /api/v1/notifications/{id}/read
func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	err := h.store.MarkRead(r.Context(), user.ID, id)
	if errors.Is(err, notify.ErrNotFound) {
		httputil.WriteNotFound(w, "notification not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("mark read failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteNoContent(w)
}

// markAllRead handles POST /api/v1/notifications/read-all
func (h *NotificationHandlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	updated, err := h.store.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).Error("mark all read failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]int64{"updated": updated})
}

// getPreference handles GET /api/v1/communities/{id}/notification-preference
func (h *NotificationHandlers) getPreference(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	communityID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	pref, err := h.store.GetPreference(r.Context(), user.ID, communityID)
	if err != nil {
		h.logger.WithError(err).Error("get preference failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, pref)
}

type setPreferenceRequest struct {
	Enabled *bool `json:"enabled"`
}

// setPreference handles PUT /api/v1/communities/{id}/notification-preference
func (h *NotificationHandlers) setPreference(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	communityID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req setPreferenceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		httputil.WriteValidationError(w, "enabled is required")
		return
	}

	if err := h.store.SetPreference(r.Context(), user.ID, communityID, *req.Enabled); err != nil {
		h.logger.WithError(err).Error("set preference failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"enabled": *req.Enabled})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// subscribe handles POST /api/v1/push/subscriptions
func (h *NotificationHandlers) subscribe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req subscribeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Endpoint, "endpoint") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Keys.P256dh, "keys.p256dh") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Keys.Auth, "keys.auth") {
		return
	}

	sub := &notify.PushSubscription{
		UserID:   user.ID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.store.UpsertSubscription(r.Context(), sub); err != nil {
		h.logger.WithError(err).Error("upsert subscription failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteCreated(w, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// unsubscribe handles DELETE /api/v1/push/subscriptions
func (h *NotificationHandlers) unsubscribe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req unsubscribeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Endpoint, "endpoint") {
		return
	}

	err := h.store.DeleteSubscriptionByEndpoint(r.Context(), user.ID, req.Endpoint)
	if errors.Is(err, notify.ErrNotFound) {
		httputil.WriteNotFound(w, "subscription not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("delete subscription failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteNoContent(w)
}
