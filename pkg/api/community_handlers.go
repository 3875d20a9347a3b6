package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/xceleratortech/communitiesx/pkg/async"
	"github.com/xceleratortech/communitiesx/pkg/communities"
	"github.com/xceleratortech/communitiesx/pkg/httputil"
	"github.com/xceleratortech/communitiesx/pkg/notify"
	"github.com/xceleratortech/communitiesx/pkg/observability"
	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

// dispatchTimeout bounds background notification dispatch after a post
// is created.
const dispatchTimeout = 2 * time.Minute

// CommunityHandlers provides HTTP handlers for communities, membership,
// and posts.
type CommunityHandlers struct {
	store      *communities.Store
	dispatcher *notify.Dispatcher // nil when dispatch is disabled
	guard      *PermissionGuard
	logger     *observability.Logger
}

// NewCommunityHandlers creates new community handlers
func NewCommunityHandlers(store *communities.Store, dispatcher *notify.Dispatcher, guard *PermissionGuard, logger *observability.Logger) *CommunityHandlers {
	return &CommunityHandlers{
		store:      store,
		dispatcher: dispatcher,
		guard:      guard,
		logger:     logger,
	}
}

// RegisterRoutes registers community routes
func (h *CommunityHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/communities", h.createCommunity).Methods("POST")
	router.HandleFunc("/api/v1/communities", h.listCommunities).Methods("GET")
	router.HandleFunc("/api/v1/communities/{id}", h.getCommunity).Methods("GET")

	router.HandleFunc("/api/v1/communities/{id}/members", h.joinCommunity).Methods("POST")
	router.HandleFunc("/api/v1/communities/{id}/members/{userID}", h.removeMember).Methods("DELETE")

	router.HandleFunc("/api/v1/communities/{id}/posts", h.createPost).Methods("POST")
	router.HandleFunc("/api/v1/communities/{id}/posts", h.listPosts).Methods("GET")
	router.HandleFunc("/api/v1/communities/{id}/posts/{postID}", h.getPost).Methods("GET")
}

type createCommunityRequest struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	OrgID *int64 `json:"org_id,omitempty"`
}

// createCommunity handles POST /api/v1/communities
func (h *CommunityHandlers) createCommunity(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createCommunityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if req.Slug == "" {
		req.Slug = slugify(req.Name)
	}

	// Creating an org-owned community needs the org-context permission
	// for that org. Orgless communities only need an account.
	if req.OrgID != nil {
		sameOrg := user.OrgID != nil && *user.OrgID == *req.OrgID
		allowed := rbac.HasPermission(rbac.ContextApp, user.AppRole, rbac.ActionManageOrgs) ||
			(sameOrg && rbac.HasPermission(rbac.ContextOrg, user.OrgRole, rbac.ActionCreateCommunity))
		if !allowed {
			httputil.WriteForbidden(w, "cannot create a community in this organization")
			return
		}
	}

	community := &communities.Community{
		OrgID:     req.OrgID,
		Name:      req.Name,
		Slug:      req.Slug,
		CreatedBy: user.ID,
	}
	if err := h.store.CreateCommunity(r.Context(), community); err != nil {
		h.logger.WithError(err).Error("create community failed")
		httputil.WriteInternalError(w)
		return
	}

	// The creator becomes the community admin
	member := &communities.Membership{
		CommunityID:    community.ID,
		UserID:         user.ID,
		Role:           rbac.CommunityRoleAdmin,
		MembershipType: communities.MembershipTypeMember,
		Status:         communities.MembershipStatusActive,
	}
	if err := h.store.AddMember(r.Context(), member); err != nil {
		h.logger.WithError(err).Error("add creator membership failed")
		httputil.WriteInternalError(w)
		return
	}
	h.guard.Invalidate(r.Context(), user.ID)

	httputil.WriteCreated(w, community)
}

// listCommunities handles GET /api/v1/communities
func (h *CommunityHandlers) listCommunities(w http.ResponseWriter, r *http.Request) {
	var orgID *int64
	if id, err := httputil.ParseQueryInt(r, "org_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	} else if id > 0 {
		v := int64(id)
		orgID = &v
	}

	list, err := h.store.ListCommunities(r.Context(), orgID)
	if err != nil {
		h.logger.WithError(err).Error("list communities failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"communities": list,
		"count":       len(list),
	})
}

// getCommunity handles GET /api/v1/communities/{id}
func (h *CommunityHandlers) getCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	community, err := h.store.GetCommunity(r.Context(), id)
	if errors.Is(err, communities.ErrNotFound) {
		httputil.WriteNotFound(w, "community not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("get community failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, community)
}

type joinCommunityRequest struct {
	MembershipType string `json:"membership_type,omitempty"`
}

// joinCommunity handles POST /api/v1/communities/{id}/members
func (h *CommunityHandlers) joinCommunity(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req joinCommunityRequest
	if r.ContentLength > 0 && !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	membershipType := req.MembershipType
	if membershipType == "" {
		membershipType = communities.MembershipTypeMember
	}
	if membershipType != communities.MembershipTypeMember && membershipType != communities.MembershipTypeFollower {
		httputil.WriteValidationError(w, "membership_type must be member or follower")
		return
	}

	if _, err := h.store.GetCommunity(r.Context(), id); errors.Is(err, communities.ErrNotFound) {
		httputil.WriteNotFound(w, "community not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("get community failed")
		httputil.WriteInternalError(w)
		return
	}

	member := &communities.Membership{
		CommunityID:    id,
		UserID:         user.ID,
		Role:           rbac.CommunityRoleMember,
		MembershipType: membershipType,
		Status:         communities.MembershipStatusActive,
	}
	if err := h.store.AddMember(r.Context(), member); err != nil {
		h.logger.WithError(err).Error("add member failed")
		httputil.WriteInternalError(w)
		return
	}
	h.guard.Invalidate(r.Context(), user.ID)

	httputil.WriteCreated(w, member)
}

// removeMember handles DELETE /api/v1/communities/{id}/members/{userID}
func (h *CommunityHandlers) removeMember(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	targetID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	community, err := h.store.GetCommunity(r.Context(), id)
	if errors.Is(err, communities.ErrNotFound) {
		httputil.WriteNotFound(w, "community not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("get community failed")
		httputil.WriteInternalError(w)
		return
	}

	// Members may leave on their own; removing someone else needs the
	// member management permission.
	if targetID != user.ID && !h.guard.Check(r.Context(), user, community, rbac.ActionManageMembers) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	if err := h.store.RemoveMember(r.Context(), id, targetID); errors.Is(err, communities.ErrNotFound) {
		httputil.WriteNotFound(w, "membership not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("remove member failed")
		httputil.WriteInternalError(w)
		return
	}
	h.guard.Invalidate(r.Context(), targetID)

	httputil.WriteNoContent(w)
}

type createPostRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// createPost handles POST /api/v1/communities/{id}/posts
func (h *CommunityHandlers) createPost(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req createPostRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}

	community, err := h.store.GetCommunity(r.Context(), id)
	if errors.Is(err, communities.ErrNotFound) {
		httputil.WriteNotFound(w, "community not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("get community failed")
		httputil.WriteInternalError(w)
		return
	}

	if !h.guard.Check(r.Context(), user, community, rbac.ActionCreatePost) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	post := &communities.Post{
		CommunityID: id,
		AuthorID:    user.ID,
		Title:       req.Title,
		Body:        req.Body,
	}
	if err := h.store.CreatePost(r.Context(), post); err != nil {
		h.logger.WithError(err).Error("create post failed")
		httputil.WriteInternalError(w)
		return
	}

	// Notification dispatch runs in the background and never blocks or
	// fails the create response.
	if h.dispatcher != nil {
		ev := notify.Event{
			PostID:      post.ID,
			CommunityID: post.CommunityID,
			AuthorID:    post.AuthorID,
			Title:       post.Title,
		}
		async.SafeGoNoError(r.Context(), dispatchTimeout, "notification-dispatch", h.logger, func(ctx context.Context) {
			h.dispatcher.Dispatch(ctx, ev)
		})
	}

	httputil.WriteCreated(w, post)
}

// listPosts handles GET /api/v1/communities/{id}/posts
func (h *CommunityHandlers) listPosts(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	limit, offset, ok := httputil.ParsePagination(w, r, 50)
	if !ok {
		return
	}

	community, err := h.store.GetCommunity(r.Context(), id)
	if errors.Is(err, communities.ErrNotFound) {
		httputil.WriteNotFound(w, "community not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("get community failed")
		httputil.WriteInternalError(w)
		return
	}

	if !h.guard.Check(r.Context(), user, community, rbac.ActionViewPosts) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	posts, err := h.store.ListPosts(r.Context(), id, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("list posts failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"posts": posts,
		"count": len(posts),
	})
}

// getPost handles GET /api/v1/communities/{id}/posts/{postID}
func (h *CommunityHandlers) getPost(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	postID, ok := httputil.ParsePathInt64OrError(w, r, "postID")
	if !ok {
		return
	}

	community, err := h.store.GetCommunity(r.Context(), id)
	if errors.Is(err, communities.ErrNotFound) {
		httputil.WriteNotFound(w, "community not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("get community failed")
		httputil.WriteInternalError(w)
		return
	}

	if !h.guard.Check(r.Context(), user, community, rbac.ActionViewPosts) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	post, err := h.store.GetPost(r.Context(), postID)
	if errors.Is(err, communities.ErrNotFound) || (err == nil && post.CommunityID != id) {
		httputil.WriteNotFound(w, "post not found")
		return
	} else if err != nil {
		h.logger.WithError(err).Error("get post failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, post)
}

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
