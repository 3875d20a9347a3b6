package api

import (
	"context"
	"strconv"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/cache"
	"github.com/xceleratortech/communitiesx/pkg/communities"
	"github.com/xceleratortech/communitiesx/pkg/observability"
	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

// RoleSource loads a user's per-community role assignments.
type RoleSource interface {
	ListUserCommunityRoles(ctx context.Context, userID int64) ([]rbac.CommunityRole, error)
}

// PermissionGuard resolves role sets and evaluates community permission
// checks for HTTP handlers. Role sets are cached; membership changes
// must call Invalidate.
type PermissionGuard struct {
	roles   RoleSource
	cache   *cache.RoleSetCache // optional
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewPermissionGuard creates a guard. cache may be nil to disable
// role set caching.
func NewPermissionGuard(roles RoleSource, rsCache *cache.RoleSetCache, metrics *observability.Metrics, logger *observability.Logger) *PermissionGuard {
	return &PermissionGuard{
		roles:   roles,
		cache:   rsCache,
		metrics: metrics,
		logger:  logger,
	}
}

// RoleSetFor returns the user's complete role set, loading community
// roles from storage on cache miss.
func (g *PermissionGuard) RoleSetFor(ctx context.Context, user *auth.User) (rbac.RoleSet, error) {
	if g.cache != nil {
		if rs, ok := g.cache.Get(ctx, user.ID); ok {
			return rs, nil
		}
	}

	communityRoles, err := g.roles.ListUserCommunityRoles(ctx, user.ID)
	if err != nil {
		return rbac.RoleSet{}, err
	}

	rs := user.RoleSet(communityRoles)
	if g.cache != nil {
		g.cache.Set(ctx, user.ID, rs)
	}
	return rs, nil
}

// Check decides whether the user may perform an action in a community.
// Load failures deny.
func (g *PermissionGuard) Check(ctx context.Context, user *auth.User, community *communities.Community, action rbac.Action) bool {
	rs, err := g.RoleSetFor(ctx, user)
	if err != nil {
		g.logger.WithError(err).WithField("user_id", user.ID).Warn("role set load failed, denying")
		g.count(action, false)
		return false
	}

	allowed := rbac.CheckCommunityPermission(rs, community.ID, action, community.OrgID)
	g.count(action, allowed)
	return allowed
}

// Invalidate drops the cached role set for a user. Call after any
// membership or role change.
func (g *PermissionGuard) Invalidate(ctx context.Context, userID int64) {
	if g.cache != nil {
		g.cache.Invalidate(ctx, userID)
	}
}

func (g *PermissionGuard) count(action rbac.Action, allowed bool) {
	if g.metrics == nil {
		return
	}
	g.metrics.PermissionChecksTotal.WithLabelValues(string(action), strconv.FormatBool(allowed)).Inc()
}
