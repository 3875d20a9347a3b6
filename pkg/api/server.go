package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/communities"
	"github.com/xceleratortech/communitiesx/pkg/httputil"
	"github.com/xceleratortech/communitiesx/pkg/middleware"
	"github.com/xceleratortech/communitiesx/pkg/notify"
	"github.com/xceleratortech/communitiesx/pkg/observability"
)

// Deps carries everything the API server needs. Dispatcher may be nil
// when notification dispatch is disabled.
type Deps struct {
	Communities    *communities.Store
	Notify         *notify.PostgresStore
	Dispatcher     *notify.Dispatcher
	Tokens         *auth.TokenManager
	Guard          *PermissionGuard
	Metrics        *observability.Metrics
	Logger         *observability.Logger
	AllowedOrigins []string

	// RateLimit, when set, is applied after authentication so limits can
	// key on the user instead of the client IP.
	RateLimit func(http.Handler) http.Handler
}

// Server is the HTTP API server.
type Server struct {
	router *mux.Router
	logger *observability.Logger

	communityHandlers    *CommunityHandlers
	notificationHandlers *NotificationHandlers
	tokenHandlers        *TokenHandlers
}

// NewServer creates an API server with all routes and middleware wired.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:               mux.NewRouter(),
		logger:               deps.Logger,
		communityHandlers:    NewCommunityHandlers(deps.Communities, deps.Dispatcher, deps.Guard, deps.Logger),
		notificationHandlers: NewNotificationHandlers(deps.Notify, deps.Logger),
		tokenHandlers:        NewTokenHandlers(deps.Tokens),
	}

	s.router.Use(middleware.RequestIDMiddleware)
	s.router.Use(httputil.RecoveryMiddleware(deps.Logger))
	s.router.Use(httputil.LoggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	if len(deps.AllowedOrigins) > 0 {
		s.router.Use(httputil.CORSMiddleware(deps.AllowedOrigins))
	}
	s.router.Use(httputil.ContentTypeMiddleware)

	// Auth is optional at the router level. Handlers that need a user
	// reject anonymous requests themselves.
	authMW := middleware.NewAuthMiddleware(deps.Tokens, true)
	s.router.Use(authMW.Handler)

	if deps.RateLimit != nil {
		s.router.Use(deps.RateLimit)
	}

	s.communityHandlers.RegisterRoutes(s.router)
	s.notificationHandlers.RegisterRoutes(s.router)
	s.tokenHandlers.RegisterRoutes(s.router)

	return s
}

// Router returns the configured handler for mounting on an http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

// currentUser extracts the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return authCtx.User, true
}
