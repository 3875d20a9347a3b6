package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xceleratortech/communitiesx/pkg/auth"
	"github.com/xceleratortech/communitiesx/pkg/httputil"
)

// TokenHandlers provides HTTP handlers for API token management.
type TokenHandlers struct {
	manager *auth.TokenManager
}

// NewTokenHandlers creates new token handlers
func NewTokenHandlers(manager *auth.TokenManager) *TokenHandlers {
	return &TokenHandlers{manager: manager}
}

// RegisterRoutes registers token routes
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/tokens", h.createToken).Methods("POST")
	router.HandleFunc("/api/v1/tokens", h.listTokens).Methods("GET")
	router.HandleFunc("/api/v1/tokens/{id}", h.revokeToken).Methods("DELETE")
}

type createTokenRequest struct {
	Name string `json:"name"`
}

type createTokenResponse struct {
	*auth.APIToken
	// Token is the plaintext token, returned exactly once at creation.
	Token string `json:"token"`
}

// createToken handles POST /api/v1/tokens
func (h *TokenHandlers) createToken(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	apiToken, plaintext, err := h.manager.CreateToken(r.Context(), user.ID, req.Name)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteCreated(w, createTokenResponse{
		APIToken: apiToken,
		Token:    plaintext,
	})
}

// listTokens handles GET /api/v1/tokens
func (h *TokenHandlers) listTokens(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	tokens, err := h.manager.ListUserTokens(r.Context(), user.ID)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// revokeToken handles DELETE /api/v1/tokens/{id}
func (h *TokenHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	err := h.manager.RevokeToken(r.Context(), id, user.ID)
	if errors.Is(err, auth.ErrTokenNotFound) {
		httputil.WriteNotFound(w, "token not found")
		return
	} else if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteNoContent(w)
}
