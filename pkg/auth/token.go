package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies tokens issued by this service
	TokenPrefix = "cmx_"
	// TokenLength is the number of random bytes per token (256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token.
// Format: cmx_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullToken := TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)

	hash := sha256.Sum256([]byte(fullToken))
	return fullToken, hex.EncodeToString(hash[:]), nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenStore persists API tokens and their owners.
type TokenStore interface {
	InsertToken(ctx context.Context, token *APIToken) error
	// LookupToken returns the token row and its owner for a hash, or
	// ErrTokenNotFound. Implementations must not return expired tokens'
	// users without the token so callers can reject them.
	LookupToken(ctx context.Context, tokenHash string) (*APIToken, *User, error)
	RevokeToken(ctx context.Context, tokenID, userID int64) error
	ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
	TouchToken(ctx context.Context, tokenID int64, usedAt time.Time) error
}

// ErrTokenNotFound is returned when no token matches the presented hash.
var ErrTokenNotFound = fmt.Errorf("token not found")

// ErrTokenExpired is returned when the presented token is past its expiry.
var ErrTokenExpired = fmt.Errorf("token expired")

// TokenManager manages the API token lifecycle against a TokenStore.
type TokenManager struct {
	generator *TokenGenerator
	store     TokenStore
	ttl       time.Duration
}

// NewTokenManager creates a token manager. ttl of zero means tokens
// never expire.
func NewTokenManager(store TokenStore, ttl time.Duration) *TokenManager {
	return &TokenManager{
		generator: NewTokenGenerator(),
		store:     store,
		ttl:       ttl,
	}
}

// CreateToken mints a token for the user and stores its hash. The
// plaintext token is returned exactly once.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name string) (*APIToken, string, error) {
	token, tokenHash, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:    userID,
		TokenHash: tokenHash,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if tm.ttl > 0 {
		expires := apiToken.CreatedAt.Add(tm.ttl)
		apiToken.ExpiresAt = &expires
	}

	if err := tm.store.InsertToken(ctx, apiToken); err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken checks the presented token and returns its owner.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*User, *APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, nil, fmt.Errorf("invalid token format: %w", err)
	}

	apiToken, user, err := tm.store.LookupToken(ctx, tm.generator.HashToken(token))
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	if apiToken.Expired(now) {
		return nil, nil, ErrTokenExpired
	}
	if !user.IsActive {
		return nil, nil, fmt.Errorf("user account is inactive")
	}

	// Best effort; a failed touch does not block the request.
	_ = tm.store.TouchToken(ctx, apiToken.ID, now)

	return user, apiToken, nil
}

// RevokeToken deletes a token owned by the user.
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID, userID int64) error {
	return tm.store.RevokeToken(ctx, tokenID, userID)
}

// ListUserTokens lists all tokens for a user.
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	return tm.store.ListUserTokens(ctx, userID)
}

// CleanupExpiredTokens removes expired tokens and returns the count.
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return tm.store.DeleteExpiredTokens(ctx, time.Now())
}
