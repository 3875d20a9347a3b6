package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xceleratortech/communitiesx/pkg/rbac"
)

// PostgresTokenStore is the Postgres-backed TokenStore.
type PostgresTokenStore struct {
	db *sql.DB
}

// NewPostgresTokenStore creates a token store on the given connection.
func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

// InsertToken stores a new token row and fills in its generated ID.
func (s *PostgresTokenStore) InsertToken(ctx context.Context, token *APIToken) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, name, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		token.UserID, token.TokenHash, token.Name, token.ExpiresAt, token.CreatedAt,
	).Scan(&token.ID)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// LookupToken finds a token by hash together with its owner.
func (s *PostgresTokenStore) LookupToken(ctx context.Context, tokenHash string) (*APIToken, *User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.name, t.expires_at, t.created_at, t.last_used_at,
		       u.id, u.email, u.name, u.app_role, u.org_role, u.org_id, u.is_active, u.created_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1`,
		tokenHash,
	)

	var (
		token   APIToken
		user    User
		appRole string
		orgRole string
	)
	err := row.Scan(
		&token.ID, &token.UserID, &token.Name, &token.ExpiresAt, &token.CreatedAt, &token.LastUsedAt,
		&user.ID, &user.Email, &user.Name, &appRole, &orgRole, &user.OrgID, &user.IsActive, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up token: %w", err)
	}

	token.TokenHash = tokenHash
	user.AppRole = rbac.Role(appRole)
	user.OrgRole = rbac.Role(orgRole)

	return &token, &user, nil
}

// RevokeToken deletes a token owned by the given user.
func (s *PostgresTokenStore) RevokeToken(ctx context.Context, tokenID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE id = $1 AND user_id = $2`,
		tokenID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read revoke result: %w", err)
	}
	if affected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ListUserTokens lists tokens for a user, newest first.
func (s *PostgresTokenStore) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, expires_at, created_at, last_used_at
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		var t APIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.ExpiresAt, &t.CreatedAt, &t.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// DeleteExpiredTokens removes every token past its expiry.
func (s *PostgresTokenStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return res.RowsAffected()
}

// TouchToken records when a token was last used.
func (s *PostgresTokenStore) TouchToken(ctx context.Context, tokenID int64, usedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`,
		usedAt, tokenID,
	)
	return err
}
