package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CredentialRepository stores Todoist access tokens obtained through the
// OAuth connect flow, one per user.
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetAccessToken returns the stored Todoist access token for a user
func (r *CredentialRepository) GetAccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	var token string

	query := `SELECT access_token FROM todoist_credentials WHERE user_id = $1`

	err := r.db.QueryRowContext(ctx, query, userID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("todoist credential not found for user %s: %w", userID, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get todoist credential: %w", err)
	}

	return token, nil
}

// SetAccessToken upserts the Todoist access token for a user
func (r *CredentialRepository) SetAccessToken(ctx context.Context, userID uuid.UUID, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	now := time.Now()
	query := `
		INSERT INTO todoist_credentials (user_id, access_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, userID, accessToken, now, now); err != nil {
		return fmt.Errorf("failed to store todoist credential: %w", err)
	}

	return nil
}
