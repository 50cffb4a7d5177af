package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/utils"

	"github.com/jmoiron/sqlx"
)

// CredentialRepository stores the single current carrier credential.
type CredentialRepository interface {
	Current(ctx context.Context) (*models.Credential, error)
	// Replace discards any stored credential and stores cred as current.
	Replace(ctx context.Context, cred *models.Credential) error
	Clear(ctx context.Context) error
}

type credentialRepository struct {
	q   sqlx.ExtContext
	key string
}

// NewCredentialRepository creates a CredentialRepository. When encryptionKey
// is non-empty the access and refresh secrets are encrypted at rest.
func NewCredentialRepository(q sqlx.ExtContext, encryptionKey string) CredentialRepository {
	return &credentialRepository{q: q, key: encryptionKey}
}

// Credentials returns the credential repository of the database.
func (d *Database) Credentials(encryptionKey string) CredentialRepository {
	return NewCredentialRepository(d.db, encryptionKey)
}

func (r *credentialRepository) Current(ctx context.Context) (*models.Credential, error) {
	var cred models.Credential
	err := sqlx.GetContext(ctx, r.q, &cred, `
		SELECT access_token, refresh_token, expires_at, created_at
		FROM oauth_credentials WHERE id = 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	if r.key != "" {
		if cred.AccessToken, err = utils.DecryptSecret(cred.AccessToken, r.key); err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
		if cred.RefreshToken != "" {
			if cred.RefreshToken, err = utils.DecryptSecret(cred.RefreshToken, r.key); err != nil {
				return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
			}
		}
	}
	return &cred, nil
}

func (r *credentialRepository) Replace(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.AccessToken == "" {
		return fmt.Errorf("credential access token cannot be empty")
	}

	stored := *cred
	if r.key != "" {
		var err error
		if stored.AccessToken, err = utils.EncryptSecret(cred.AccessToken, r.key); err != nil {
			return fmt.Errorf("failed to encrypt access token: %w", err)
		}
		if cred.RefreshToken != "" {
			if stored.RefreshToken, err = utils.EncryptSecret(cred.RefreshToken, r.key); err != nil {
				return fmt.Errorf("failed to encrypt refresh token: %w", err)
			}
		}
	}

	// id is pinned to 1, so the upsert leaves exactly one row.
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO oauth_credentials (id, access_token, refresh_token, expires_at, created_at)
		VALUES (1, :access_token, :refresh_token, :expires_at, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`, &stored)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (r *credentialRepository) Clear(ctx context.Context) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM oauth_credentials`); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
