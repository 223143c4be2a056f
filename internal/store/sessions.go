package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// SessionStore persists refreshable provider credentials. It replaces any
// process-wide token map: in a multi-instance deployment every orchestrator
// sees the same row.
type SessionStore struct {
	db *sql.DB
}

// Get returns the stored session for a model endpoint, or nil when the
// endpoint uses a static API key.
func (s *SessionStore) Get(ctx context.Context, modelID string) (*models.ProviderSession, error) {
	ps := &models.ProviderSession{}
	err := s.db.QueryRowContext(ctx, `
		SELECT model_id, access_token, refresh_token, expires_at, updated_at
		FROM provider_sessions WHERE model_id = $1
	`, modelID).Scan(&ps.ModelID, &ps.AccessToken, &ps.RefreshToken, &ps.ExpiresAt, &ps.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to get provider session", err)
	}
	return ps, nil
}

// Save upserts a provider session.
func (s *SessionStore) Save(ctx context.Context, ps *models.ProviderSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_sessions (model_id, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (model_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
	`, ps.ModelID, ps.AccessToken, ps.RefreshToken, ps.ExpiresAt)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "failed to save provider session", err)
	}
	return nil
}

// UpdateAccessToken rotates just the access token after a refresh.
func (s *SessionStore) UpdateAccessToken(ctx context.Context, modelID, accessToken string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE provider_sessions
		SET access_token = $2, expires_at = $3, updated_at = NOW()
		WHERE model_id = $1
	`, modelID, accessToken, expiresAt)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "failed to update access token", err)
	}
	return nil
}
