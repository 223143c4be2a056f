package store

import (
	"context"
	"database/sql"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// AgentStore holds the agent queries.
type AgentStore struct {
	db *sql.DB
}

// Get fetches one agent by id.
func (s *AgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	a := &models.Agent{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, creator_id, name, description, avatar_url, system_prompt, visibility, created_at, updated_at
		FROM agents WHERE id = $1
	`, id).Scan(&a.ID, &a.CreatorID, &a.Name, &a.Description, &a.AvatarURL, &a.SystemPrompt, &a.Visibility, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "agent not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to get agent", err)
	}
	return a, nil
}

// ModelStore holds the model-endpoint queries.
type ModelStore struct {
	db *sql.DB
}

// Get fetches one model endpoint by id, including its credentials. Callers
// serving API responses must gate the detail fields by visibility.
func (s *ModelStore) Get(ctx context.Context, id string) (*models.Model, error) {
	m := &models.Model{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, creator_id, name, provider, model_name, endpoint, api_key, visibility, created_at, updated_at
		FROM model_endpoints WHERE id = $1
	`, id).Scan(&m.ID, &m.CreatorID, &m.Name, &m.Provider, &m.ModelName, &m.Endpoint, &m.APIKey, &m.Visibility, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "model not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to get model", err)
	}
	return m, nil
}
