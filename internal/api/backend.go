package api

import (
	"context"

	"github.com/YudoTLE/VelonY-sub000/internal/generate"
	"github.com/YudoTLE/VelonY-sub000/internal/store"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// storeBackend adapts the entity stores to the orchestrator's persistence
// surface.
type storeBackend struct {
	store *store.Store
}

// NewStoreBackend exposes the adapter for processes that run the
// orchestrator without the HTTP server, like the queue workers.
func NewStoreBackend(st *store.Store) generate.Backend {
	return &storeBackend{store: st}
}

func (b *storeBackend) CreateMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	return b.store.Messages.Create(ctx, m)
}

func (b *storeBackend) FinalizeMessage(ctx context.Context, id, content, extra string) (*models.Message, error) {
	return b.store.Messages.Finalize(ctx, id, content, extra)
}

func (b *storeBackend) ListMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	return b.store.Messages.ListByConversation(ctx, conversationID, limit)
}

func (b *storeBackend) ListParticipants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	return b.store.Conversations.ListParticipants(ctx, conversationID)
}

func (b *storeBackend) TouchConversation(ctx context.Context, id string) error {
	return b.store.Conversations.Touch(ctx, id)
}

func (b *storeBackend) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	return b.store.Agents.Get(ctx, id)
}

func (b *storeBackend) GetModel(ctx context.Context, id string) (*models.Model, error) {
	return b.store.Models.Get(ctx, id)
}
