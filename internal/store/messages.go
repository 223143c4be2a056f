package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// MessageStore holds the message queries.
type MessageStore struct {
	db *sql.DB
}

const messageColumns = `id, conversation_id, type, sender_id, agent_id, model_id, content, extra, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.Type, &m.SenderID, &m.AgentID, &m.ModelID,
		&m.Content, &m.Extra, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create persists a new message and assigns its durable id.
func (s *MessageStore) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+messageColumns+`
	`, m.ID, m.ConversationID, m.Type, m.SenderID, m.AgentID, m.ModelID, m.Content, m.Extra, now, now)

	created, err := scanMessage(row)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to create message", err)
	}
	return created, nil
}

// Finalize performs the single authoritative content/extra write for a
// generated message. Chunk events are never persisted individually; this is
// the only mutation a streaming turn makes after the placeholder insert.
func (s *MessageStore) Finalize(ctx context.Context, id, content, extra string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE messages
		SET content = $2, extra = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+messageColumns+`
	`, id, content, extra)

	updated, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "message not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to finalize message", err)
	}
	return updated, nil
}

// Get fetches one message by id.
func (s *MessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "message not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to get message", err)
	}
	return m, nil
}

// Delete removes a message and returns the deleted entity so the caller can
// fan it out with removal semantics.
func (s *MessageStore) Delete(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM messages WHERE id = $1
		RETURNING `+messageColumns+`
	`, id)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "message not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to delete message", err)
	}
	return m, nil
}

// ListByConversation returns the conversation's messages in creation order.
// This is the authoritative read path clients reconcile against, and the
// prompt history source. The limit window keeps the NEWEST messages; older
// ones fall off first.
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to list messages", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPersistence, "failed to scan message", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to read messages", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
