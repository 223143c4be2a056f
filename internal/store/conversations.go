package store

import (
	"context"
	"database/sql"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// ConversationStore holds the conversation and participant queries.
type ConversationStore struct {
	db *sql.DB
}

// Get fetches one conversation with its participant set.
func (s *ConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to get conversation", err)
	}

	participants, err := s.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Participants = participants
	return c, nil
}

// ListParticipants returns every participant of a conversation. The
// orchestrator fans chunk events out to exactly this set.
func (s *ConversationStore) ListParticipants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, role, created_at
		FROM participants
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to list participants", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindPersistence, "failed to scan participant", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "failed to read participants", err)
	}
	return out, nil
}

// IsParticipant reports whether a user belongs to a conversation.
func (s *ConversationStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.KindPersistence, "failed to check participant", err)
	}
	return exists, nil
}

// Touch bumps the conversation's updated_at after a finalize write so
// listings sort by latest activity.
func (s *ConversationStore) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "failed to touch conversation", err)
	}
	return nil
}
