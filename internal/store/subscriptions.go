package store

import (
	"context"
	"database/sql"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// SubscriptionStore answers the isSubscribed / subscriberCount questions the
// detail endpoints need.
type SubscriptionStore struct {
	db *sql.DB
}

// IsSubscribed reports whether a user subscribes to the given agent/model.
func (s *SubscriptionStore) IsSubscribed(ctx context.Context, userID string, target models.SubscriptionTarget, targetID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions WHERE user_id = $1 AND target = $2 AND target_id = $3
		)
	`, userID, target, targetID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.KindPersistence, "failed to check subscription", err)
	}
	return exists, nil
}

// SubscriberCount counts subscribers of the given agent/model.
func (s *SubscriptionStore) SubscriberCount(ctx context.Context, target models.SubscriptionTarget, targetID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE target = $1 AND target_id = $2
	`, target, targetID).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindPersistence, "failed to count subscribers", err)
	}
	return count, nil
}
