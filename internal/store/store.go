package store

import (
	"database/sql"
)

// Store groups the per-entity query builders over one database handle.
type Store struct {
	db *sql.DB

	Messages      *MessageStore
	Conversations *ConversationStore
	Agents        *AgentStore
	Models        *ModelStore
	Users         *UserStore
	Subscriptions *SubscriptionStore
	Sessions      *SessionStore
}

// New wires every entity store to the shared database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:            db,
		Messages:      &MessageStore{db: db},
		Conversations: &ConversationStore{db: db},
		Agents:        &AgentStore{db: db},
		Models:        &ModelStore{db: db},
		Users:         &UserStore{db: db},
		Subscriptions: &SubscriptionStore{db: db},
		Sessions:      &SessionStore{db: db},
	}
}

// DB exposes the underlying handle for components that keep their own
// queries (token validation, job queue bootstrap).
func (s *Store) DB() *sql.DB {
	return s.db
}
