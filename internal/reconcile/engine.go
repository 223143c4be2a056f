package reconcile

import (
	"sync"

	"github.com/YudoTLE/VelonY-sub000/internal/logging"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

var log = logging.Component("reconcile")

// Status tracks how settled one entry is against the server.
type Status string

const (
	// StatusSending covers optimistic local sends awaiting acknowledgment
	// and agent messages still being generated.
	StatusSending  Status = "sending"
	StatusSent     Status = "sent"
	StatusDeleting Status = "deleting"
)

// Entry is one reconciled message plus its local settlement status.
type Entry struct {
	Message models.Message
	Status  Status
}

// Engine merges three concurrent input sources into one ordered,
// id-unique message list for a single conversation: locally originated
// optimistic operations, REST responses, and broadcast events. For any
// interleaving that preserves the server's per-message emission order, the
// content for a given id converges to the same final string on every
// client that received the same events.
type Engine struct {
	mu      sync.Mutex
	entries []Entry
	index   map[string]int
}

// NewEngine creates an empty engine for one conversation.
func NewEngine() *Engine {
	return &Engine{index: make(map[string]int)}
}

// Seed replaces the engine state with a server-fetched message list. All
// seeded entries are settled.
func (e *Engine) Seed(msgs []*models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = e.entries[:0]
	clear(e.index)
	for _, m := range msgs {
		e.appendLocked(Entry{Message: *m, Status: StatusSent})
	}
}

// SubmitOptimistic inserts a synthetic entry for a user submission before
// the network call resolves. The entry is keyed by its temporary id until
// AckSend swaps in the server-confirmed identity.
func (e *Engine) SubmitOptimistic(msg models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg.ID = msg.TempID
	e.appendLocked(Entry{Message: msg, Status: StatusSending})
}

// AckSend resolves an optimistic entry with the server-confirmed message,
// located by the echoed temporary id and replaced in place. When no match
// exists the confirmed message is appended instead; replacement never
// yields two rows for the same logical message.
func (e *Engine) AckSend(confirmed *models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[confirmed.TempID]; ok && confirmed.TempID != "" {
		delete(e.index, confirmed.TempID)
		e.entries[i] = Entry{Message: *confirmed, Status: StatusSent}
		e.index[confirmed.ID] = i
		return
	}
	e.upsertLocked(*confirmed, StatusSent)
}

// RollbackSend removes an optimistic entry whose REST submission failed,
// restoring the list to its prior state.
func (e *Engine) RollbackSend(tempID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(tempID)
}

// ApplyCreated handles a receive-message event: replace the entry with
// that id when present, append otherwise. This is how non-sending
// participants, and the sender of agent turns, learn of new messages, and
// how finalized agent content lands.
func (e *Engine) ApplyCreated(msg *models.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upsertLocked(*msg, StatusSent)
}

// ApplyChunk handles a receive-message-chunk event by appending both
// deltas onto the existing entry. Chunks for unknown ids are dropped; the
// creation event is relied upon to arrive first.
func (e *Engine) ApplyChunk(ev models.ChunkEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[ev.MessageID]
	if !ok {
		log.Debug().Str("message_id", ev.MessageID).Msg("dropping chunk for unknown message")
		return
	}
	e.entries[i].Message.Content += ev.DeltaContent
	e.entries[i].Message.Extra += ev.DeltaExtra
	// A delete intent outranks generation progress; only RollbackDelete
	// may leave the deleting state.
	if e.entries[i].Status != StatusDeleting {
		e.entries[i].Status = StatusSending
	}
}

// BeginDelete marks a local delete intent. The entry stays visible as
// deleting until the authoritative remove-message event splices it out.
func (e *Engine) BeginDelete(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[id]; ok {
		e.entries[i].Status = StatusDeleting
	}
}

// RollbackDelete restores a deleting entry after a failed DELETE call.
func (e *Engine) RollbackDelete(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[id]; ok && e.entries[i].Status == StatusDeleting {
		e.entries[i].Status = StatusSent
	}
}

// ApplyRemoved handles the authoritative remove-message event. Removing an
// absent id is a no-op, so applying the event twice equals applying it
// once.
func (e *Engine) ApplyRemoved(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(id)
}

// Messages returns an ordered snapshot of the reconciled list.
func (e *Engine) Messages() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

func (e *Engine) appendLocked(entry Entry) {
	e.index[entry.Message.ID] = len(e.entries)
	e.entries = append(e.entries, entry)
}

func (e *Engine) upsertLocked(msg models.Message, status Status) {
	if i, ok := e.index[msg.ID]; ok {
		e.entries[i] = Entry{Message: msg, Status: status}
		return
	}
	e.appendLocked(Entry{Message: msg, Status: status})
}

func (e *Engine) removeLocked(id string) {
	i, ok := e.index[id]
	if !ok {
		return
	}
	delete(e.index, id)
	e.entries = append(e.entries[:i], e.entries[i+1:]...)
	for j := i; j < len(e.entries); j++ {
		e.index[e.entries[j].Message.ID] = j
	}
}
