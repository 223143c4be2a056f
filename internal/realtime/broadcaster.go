package realtime

import (
	"encoding/json"

	"github.com/YudoTLE/VelonY-sub000/internal/logging"
)

// Event names delivered to per-user channels under the "users" namespace.
const (
	NamespaceUsers = "users"

	EventReceiveMessage      = "receive-message"
	EventReceiveMessageChunk = "receive-message-chunk"
	EventRemoveMessage       = "remove-message"
)

// Broadcaster delivers one event to one logical recipient scope, regardless
// of the underlying transport. Emission is fire-and-forget and best-effort:
// implementations swallow and log failures, they never surface them. The
// authoritative read path is REST; realtime delivery is a convenience layer.
type Broadcaster interface {
	Emit(namespace, recipientKey, event string, payload any)
	Cleanup()
}

// Envelope is the wire frame pushed to connected clients.
type Envelope struct {
	Namespace string          `json:"namespace"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

var log = logging.Component("realtime")

// encodeEnvelope marshals an event frame, returning nil on failure so
// callers can skip the emission without propagating the error.
func encodeEnvelope(namespace, event string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return nil
	}
	data, err := json.Marshal(Envelope{Namespace: namespace, Event: event, Payload: raw})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal event envelope")
		return nil
	}
	return data
}

// scopeKey names the hub room for a namespace/recipient pair.
func scopeKey(namespace, recipientKey string) string {
	return namespace + ":" + recipientKey
}
