package generate

import (
	"context"
	"strings"
	"time"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/internal/logging"
	"github.com/YudoTLE/VelonY-sub000/internal/realtime"
	"github.com/YudoTLE/VelonY-sub000/internal/retry"
	"github.com/YudoTLE/VelonY-sub000/internal/stream"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

var log = logging.Component("generate")

// finalizeTimeout bounds the guaranteed end-of-turn write.
const finalizeTimeout = 10 * time.Second

// Backend is the persistence surface one agent turn needs.
type Backend interface {
	CreateMessage(ctx context.Context, m *models.Message) (*models.Message, error)
	FinalizeMessage(ctx context.Context, id, content, extra string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
	ListParticipants(ctx context.Context, conversationID string) ([]models.Participant, error)
	TouchConversation(ctx context.Context, id string) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	GetModel(ctx context.Context, id string) (*models.Model, error)
}

// Options tunes one orchestrator instance.
type Options struct {
	FlushCapacity int
	HistoryLimit  int
	StreamRetries int
}

// Orchestrator runs agent turns end to end: placeholder persist, streamed
// fan-out, and a finalize write that is guaranteed even when the upstream
// stream fails partway.
type Orchestrator struct {
	backend     Backend
	providers   ProviderFactory
	broadcaster realtime.Broadcaster
	opts        Options
	retryCfg    retry.RetryConfig
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(backend Backend, providers ProviderFactory, broadcaster realtime.Broadcaster, opts Options) *Orchestrator {
	if opts.FlushCapacity <= 0 {
		opts.FlushCapacity = stream.DefaultFlushCapacity
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 200
	}
	return &Orchestrator{
		backend:     backend,
		providers:   providers,
		broadcaster: broadcaster,
		opts:        opts,
		retryCfg:    retry.StreamRetryConfig(opts.StreamRetries),
	}
}

// TurnInput identifies one requested agent turn.
type TurnInput struct {
	ConversationID string
	AgentID        string
	ModelID        string
	CallerID       string
}

// RunAgentTurn drives one inference stream to a durable final message.
//
// An upstream inference failure truncates the generation but is not fatal:
// whatever was accumulated is still persisted and returned. A persistence
// failure at finalize time is fatal. Broadcast failures are swallowed by
// the broadcaster and never reach this code path.
func (o *Orchestrator) RunAgentTurn(ctx context.Context, in TurnInput) (*models.Message, error) {
	if in.CallerID == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, "caller identity required for agent turns")
	}

	agent, err := o.backend.GetAgent(ctx, in.AgentID)
	if err != nil {
		return nil, err
	}
	model, err := o.backend.GetModel(ctx, in.ModelID)
	if err != nil {
		return nil, err
	}
	participants, err := o.backend.ListParticipants(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	history, err := o.backend.ListMessages(ctx, in.ConversationID, o.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}

	// The placeholder write assigns the durable id every subsequent chunk
	// event refers to.
	placeholder, err := o.backend.CreateMessage(ctx, &models.Message{
		ConversationID: in.ConversationID,
		Type:           models.MessageTypeAgent,
		AgentID:        &agent.ID,
		ModelID:        &model.ID,
	})
	if err != nil {
		return nil, err
	}

	o.fanOut(participants, realtime.EventReceiveMessage, placeholder)

	acc := stream.NewAccumulator(o.opts.FlushCapacity)
	var fullContent, fullExtra strings.Builder

	emitFlush := func() {
		content, extra := acc.Flush()
		if content == "" && extra == "" {
			return
		}
		fullContent.WriteString(content)
		fullExtra.WriteString(extra)
		o.fanOut(participants, realtime.EventReceiveMessageChunk, models.ChunkEvent{
			MessageID:    placeholder.ID,
			DeltaContent: content,
			DeltaExtra:   extra,
		})
	}

	var streamErr error
	var final *models.Message
	var finalizeErr error
	func() {
		// The deferred block runs on success and on upstream failure
		// alike: one unconditional flush, then exactly one finalize
		// write, so partial output is never lost. The write runs on its
		// own deadline, detached from the turn context: when an upstream
		// stall is what killed the turn, ctx is already done and the
		// partial output must still land.
		defer func() {
			emitFlush()
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
			defer cancel()
			final, finalizeErr = o.backend.FinalizeMessage(fctx, placeholder.ID, fullContent.String(), fullExtra.String())
			if finalizeErr != nil {
				return
			}
			if err := o.backend.TouchConversation(fctx, in.ConversationID); err != nil {
				log.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("failed to touch conversation")
			}
		}()

		streamErr = o.consumeStream(ctx, model, BuildTurns(agent, history, o.opts.HistoryLimit), acc, emitFlush)
	}()

	if finalizeErr != nil {
		return nil, finalizeErr
	}

	if streamErr != nil {
		// Truncated generation: the partial (possibly empty) content was
		// finalized above and the request still succeeds.
		log.Warn().
			Err(streamErr).
			Str("message_id", placeholder.ID).
			Str("model_id", model.ID).
			Msg("generation truncated by upstream failure")
	}

	final.AgentName = &agent.Name
	final.ModelName = &model.Name
	o.fanOut(participants, realtime.EventReceiveMessage, final)

	return final, nil
}

// consumeStream pulls deltas into the accumulator, flushing and fanning out
// whenever the capacity is exceeded. Opening the stream is retried as long
// as nothing was received; a stream that already produced output is never
// replayed, it finalizes as a truncation instead.
func (o *Orchestrator) consumeStream(ctx context.Context, model *models.Model, turns []Turn, acc *stream.Accumulator, emitFlush func()) error {
	config := o.retryCfg

	received := false
	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		var provider Provider
		provider, lastErr = o.providers.Open(ctx, model)
		if lastErr == nil {
			lastErr = provider.Stream(ctx, turns, func(deltaContent, deltaExtra string) {
				received = true
				acc.Accumulate(deltaContent, deltaExtra)
				if acc.ShouldFlush() {
					emitFlush()
				}
			})
		}
		if lastErr == nil || received || !retry.IsRetryableError(lastErr) {
			return lastErr
		}
		if attempt < config.MaxRetries {
			if err := retry.Wait(ctx, config, attempt); err != nil {
				return lastErr
			}
			log.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("retrying model stream open")
		}
	}
	return lastErr
}

// fanOut emits one event to every participant's private channel. Delivery
// is best-effort; the authoritative state is what REST serves.
func (o *Orchestrator) fanOut(participants []models.Participant, event string, payload any) {
	for _, p := range participants {
		o.broadcaster.Emit(realtime.NamespaceUsers, p.UserID, event, payload)
	}
}
